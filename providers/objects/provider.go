package objects

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/search"
)

const (
	ProviderID   = "objects"
	FilterPrefix = "h:"
	priority     = 10
	maxDepth     = 256
)

// KnownTypes are offered for "t:" completion; any type name still matches.
var KnownTypes = []string{"camera", "light", "mesh", "prefab", "empty", "audio", "ui"}

// Provider searches the live object graph. It answers every search in one
// poll.
type Provider struct {
	logger logger.Logger
	graph  *Graph
	cache  *itemcache.Cache
	engine *query.Engine[Object]
}

func New(logger logger.Logger, graph *Graph, cache *itemcache.Cache, opts query.Options) *Provider {
	p := &Provider{logger: logger, graph: graph, cache: cache}

	opts.Cache = cache
	opts.Scope = ""
	p.engine = query.NewEngine(p.newRegistry(), Object.Key, objectWords, opts)
	return p
}

func (p *Provider) Info() search.Info {
	return search.Info{
		ID:           ProviderID,
		Name:         "Scene Objects",
		Priority:     priority,
		FilterPrefix: FilterPrefix,
		Capabilities: search.SupportsSync,
	}
}

func (p *Provider) Engine() *query.Engine[Object] { return p.engine }

func (p *Provider) Graph() *Graph { return p.graph }

func (p *Provider) Fetch(sc *search.Context) (search.Handle, error) {
	ev := p.engine.Compile(sc.Context(), p.engine.Parse(sc.SearchText))
	sc.AddQueryErrors(ProviderID, ev.Errors())

	var candidates []Object
	for _, obj := range p.graph.Snapshot() {
		if sc.InSubset(obj.Key()) {
			candidates = append(candidates, obj)
		}
	}

	matches := ev.Apply(candidates)
	items := make([]search.Item, 0, len(matches))
	for _, m := range matches {
		items = append(items, search.Item{
			ID:          m.Item.Key(),
			Score:       -m.Score,
			Label:       m.Item.Name,
			Description: p.path(m.Item),
			Provider:    ProviderID,
			Data:        m.Item,
		})
	}
	return search.Items(items...), nil
}

func (p *Provider) newRegistry() *query.Registry[Object] {
	r := query.NewRegistry[Object]()
	r.MustRegister("t", query.KindString, func(o Object) (query.Value, error) {
		return query.StringValue(o.Type), nil
	}, query.WithEnum(KnownTypes...))
	r.MustRegister("id", query.KindInt, func(o Object) (query.Value, error) {
		return query.IntValue(o.ID), nil
	})
	r.MustRegister("name", query.KindString, func(o Object) (query.Value, error) {
		return query.StringValue(o.Name), nil
	})
	r.MustRegister("tag", query.KindStrings, func(o Object) (query.Value, error) {
		return query.StringsValue(o.Tags...), nil
	})
	r.MustRegister("layer", query.KindInt, func(o Object) (query.Value, error) {
		return query.IntValue(o.Layer), nil
	})
	r.MustRegister("components", query.KindInt, func(o Object) (query.Value, error) {
		return query.IntValue(int64(len(o.Components))), nil
	})
	r.MustRegister("has", query.KindStrings, func(o Object) (query.Value, error) {
		return query.StringsValue(o.Components...), nil
	})
	r.MustRegister("path", query.KindString, func(o Object) (query.Value, error) {
		return query.StringValue(p.path(o)), nil
	})
	r.MustRegister("ref", query.KindStrings, func(o Object) (query.Value, error) {
		return query.StringsValue(p.refs(o)...), nil
	}, query.WithOperators(query.OpColon, query.OpEqual, query.OpNotEqual, query.OpContains),
		query.WithTypeParsers(refParsers...),
		query.WithNested(p.resolveNested))
	r.MustRegister("missing", query.KindBool, func(o Object) (query.Value, error) {
		return query.BoolValue(p.missing(o)), nil
	}, query.WithOperators(query.OpColon, query.OpEqual, query.OpNotEqual))
	return r
}

// resolveNested runs a nested query against the graph and returns the
// identities it matched.
func (p *Provider) resolveNested(ctx context.Context, text string) ([]string, error) {
	matches, errs := p.engine.Filter(ctx, text, p.graph.Snapshot())
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid nested query: %s", errs[0].Reason)
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Item.Key())
	}
	return ids, nil
}

// path is the slash separated chain of names from the root to o.
func (p *Provider) path(o Object) string {
	path, _ := itemcache.Get(p.cache, o.Key(), itemcache.FieldPath, func() (string, error) {
		names := []string{o.Name}
		seen := map[int64]bool{o.ID: true}
		for parent := o.Parent; parent != 0 && len(names) < maxDepth && !seen[parent]; {
			seen[parent] = true
			obj, ok := p.graph.Get(parent)
			if !ok {
				break
			}
			names = append(names, obj.Name)
			parent = obj.Parent
		}
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
		return strings.Join(names, "/"), nil
	})
	return path
}

func (p *Provider) refs(o Object) []string {
	refs, _ := itemcache.Get(p.cache, o.Key(), itemcache.FieldRefs, func() ([]string, error) {
		out := make([]string, 0, len(o.Refs))
		for _, raw := range o.Refs {
			if ref := canonicalRef(raw); ref != "" {
				out = append(out, ref)
			}
		}
		return out, nil
	})
	return refs
}

// missing reports whether any object reference points at an object that
// is not in the graph.
func (p *Provider) missing(o Object) bool {
	missing, _ := itemcache.Get(p.cache, o.Key(), itemcache.FieldMissing, func() (bool, error) {
		for _, raw := range o.Refs {
			if id, ok := objectRef(raw); ok && !p.graph.Exists(id) {
				return true, nil
			}
		}
		return false, nil
	})
	return missing
}

func objectWords(o Object) []string {
	words := append([]string{o.Name, o.Type}, o.Tags...)
	return append(words, strconv.FormatInt(o.ID, 10))
}
