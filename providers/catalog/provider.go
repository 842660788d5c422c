package catalog

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/search"
)

const (
	ProviderID   = "catalog"
	FilterPrefix = "pkg:"
	priority     = 40
	defaultLimit = 50
)

// Searcher looks packages up by free text.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]Package, error)
}

// Provider searches a remote package catalog. It only runs when a query
// starts with its prefix.
type Provider struct {
	logger   logger.Logger
	searcher Searcher
	engine   *query.Engine[Package]
	limit    int
}

func New(logger logger.Logger, searcher Searcher, cache *itemcache.Cache, queryOpts query.Options, limit int) *Provider {
	if limit <= 0 {
		limit = defaultLimit
	}
	queryOpts.Cache = cache
	queryOpts.Scope = "catalog:"

	return &Provider{
		logger:   logger,
		searcher: searcher,
		engine:   query.NewEngine(newRegistry(), packageKey, packageWords, queryOpts),
		limit:    limit,
	}
}

func (p *Provider) Info() search.Info {
	return search.Info{
		ID:           ProviderID,
		Name:         "Packages",
		Priority:     priority,
		FilterPrefix: FilterPrefix,
		Capabilities: search.ExplicitOnly,
	}
}

func (p *Provider) Fetch(sc *search.Context) (search.Handle, error) {
	q := p.engine.Parse(sc.SearchText)
	ev := p.engine.Compile(sc.Context(), q)
	sc.AddQueryErrors(ProviderID, ev.Errors())

	text := strings.Join(q.Terms(), " ")
	if text == "" {
		return search.Items(), nil
	}

	return search.Async(sc.Context(), func(ctx context.Context) ([]search.Item, error) {
		packages, err := p.searcher.Search(ctx, text, p.limit)
		if err != nil {
			return nil, err
		}

		var items []search.Item
		for rank, pkg := range packages {
			key := packageKey(pkg)
			if !sc.InSubset(key) {
				continue
			}
			keep, score := ev.Evaluate(pkg)
			if !keep {
				continue
			}
			items = append(items, search.Item{
				ID:          key,
				Score:       int64(rank) - score,
				Label:       pkg.Name,
				Description: pkg.Description,
				Provider:    ProviderID,
				Data:        pkg,
			})
		}
		return items, nil
	}), nil
}

func newRegistry() *query.Registry[Package] {
	r := query.NewRegistry[Package]()
	r.MustRegister("name", query.KindString, func(p Package) (query.Value, error) {
		return query.StringValue(p.Name), nil
	})
	r.MustRegister("version", query.KindString, func(p Package) (query.Value, error) {
		return query.StringValue(p.Version), nil
	}, query.WithOperators(query.OrderedOperators...), query.WithComparer(compareVersionValues))
	r.MustRegister("keyword", query.KindStrings, func(p Package) (query.Value, error) {
		return query.StringsValue(p.Keywords...), nil
	})
	r.MustRegister("deprecated", query.KindBool, func(p Package) (query.Value, error) {
		return query.BoolValue(p.Deprecated), nil
	}, query.WithOperators(query.OpColon, query.OpEqual, query.OpNotEqual))
	return r
}

func packageKey(p Package) string { return p.Name + "@" + p.Version }

func packageWords(p Package) []string {
	split := func(s string) []string {
		return strings.FieldsFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
	}
	words := append([]string{p.Name}, split(p.Name)...)
	words = append(words, p.Keywords...)
	return append(words, split(p.Description)...)
}

// compareVersionValues orders dotted versions numerically. ":" matches the
// version itself and every version below it, so version:1.2 matches 1.2.7.
func compareVersionValues(op query.Operator, have, want query.Value) bool {
	h, w := have.Str(), want.Str()
	switch op {
	case query.OpColon:
		h, w = strings.TrimPrefix(h, "v"), strings.TrimPrefix(w, "v")
		return h == w || strings.HasPrefix(h, w+".")
	case query.OpEqual:
		return compareVersions(h, w) == 0
	case query.OpNotEqual:
		return compareVersions(h, w) != 0
	case query.OpGreater:
		return compareVersions(h, w) > 0
	case query.OpGreaterOrEqual:
		return compareVersions(h, w) >= 0
	case query.OpLesser:
		return compareVersions(h, w) < 0
	case query.OpLesserOrEqual:
		return compareVersions(h, w) <= 0
	}
	return false
}

// compareVersions compares a and b part by part. Missing parts count as
// zero and parts that are not numbers compare as text.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		ap, bp := "0", "0"
		if i < len(as) {
			ap = as[i]
		}
		if i < len(bs) {
			bp = bs[i]
		}
		an, aErr := strconv.Atoi(ap)
		bn, bErr := strconv.Atoi(bp)
		switch {
		case aErr == nil && bErr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(ap, bp); c != 0 {
				return c
			}
		}
	}
	return 0
}
