package content

import (
	"context"
	"strings"
	"unicode"

	"github.com/meghashyamc/omnisearch/db/searchdb"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/search"
)

const (
	ProviderID   = "content"
	FilterPrefix = "c:"
	priority     = 30
	defaultLimit = 100
	// relevanceScale turns bleve relevance into an integer rank.
	relevanceScale = 100
)

// Searcher is the full-text index the provider queries.
type Searcher interface {
	Search(ctx context.Context, queryString string, limit int, offset int) (*searchdb.Response, error)
}

// Provider runs full-text queries against the content index. The free
// text of a query goes to the index and the filters are applied to the
// hits it returns.
type Provider struct {
	logger   logger.Logger
	searcher Searcher
	engine   *query.Engine[searchdb.Hit]
	limit    int
}

func New(logger logger.Logger, searcher Searcher, queryOpts query.Options, limit int) *Provider {
	if limit <= 0 {
		limit = defaultLimit
	}
	// Hit words depend on the query, so they are never cached.
	queryOpts.Cache = nil

	return &Provider{
		logger:   logger,
		searcher: searcher,
		engine:   query.NewEngine(newRegistry(), hitID, hitWords, queryOpts),
		limit:    limit,
	}
}

func (p *Provider) Info() search.Info {
	return search.Info{
		ID:           ProviderID,
		Name:         "File Contents",
		Priority:     priority,
		FilterPrefix: FilterPrefix,
		Capabilities: search.WantsMore,
	}
}

func (p *Provider) Engine() *query.Engine[searchdb.Hit] { return p.engine }

func (p *Provider) Fetch(sc *search.Context) (search.Handle, error) {
	q := p.engine.Parse(sc.SearchText)
	ev := p.engine.Compile(sc.Context(), q)
	sc.AddQueryErrors(ProviderID, ev.Errors())

	text := fullTextQuery(q)
	if text == "" {
		return search.Items(), nil
	}

	return search.Async(sc.Context(), func(ctx context.Context) ([]search.Item, error) {
		response, err := p.searcher.Search(ctx, text, p.limit, 0)
		if err != nil {
			p.logger.Error("content search failed", "search_id", sc.ID, "err", err.Error())
			return nil, err
		}

		var items []search.Item
		for _, hit := range response.Hits {
			if !sc.InSubset(hit.ID) {
				continue
			}
			keep, score := ev.Evaluate(hit)
			if !keep {
				continue
			}
			items = append(items, search.Item{
				ID:          hit.ID,
				Score:       -int64(hit.Score*relevanceScale) - score,
				Label:       hit.Name,
				Description: hit.Snippet,
				Provider:    ProviderID,
				Data:        hit,
			})
		}
		p.logger.Debug("content search finished", "search_id", sc.ID, "hits", len(response.Hits), "items", len(items), "took", response.Took.String())
		return items, nil
	}), nil
}

// fullTextQuery rebuilds the positive free-text part of a query for the
// index. Quoted terms stay quoted so the index treats them as phrases.
func fullTextQuery(q *query.Query) string {
	var parts []string
	for _, term := range q.Terms() {
		if strings.ContainsRune(term, ' ') {
			term = `"` + term + `"`
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, " ")
}

func newRegistry() *query.Registry[searchdb.Hit] {
	r := query.NewRegistry[searchdb.Hit]()
	r.MustRegister("ext", query.KindString, func(h searchdb.Hit) (query.Value, error) {
		return query.StringValue(strings.TrimPrefix(h.Ext, ".")), nil
	}, query.WithTypeParsers(func(raw string) (query.Value, bool) {
		return query.StringValue(strings.TrimPrefix(strings.ToLower(raw), ".")), true
	}))
	r.MustRegister("size", query.KindInt, func(h searchdb.Hit) (query.Value, error) {
		return query.IntValue(h.Size), nil
	}, query.WithTypeParsers(query.ParseByteSize))
	r.MustRegister("path", query.KindString, func(h searchdb.Hit) (query.Value, error) {
		return query.StringValue(h.Path), nil
	})
	return r
}

func hitID(h searchdb.Hit) string { return h.ID }

// hitWords are the file name parts, the terms the index matched and the
// words of the snippet around the first match.
func hitWords(h searchdb.Hit) []string {
	split := func(s string) []string {
		return strings.FieldsFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
	}
	words := split(h.Name)
	words = append(words, h.Terms...)
	return append(words, split(h.Snippet)...)
}
