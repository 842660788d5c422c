package files

import (
	"context"
	"runtime"
	"slices"
	"strings"
	"unicode"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/search"
	"golang.org/x/sync/errgroup"
)

const (
	ProviderID       = "files"
	FilterPrefix     = "p:"
	priority         = 20
	defaultBatchSize = 200
	// matchScale keeps a better query match ahead of a shallower path.
	matchScale = 100
)

type Options struct {
	// BatchSize caps the items reported by one poll.
	BatchSize int
	// Workers is the number of goroutines matching candidates. Zero means
	// GOMAXPROCS.
	Workers int
}

// Provider searches the file document index.
type Provider struct {
	logger    logger.Logger
	index     *Index
	engine    *query.Engine[Document]
	batchSize int
	workers   int
}

func New(logger logger.Logger, idx *Index, cache *itemcache.Cache, queryOpts query.Options, opts Options) *Provider {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	queryOpts.Cache = cache
	queryOpts.Scope = ""

	return &Provider{
		logger:    logger,
		index:     idx,
		engine:    query.NewEngine(newRegistry(), documentID, documentWords, queryOpts),
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
	}
}

func (p *Provider) Info() search.Info {
	return search.Info{
		ID:           ProviderID,
		Name:         "Files",
		Priority:     priority,
		FilterPrefix: FilterPrefix,
		Capabilities: search.SupportsSync,
	}
}

func (p *Provider) Engine() *query.Engine[Document] { return p.engine }

// Fetch matches the index in the background once the first scan is done
// and reports the matches in batches. A synchronous search gets whatever
// the index holds right now.
func (p *Provider) Fetch(sc *search.Context) (search.Handle, error) {
	ev := p.engine.Compile(sc.Context(), p.engine.Parse(sc.SearchText))
	sc.AddQueryErrors(ProviderID, ev.Errors())

	if sc.Has(search.FlagSynchronous) {
		if !p.index.IsReady() {
			return search.Items(), nil
		}
		matches, err := p.match(sc.Context(), sc, ev)
		if err != nil {
			return nil, err
		}
		return search.Items(p.toItems(matches)...), nil
	}

	return search.Stream(sc.Context(), func(ctx context.Context, emit func(...search.Item)) error {
		select {
		case <-p.index.Ready():
		case <-ctx.Done():
			return nil
		}

		matches, err := p.match(ctx, sc, ev)
		if err != nil {
			return err
		}
		for batch := range slices.Chunk(p.toItems(matches), p.batchSize) {
			if ctx.Err() != nil {
				return nil
			}
			emit(batch...)
		}
		return nil
	}), nil
}

// match evaluates the candidates in chunks across the worker goroutines
// and returns the matches best first, ties in path order.
func (p *Provider) match(ctx context.Context, sc *search.Context, ev *query.Evaluator[Document]) ([]query.Match[Document], error) {
	var candidates []Document
	for _, doc := range p.index.Documents() {
		if sc.InSubset(doc.ID) {
			candidates = append(candidates, doc)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	chunkSize := (len(candidates) + p.workers - 1) / p.workers
	chunks := slices.Collect(slices.Chunk(candidates, chunkSize))
	results := make([][]query.Match[Document], len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			for _, doc := range chunk {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if keep, score := ev.Evaluate(doc); keep {
					results[i] = append(results[i], query.Match[Document]{Item: doc, Score: score})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := slices.Concat(results...)
	slices.SortStableFunc(matches, func(a, b query.Match[Document]) int {
		return rankOf(a) - rankOf(b)
	})
	return matches, nil
}

func rankOf(m query.Match[Document]) int {
	return int(m.Item.Score - m.Score*matchScale)
}

func (p *Provider) toItems(matches []query.Match[Document]) []search.Item {
	items := make([]search.Item, 0, len(matches))
	for _, m := range matches {
		items = append(items, search.Item{
			ID:          m.Item.ID,
			Score:       int64(rankOf(m)),
			Label:       m.Item.Name,
			Description: m.Item.Dir,
			Provider:    ProviderID,
			Data:        m.Item,
		})
	}
	return items
}

func newRegistry() *query.Registry[Document] {
	r := query.NewRegistry[Document]()
	r.MustRegister("ext", query.KindString, func(d Document) (query.Value, error) {
		return query.StringValue(d.Ext), nil
	}, query.WithTypeParsers(parseExt))
	r.MustRegister("dir", query.KindString, func(d Document) (query.Value, error) {
		return query.StringValue(d.Dir), nil
	})
	r.MustRegister("kind", query.KindString, func(d Document) (query.Value, error) {
		if d.IsDir() {
			return query.StringValue("dir"), nil
		}
		return query.StringValue("file"), nil
	}, query.WithEnum("file", "dir"))
	r.MustRegister("size", query.KindInt, func(d Document) (query.Value, error) {
		return query.IntValue(d.Size), nil
	}, query.WithTypeParsers(query.ParseByteSize))
	r.MustRegister("name", query.KindString, func(d Document) (query.Value, error) {
		return query.StringValue(d.Name), nil
	})
	return r
}

func parseExt(raw string) (query.Value, bool) {
	return query.StringValue(strings.TrimPrefix(strings.ToLower(raw), ".")), true
}

func documentID(d Document) string { return d.ID }

// documentWords splits a file name into its alphanumeric parts and keeps
// the whole name as well.
func documentWords(d Document) []string {
	parts := strings.FieldsFunc(d.Name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return append([]string{d.Name}, parts...)
}
