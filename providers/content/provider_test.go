package content

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meghashyamc/omnisearch/config"
	"github.com/meghashyamc/omnisearch/db/searchdb"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/search"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logger.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeSearcher struct {
	response *searchdb.Response
	err      error
	queries  []string
}

func (f *fakeSearcher) Search(ctx context.Context, queryString string, limit int, offset int) (*searchdb.Response, error) {
	f.queries = append(f.queries, queryString)
	return f.response, f.err
}

func drain(assert *require.Assertions, handle search.Handle) search.PollResult {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if result := handle.Poll(); result.State == search.Done {
			return result
		}
		time.Sleep(time.Millisecond)
	}
	assert.Fail("handle never finished")
	return search.PollResult{}
}

func fetch(assert *require.Assertions, p *Provider, text string) (search.PollResult, *search.Context) {
	registry := search.NewRegistry(newTestLogger(), nil)
	assert.NoError(registry.Register(p))
	sc := registry.BuildContext(context.Background(), text, search.Options{Flags: search.FlagWantsMore})
	handle, err := p.Fetch(sc)
	assert.NoError(err)
	return drain(assert, handle), sc
}

func TestFetchFiltersHits(t *testing.T) {
	assert := require.New(t)
	searcher := &fakeSearcher{response: &searchdb.Response{Hits: []searchdb.Hit{
		{ID: "/w/a.go", Path: "/w/a.go", Name: "a.go", Ext: ".go", Score: 2.5, Size: 100, Terms: []string{"hero"}, Snippet: "the hero spawns"},
		{ID: "/w/b.md", Path: "/w/b.md", Name: "b.md", Ext: ".md", Score: 1.5, Size: 10, Terms: []string{"hero"}, Snippet: "a hero story"},
		{ID: "/w/c.go", Path: "/w/c.go", Name: "c.go", Ext: ".go", Score: 1.0, Size: 4096, Terms: []string{"hero"}, Snippet: "hero villain"},
	}}}
	p := New(newTestLogger(), searcher, query.Options{}, 0)

	result, sc := fetch(assert, p, "c:hero ext:go -villain")
	assert.NoError(result.Err)
	assert.Empty(sc.QueryErrors())
	assert.Equal([]string{"hero"}, searcher.queries)
	assert.Len(result.Items, 1)
	assert.Equal("/w/a.go", result.Items[0].ID)
	assert.Equal("the hero spawns", result.Items[0].Description)
	assert.Equal(int64(-253), result.Items[0].Score)

	result, _ = fetch(assert, p, "c:hero size>1kb")
	assert.Len(result.Items, 1)
	assert.Equal("/w/c.go", result.Items[0].ID)
}

func TestFetchPhrases(t *testing.T) {
	assert := require.New(t)
	searcher := &fakeSearcher{response: &searchdb.Response{}}
	p := New(newTestLogger(), searcher, query.Options{}, 0)

	_, _ = fetch(assert, p, `c:"walks into" tavern`)
	assert.Equal([]string{`"walks into" tavern`}, searcher.queries)
}

func TestFetchWithoutTextSkipsIndex(t *testing.T) {
	assert := require.New(t)
	searcher := &fakeSearcher{response: &searchdb.Response{}}
	p := New(newTestLogger(), searcher, query.Options{}, 0)

	result, _ := fetch(assert, p, "c:ext:go")
	assert.Empty(result.Items)
	assert.Empty(searcher.queries)
}

func TestFetchReportsIndexErrors(t *testing.T) {
	assert := require.New(t)
	p := New(newTestLogger(), &fakeSearcher{err: errors.New("index closed")}, query.Options{}, 0)

	result, _ := fetch(assert, p, "c:hero")
	assert.Error(result.Err)
}

func TestNotSelectedUnlessMoreWanted(t *testing.T) {
	assert := require.New(t)
	p := New(newTestLogger(), &fakeSearcher{}, query.Options{}, 0)
	registry := search.NewRegistry(newTestLogger(), nil)
	assert.NoError(registry.Register(p))

	sc := registry.BuildContext(context.Background(), "hero", search.Options{})
	assert.Empty(sc.Providers())
	sc = registry.BuildContext(context.Background(), "hero", search.Options{Flags: search.FlagWantsMore})
	assert.Len(sc.Providers(), 1)
}

func TestFetchAgainstBleve(t *testing.T) {
	assert := require.New(t)
	cfg, err := config.Load("test")
	assert.NoError(err)
	dir := t.TempDir()
	cfg.Set("database.index_path", filepath.Join(dir, "index.bleve"))

	db, err := searchdb.New(newTestLogger(), cfg)
	assert.NoError(err)
	defer db.Close()

	docs := map[string]string{
		"quest.md":  "the hero accepts the quest",
		"enemy.go":  "package enemy // the hero must be stopped",
		"readme.md": "nothing to see",
	}
	var documents []searchdb.Document
	for name, text := range docs {
		path := filepath.Join(dir, name)
		assert.NoError(os.WriteFile(path, []byte(text), 0644))
		documents = append(documents, searchdb.Document{ID: path, Path: path, Name: name, Ext: filepath.Ext(name), Content: text, Size: int64(len(text))})
	}
	assert.NoError(db.BuildIndex(documents))

	p := New(newTestLogger(), db, query.Options{}, 10)
	result, _ := fetch(assert, p, "c:hero ext:md")
	assert.NoError(result.Err)
	assert.Len(result.Items, 1)
	assert.Equal(filepath.Join(dir, "quest.md"), result.Items[0].ID)
	assert.Contains(result.Items[0].Description, "hero")
}
