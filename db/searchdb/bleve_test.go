package searchdb

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meghashyamc/omnisearch/config"
	"github.com/stretchr/testify/require"
)

var parseQuotedQueryTestCases = []struct {
	name              string
	input             string
	expectedQuoted    []string
	expectedRemaining string
}{
	{
		name:              "Simple quoted phrase",
		input:             `"hello world"`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "",
	},
	{
		name:              "Quoted phrase with remaining terms",
		input:             `"hello world" test golang`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "test golang",
	},
	{
		name:              "Multiple quoted phrases",
		input:             `"hello world" test "another phrase"`,
		expectedQuoted:    []string{"hello world", "another phrase"},
		expectedRemaining: "test",
	},
	{
		name:              "No quotes",
		input:             `hello world test`,
		expectedQuoted:    nil,
		expectedRemaining: "hello world test",
	},
	{
		name:              "Empty quoted phrase",
		input:             `"" test`,
		expectedQuoted:    nil,
		expectedRemaining: "test",
	},
	{
		name:              "Unterminated quote",
		input:             `test "open phrase`,
		expectedQuoted:    []string{"open phrase"},
		expectedRemaining: "test",
	},
	{
		name:              "Multiple quoted phrases with spaces",
		input:             `  "first   phrase"   test   "second phrase"  `,
		expectedQuoted:    []string{"first phrase", "second phrase"},
		expectedRemaining: "test",
	},
}

func TestParseQuotedQuery(t *testing.T) {
	for _, testCase := range parseQuotedQueryTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			quoted, remaining := parseQuotedQuery(testCase.input)

			assert.Equal(testCase.expectedQuoted, quoted, "quoted phrases should match")
			assert.Equal(testCase.expectedRemaining, remaining, "remaining (not quoted) terms should match")
		})
	}
}

func TestFormatSnippet(t *testing.T) {
	assert := require.New(t)
	assert.Equal("a b", formatSnippet(" a\n b ", 0, 4, 4))
	assert.Equal("...a b...", formatSnippet("a b", 10, 13, 20))
}

func newTestIndex(t *testing.T, assert *require.Assertions) (*BleveDB, string) {
	cfg, err := config.Load("test")
	assert.NoError(err)
	dir := t.TempDir()
	cfg.Set("database.index_path", filepath.Join(dir, "index.bleve"))
	cfg.Set("search.batch_size", 2)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db, err := New(logger, cfg)
	assert.NoError(err, "could not create search database")
	t.Cleanup(func() { assert.NoError(db.Close()) })
	return db, dir
}

func writeDocuments(t *testing.T, assert *require.Assertions, dir string, files map[string]string) []Document {
	var docs []Document
	for name, content := range files {
		path := filepath.Join(dir, name)
		assert.NoError(os.WriteFile(path, []byte(content), 0644))
		docs = append(docs, Document{
			ID:      path,
			Path:    path,
			Name:    name,
			Ext:     filepath.Ext(name),
			Content: content,
			Size:    int64(len(content)),
			ModTime: time.Now(),
		})
	}
	return docs
}

func TestIndexSearchDelete(t *testing.T) {
	assert := require.New(t)
	db, dir := newTestIndex(t, assert)

	docs := writeDocuments(t, assert, dir, map[string]string{
		"player.go":   "package game\n\nfunc spawnPlayer() { respawn the hero }",
		"notes.md":    "# Notes\n\nthe hero walks into the tavern",
		"readme.txt":  "nothing relevant here",
		"enemies.txt": "goblin orc troll",
	})
	assert.NoError(db.BuildIndex(docs))

	count, err := db.GetDocCount()
	assert.NoError(err)
	assert.Equal(uint64(4), count)

	response, err := db.Search(context.Background(), "hero", 10, 0)
	assert.NoError(err)
	assert.Equal(uint64(2), response.Total)
	for _, hit := range response.Hits {
		assert.Contains(hit.Snippet, "hero")
		assert.NotEmpty(hit.Path)
	}

	response, err = db.Search(context.Background(), `"hero walks"`, 10, 0)
	assert.NoError(err)
	assert.Len(response.Hits, 1)
	assert.Equal(filepath.Join(dir, "notes.md"), response.Hits[0].ID)
	assert.Equal(".md", response.Hits[0].Ext)

	assert.NoError(db.DeleteDocuments([]string{filepath.Join(dir, "notes.md")}))
	response, err = db.Search(context.Background(), "hero", 10, 0)
	assert.NoError(err)
	assert.Len(response.Hits, 1)
	assert.Equal(filepath.Join(dir, "player.go"), response.Hits[0].ID)
}

func TestIsTextFile(t *testing.T) {
	assert := require.New(t)
	assert.True(IsTextFile("/a/b.go"))
	assert.True(IsTextFile("/a/B.MD"))
	assert.False(IsTextFile("/a/b.png"))
	assert.False(IsTextFile("/a/b"))
}
