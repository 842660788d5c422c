package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/db/searchdb"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	mu      sync.Mutex
	docs    map[string]searchdb.Document
	indexed int
}

func (f *fakeIndexer) BuildIndex(documents []searchdb.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range documents {
		f.docs[doc.ID] = doc
	}
	f.indexed += len(documents)
	return nil
}

func (f *fakeIndexer) DeleteDocuments(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeIndexer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeIndexer) indexedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexed
}

type fakeStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: map[string]map[string]string{
		kvdb.FilesBucket:    {},
		kvdb.RequestsBucket: {},
	}}
}

func (f *fakeStore) Set(bucket, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket][key] = value
	return nil
}

func (f *fakeStore) Get(bucket, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.buckets[bucket][key]
	if !ok {
		return "", &kvdb.NotFoundError{Bucket: bucket, Key: key}
	}
	return value, nil
}

func (f *fakeStore) Delete(bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buckets[bucket], key)
	return nil
}

func (f *fakeStore) GetAllKeys(bucket string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.buckets[bucket] {
		keys = append(keys, key)
	}
	return keys, nil
}

func writeFiles(t *testing.T, assert *require.Assertions, root string, files map[string]string) {
	for relPath, content := range files {
		fullPath := filepath.Join(root, relPath)
		assert.NoError(os.MkdirAll(filepath.Dir(fullPath), 0755))
		assert.NoError(os.WriteFile(fullPath, []byte(content), 0644))
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *fakeIndexer) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	indexer := &fakeIndexer{docs: map[string]searchdb.Document{}}
	return New(ctx, logger, indexer, newFakeStore(), opts), indexer
}

func waitForStatus(assert *require.Assertions, service *Service, requestID string, want int) {
	assert.Eventually(func() bool {
		status, err := service.GetStatus(requestID)
		return err == nil && status == want
	}, 5*time.Second, 10*time.Millisecond, "request %s never reached %d", requestID, want)
}

func TestBuildIndexesEveryFile(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()

	files := map[string]string{
		"file1.txt":              "This is test content for file1",
		"file2.go":               "package main",
		"subdir/file3.md":        "# Test Markdown",
		"subdir/nested/file5.py": "def hello(): pass",
		"image.png":              "\x89PNG",
		".hidden":                "skip me",
		".git/config":            "skip me too",
		"node_modules/x/pkg.js":  "excluded",
	}
	// More files than one batch per worker so trailing files are covered.
	for i := range 7 {
		files[fmt.Sprintf("bulk/f%d.txt", i)] = "bulk"
	}
	writeFiles(t, assert, root, files)

	service, indexer := newTestService(t, Options{BatchSize: 2})
	assert.NoError(service.Build(root, []string{"node_modules"}, "req-1"))
	waitForStatus(assert, service, "req-1", ProgressStatusComplete)

	ids := indexer.ids()
	assert.Len(ids, 12)
	assert.Contains(ids, filepath.Join(root, "subdir", "nested", "file5.py"))
	assert.NotContains(ids, filepath.Join(root, ".hidden"))
	assert.NotContains(ids, filepath.Join(root, "node_modules", "x", "pkg.js"))

	indexer.mu.Lock()
	png := indexer.docs[filepath.Join(root, "image.png")]
	text := indexer.docs[filepath.Join(root, "file1.txt")]
	indexer.mu.Unlock()
	assert.Empty(png.Content)
	assert.Equal(".png", png.Ext)
	assert.Equal("This is test content for file1", text.Content)
}

func TestBuildIsIncremental(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeFiles(t, assert, root, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	service, indexer := newTestService(t, Options{})
	assert.NoError(service.Build(root, nil, "first"))
	waitForStatus(assert, service, "first", ProgressStatusComplete)
	assert.Equal(2, indexer.indexedCount())

	assert.NoError(service.Build(root, nil, "second"))
	waitForStatus(assert, service, "second", ProgressStatusComplete)
	assert.Equal(2, indexer.indexedCount(), "unchanged files are not reindexed")

	assert.NoError(os.Remove(filepath.Join(root, "a.txt")))
	writeFiles(t, assert, root, map[string]string{"b.txt": "beta grew longer", "c.txt": "gamma"})

	assert.NoError(service.Build(root, nil, "third"))
	waitForStatus(assert, service, "third", ProgressStatusComplete)
	assert.Equal([]string{filepath.Join(root, "b.txt"), filepath.Join(root, "c.txt")}, indexer.ids())
	assert.Equal(4, indexer.indexedCount())
}

func TestMarkStaleRebuildsKnownRoots(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	writeFiles(t, assert, root, map[string]string{"a.txt": "alpha"})

	service, indexer := newTestService(t, Options{ReindexPerSecond: 100})
	assert.False(service.Covers(filepath.Join(root, "a.txt")))

	assert.NoError(service.Build(root, nil, "first"))
	waitForStatus(assert, service, "first", ProgressStatusComplete)
	assert.True(service.Covers(filepath.Join(root, "a.txt")))
	assert.True(service.Covers(root))
	assert.False(service.Covers(root + "-other/a.txt"))

	writeFiles(t, assert, root, map[string]string{"new.txt": "fresh"})
	service.MarkStale()
	service.MarkStale()

	assert.Eventually(func() bool {
		return len(indexer.ids()) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGetStatusUnknownRequest(t *testing.T) {
	assert := require.New(t)
	service, _ := newTestService(t, Options{})
	_, err := service.GetStatus("missing")
	assert.ErrorIs(err, kvdb.ErrNotFound)
}

func TestGetProgressPercentage(t *testing.T) {
	tests := []struct {
		name        string
		done, total int
		want        int
	}{
		{name: "nothing done", done: 0, total: 10, want: 20},
		{name: "half", done: 5, total: 10, want: 60},
		{name: "all", done: 10, total: 10, want: 100},
		{name: "no files", done: 0, total: 0, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.New(t).Equal(tt.want, getProgressPercentage(tt.done, tt.total, 20, 100))
		})
	}
}
