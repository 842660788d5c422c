package tracker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logger.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler)
}

type fakeIndex struct {
	root     string
	patchErr error

	mu      sync.Mutex
	stale   bool
	patched []Change
}

func (f *fakeIndex) Covers(id string) bool { return strings.HasPrefix(id, f.root) }

func (f *fakeIndex) MarkStale() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale = true
}

func (f *fakeIndex) Patch(change Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patched = append(f.patched, change)
	return nil
}

func (f *fakeIndex) isStale() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

type staleOnlyIndex struct {
	root  string
	stale bool
}

func (s *staleOnlyIndex) Covers(id string) bool { return strings.HasPrefix(id, s.root) }

func (s *staleOnlyIndex) MarkStale() { s.stale = true }

func fill(cache *itemcache.Cache, ids ...string) {
	for _, id := range ids {
		_, _ = itemcache.Get(cache, id, itemcache.FieldWords, func() ([]string, error) { return []string{id}, nil })
	}
}

// cached reports whether id still has its words cached.
func cached(cache *itemcache.Cache, id string) bool {
	computed := false
	_, _ = itemcache.Get(cache, id, itemcache.FieldWords, func() ([]string, error) {
		computed = true
		return []string{id}, nil
	})
	return !computed
}

func TestUpdatedEvictsOnlyThoseItems(t *testing.T) {
	assert := require.New(t)
	cache := itemcache.New()
	fill(cache, "a", "b", "c")

	tr := New(newTestLogger(), cache, time.Hour, nil)
	defer tr.Close()
	tr.OnChanged([]string{"a"}, nil, nil)

	assert.Equal(2, cache.Len())
	assert.False(cached(cache, "a"))
	assert.True(cached(cache, "b"))
}

func TestDeletedAndMovedInvalidateEverything(t *testing.T) {
	testCases := []struct {
		name    string
		deleted []string
		moved   []string
	}{
		{name: "Deleted", deleted: []string{"a"}},
		{name: "Moved", moved: []string{"b"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			cache := itemcache.New()
			fill(cache, "a", "b", "c")

			tr := New(newTestLogger(), cache, time.Hour, nil)
			defer tr.Close()
			tr.OnChanged(nil, testCase.deleted, testCase.moved)
			assert.Equal(0, cache.Len())
		})
	}
}

func TestIndexesArePatchedOrMarkedStale(t *testing.T) {
	assert := require.New(t)

	patching := &fakeIndex{root: "/src/"}
	failing := &fakeIndex{root: "/src/", patchErr: errors.New("document missing")}
	other := &fakeIndex{root: "/docs/"}
	marker := &staleOnlyIndex{root: "/src/"}

	tr := New(newTestLogger(), nil, time.Hour, nil)
	defer tr.Close()
	tr.Watch(patching)
	tr.Watch(failing)
	tr.Watch(other)
	tr.Watch(marker)

	tr.OnChanged([]string{"/src/a.go", "/docs/b.md"}, nil, []string{"/src/old.go"})

	assert.Len(patching.patched, 1)
	assert.Equal(Change{Updated: []string{"/src/a.go"}, Moved: []string{"/src/old.go"}}, patching.patched[0])
	assert.False(patching.isStale())
	assert.True(failing.isStale())
	assert.True(marker.stale)
	assert.Len(other.patched, 1)
	assert.Equal([]string{"/docs/b.md"}, other.patched[0].Updated)
}

func TestNotificationsAreCoalesced(t *testing.T) {
	assert := require.New(t)

	tr := New(newTestLogger(), nil, 100*time.Millisecond, nil)
	defer tr.Close()

	received := make(chan Change, 4)
	tr.Subscribe(func(c Change) { received <- c })

	tr.OnChanged([]string{"a"}, nil, nil)
	tr.OnChanged([]string{"b", "a"}, nil, nil)
	tr.OnChanged(nil, []string{"c"}, nil)

	select {
	case c := <-received:
		assert.Equal([]string{"a", "b"}, c.Updated)
		assert.Equal([]string{"c"}, c.Deleted)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}

	select {
	case c := <-received:
		t.Fatalf("unexpected second notification %v", c)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestOnChangedDoesNotNotifySynchronously(t *testing.T) {
	assert := require.New(t)

	tr := New(newTestLogger(), nil, time.Hour, nil)
	defer tr.Close()
	calls := 0
	unsubscribe := tr.Subscribe(func(Change) { calls++ })

	tr.OnChanged([]string{"a"}, nil, nil)
	assert.Equal(0, calls)

	tr.Flush()
	assert.Equal(1, calls)

	unsubscribe()
	tr.OnChanged([]string{"b"}, nil, nil)
	tr.Flush()
	assert.Equal(1, calls)
}

func TestSubscriberPanicIsContained(t *testing.T) {
	assert := require.New(t)

	tr := New(newTestLogger(), nil, time.Hour, nil)
	defer tr.Close()
	tr.Subscribe(func(Change) { panic("subscriber bug") })
	delivered := false
	tr.Subscribe(func(Change) { delivered = true })

	tr.OnChanged([]string{"a"}, nil, nil)
	assert.NotPanics(tr.Flush)
	assert.True(delivered)
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveChange(kind string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[kind] += n
}

func TestWatcherReportsFileEvents(t *testing.T) {
	assert := require.New(t)
	root := t.TempDir()
	assert.NoError(os.MkdirAll(filepath.Join(root, "sub"), 0755))

	observer := &countingObserver{counts: make(map[string]int)}
	tr := New(newTestLogger(), nil, 10*time.Millisecond, observer)
	defer tr.Close()

	received := make(chan Change, 16)
	tr.Subscribe(func(c Change) { received <- c })

	w, err := NewWatcher(newTestLogger(), tr, []string{root}, nil)
	assert.NoError(err)
	defer w.Close()

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	target := filepath.Join(root, "sub", "new.txt")
	assert.NoError(os.WriteFile(target, []byte("hello"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-received:
			if slices.Contains(c.Updated, target) {
				cancel()
				<-done
				observer.mu.Lock()
				defer observer.mu.Unlock()
				assert.Positive(observer.counts["updated"])
				return
			}
		case <-deadline:
			t.Fatal("no change reported for new file")
		}
	}
}
