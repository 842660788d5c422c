package tracker

import (
	"slices"
	"sync"
	"time"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/logger"
)

const DefaultDebounce = 250 * time.Millisecond

// Change is a set of identities reported as changed.
type Change struct {
	Updated []string `json:"updated"`
	Deleted []string `json:"deleted"`
	Moved   []string `json:"moved"`
}

func (c Change) Empty() bool {
	return len(c.Updated) == 0 && len(c.Deleted) == 0 && len(c.Moved) == 0
}

// Merge returns c with the identities of other added, without duplicates.
func (c Change) Merge(other Change) Change {
	return Change{
		Updated: appendUnique(c.Updated, other.Updated),
		Deleted: appendUnique(c.Deleted, other.Deleted),
		Moved:   appendUnique(c.Moved, other.Moved),
	}
}

func appendUnique(dst, src []string) []string {
	for _, id := range src {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}

// Index is a backing store that covers part of the identity space, such as
// a document index over a directory root.
type Index interface {
	Covers(id string) bool
	MarkStale()
}

// Patcher is an Index that can apply a change in place. When Patch fails
// the index is marked stale instead.
type Patcher interface {
	Patch(change Change) error
}

// Observer is told about every change notification received.
type Observer interface {
	ObserveChange(kind string, count int)
}

// Tracker turns change notifications into cache evictions, stale indexes
// and coalesced refresh notifications. It is safe for concurrent use.
type Tracker struct {
	logger   logger.Logger
	cache    *itemcache.Cache
	debounce time.Duration
	observer Observer

	mu          sync.Mutex
	indexes     []Index
	subscribers map[int]func(Change)
	nextID      int
	pending     Change
	timer       *time.Timer
	closed      bool
}

func New(logger logger.Logger, cache *itemcache.Cache, debounce time.Duration, observer Observer) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		logger:      logger,
		cache:       cache,
		debounce:    debounce,
		observer:    observer,
		subscribers: make(map[int]func(Change)),
	}
}

// Watch registers an index to be patched or marked stale when a change
// touches identities it covers.
func (t *Tracker) Watch(index Index) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexes = append(t.indexes, index)
}

// Subscribe registers fn for refresh notifications. A notification is sent
// once per debounce window and carries every change received during it.
func (t *Tracker) Subscribe(fn func(Change)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subscribers, id)
	}
}

// OnChanged handles a change notification.
//
// Updated identities lose their own cached data. Deleted and moved
// identities may appear in the derived data of other items (paths,
// references, missing-reference flags), so they drop the whole cache.
func (t *Tracker) OnChanged(updated, deleted, moved []string) {
	change := Change{Updated: updated, Deleted: deleted, Moved: moved}
	if change.Empty() {
		return
	}
	t.observe(change)

	if t.cache != nil {
		if len(deleted) > 0 || len(moved) > 0 {
			t.cache.InvalidateAll()
		} else {
			for _, id := range updated {
				t.cache.Invalidate(id)
			}
		}
	}

	t.mu.Lock()
	indexes := slices.Clone(t.indexes)
	t.mu.Unlock()
	for _, index := range indexes {
		t.applyToIndex(index, change)
	}

	t.schedule(change)
}

func (t *Tracker) observe(change Change) {
	if t.observer == nil {
		return
	}
	t.observer.ObserveChange("updated", len(change.Updated))
	t.observer.ObserveChange("deleted", len(change.Deleted))
	t.observer.ObserveChange("moved", len(change.Moved))
}

func (t *Tracker) applyToIndex(index Index, change Change) {
	covered := Change{
		Updated: covering(index, change.Updated),
		Deleted: covering(index, change.Deleted),
		Moved:   covering(index, change.Moved),
	}
	if covered.Empty() {
		return
	}
	if patcher, ok := index.(Patcher); ok {
		err := patcher.Patch(covered)
		if err == nil {
			return
		}
		t.logger.Warn("could not patch index, marking it stale", "err", err.Error())
	}
	index.MarkStale()
}

func covering(index Index, ids []string) []string {
	var out []string
	for _, id := range ids {
		if index.Covers(id) {
			out = append(out, id)
		}
	}
	return out
}

func (t *Tracker) schedule(change Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.pending = t.pending.Merge(change)
	if t.timer == nil {
		t.timer = time.AfterFunc(t.debounce, t.Flush)
	}
}

// Flush delivers pending notifications now.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	change := t.pending
	t.pending = Change{}
	subscribers := make([]func(Change), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subscribers = append(subscribers, fn)
	}
	t.mu.Unlock()

	if change.Empty() {
		return
	}
	t.logger.Debug("notifying change subscribers", "updated", len(change.Updated), "deleted", len(change.Deleted), "moved", len(change.Moved))
	for _, fn := range subscribers {
		t.notify(fn, change)
	}
}

func (t *Tracker) notify(fn func(Change), change Change) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("change subscriber panicked", "panic", r)
		}
	}()
	fn(change)
}

// Close drops pending notifications and stops scheduling new ones.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = Change{}
}
