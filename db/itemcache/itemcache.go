package itemcache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Field names one piece of derived data kept per item.
type Field string

const (
	FieldWords   Field = "words"
	FieldPath    Field = "path"
	FieldRefs    Field = "refs"
	FieldMissing Field = "missing"
)

// Cache holds lazily computed derived data per item identity. Reads are
// concurrent; writes are serialized per identity and the first computed
// value for a field wins.
type Cache struct {
	mu      sync.RWMutex
	records map[string]*record

	generation atomic.Uint64
	group      singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	observer func(hit bool)
}

type record struct {
	generation uint64
	mu         sync.RWMutex
	fields     map[Field]any
}

type Option func(*Cache)

// WithObserver registers a callback run on every lookup.
func WithObserver(fn func(hit bool)) Option {
	return func(c *Cache) { c.observer = fn }
}

func New(opts ...Option) *Cache {
	c := &Cache{records: make(map[string]*record)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) record(id string) *record {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if ok {
		return rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[id]; ok {
		return rec
	}
	rec = &record{generation: c.generation.Add(1), fields: make(map[Field]any)}
	c.records[id] = rec
	return rec
}

func (c *Cache) observe(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.observer != nil {
		c.observer(hit)
	}
}

// GetOrCompute returns the cached field for id, calling compute when it is
// missing. Concurrent callers for the same field share one computation.
// Errors are returned but never cached.
func (c *Cache) GetOrCompute(id string, field Field, compute func() (any, error)) (any, error) {
	rec := c.record(id)

	rec.mu.RLock()
	v, ok := rec.fields[field]
	rec.mu.RUnlock()
	if ok {
		c.observe(true)
		return v, nil
	}
	c.observe(false)

	key := id + "\x00" + string(field) + "\x00" + strconv.FormatUint(rec.generation, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		rec.mu.RLock()
		existing, ok := rec.fields[field]
		rec.mu.RUnlock()
		if ok {
			return existing, nil
		}

		computed, err := compute()
		if err != nil {
			return nil, err
		}

		rec.mu.Lock()
		defer rec.mu.Unlock()
		if existing, ok := rec.fields[field]; ok {
			return existing, nil
		}
		rec.fields[field] = computed
		return computed, nil
	})
	return v, err
}

// peek returns a cached field without computing it.
func (c *Cache) peek(id string, field Field) (any, bool) {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	v, ok := rec.fields[field]
	return v, ok
}

// Invalidate drops every field cached for id. A computation already in
// flight for id finishes into a detached record and is not seen again.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.records, id)
	c.mu.Unlock()
}

// InvalidateAll drops everything. Used when a change may affect derived
// data of items other than the one that changed.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.records = make(map[string]*record)
	c.mu.Unlock()
}

// Len returns the number of identities with a record.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Stats returns the lookup counts since the cache was created.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Get is GetOrCompute with a typed result. A nil cache computes every time.
func Get[V any](c *Cache, id string, field Field, compute func() (V, error)) (V, error) {
	if c == nil {
		return compute()
	}
	v, err := c.GetOrCompute(id, field, func() (any, error) { return compute() })
	if err != nil {
		var zero V
		return zero, err
	}
	typed, ok := v.(V)
	if !ok {
		// a different type was stored under this field; recompute rather than fail
		return compute()
	}
	return typed, nil
}
