package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/meghashyamc/omnisearch/logger"
)

// Provider is an independent data source. Fetch starts the work for one
// search and returns immediately with a handle the scheduler polls.
type Provider interface {
	Info() Info
	Fetch(sc *Context) (Handle, error)
}

// Dispatched is a provider handle started for one search.
type Dispatched struct {
	Info   Info
	Handle Handle
}

// Registry holds the registered providers and their active state.
type Registry struct {
	logger   logger.Logger
	observer Observer

	mu        sync.RWMutex
	providers []Provider
	byID      map[string]Provider
	active    map[string]bool
}

func NewRegistry(logger logger.Logger, observer Observer) *Registry {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		logger:   logger,
		observer: observer,
		byID:     make(map[string]Provider),
		active:   make(map[string]bool),
	}
}

// Register adds an active provider.
func (r *Registry) Register(p Provider) error {
	info := p.Info()
	if info.ID == "" {
		return errors.New("provider id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[info.ID]; exists {
		return fmt.Errorf("provider %s already registered", info.ID)
	}
	r.providers = append(r.providers, p)
	r.byID[info.ID] = p
	r.active[info.ID] = true
	r.logger.Info("registered search provider", "provider", info.ID, "priority", info.Priority, "prefix", info.FilterPrefix)
	return nil
}

func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return &NotFoundError{Provider: id}
	}
	r.active[id] = active
	return nil
}

func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Providers returns every registered provider ordered by priority.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	providers := slices.Clone(r.providers)
	r.mu.RUnlock()
	slices.SortStableFunc(providers, func(a, b Provider) int {
		return a.Info().Priority - b.Info().Priority
	})
	return providers
}

// BuildContext selects the providers that take part in a search for text.
//
// A query starting with the filter prefix of an active provider is sent to
// that provider only, with the prefix removed, even if it is explicit only.
// Otherwise every active provider runs except explicit-only ones, WantsMore
// providers unless FlagWantsMore is set, and providers that cannot answer
// synchronously when FlagSynchronous is set.
func (r *Registry) BuildContext(ctx context.Context, text string, opts Options) *Context {
	trimmed := strings.TrimSpace(text)

	if p, rest, ok := r.matchPrefix(trimmed); ok {
		return newContext(ctx, text, rest, opts, []Provider{p})
	}

	var selected []Provider
	for _, p := range r.Providers() {
		info := p.Info()
		if !r.IsActive(info.ID) {
			continue
		}
		named := slices.Contains(opts.Providers, info.ID)
		if len(opts.Providers) > 0 && !named {
			continue
		}
		if info.Has(ExplicitOnly) && !named {
			continue
		}
		if info.Has(WantsMore) && opts.Flags&FlagWantsMore == 0 && !named {
			continue
		}
		if opts.Flags&FlagSynchronous != 0 && !info.Has(SupportsSync) {
			continue
		}
		selected = append(selected, p)
	}
	return newContext(ctx, text, trimmed, opts, selected)
}

// matchPrefix finds the active provider with the longest filter prefix that
// starts text.
func (r *Registry) matchPrefix(text string) (Provider, string, bool) {
	lower := strings.ToLower(text)
	var best Provider
	bestLen := 0
	for _, p := range r.Providers() {
		info := p.Info()
		prefix := strings.ToLower(info.FilterPrefix)
		if prefix == "" || !r.IsActive(info.ID) {
			continue
		}
		if strings.HasPrefix(lower, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, text[bestLen:], true
}

// Dispatch starts every provider selected in sc. A provider that fails to
// start is recorded on sc and skipped.
func (r *Registry) Dispatch(sc *Context) []Dispatched {
	dispatched := make([]Dispatched, 0, len(sc.Providers()))
	for _, p := range sc.Providers() {
		info := p.Info()
		handle, err := fetch(p, sc)
		if err != nil {
			r.logger.Warn("search provider failed to start", "provider", info.ID, "search_id", sc.ID, "err", err.Error())
			r.observer.ObserveProviderError(info.ID)
			sc.AddError(info.ID, err)
			continue
		}
		if handle == nil {
			continue
		}
		dispatched = append(dispatched, Dispatched{Info: info, Handle: handle})
	}
	return dispatched
}

func fetch(p Provider, sc *Context) (handle Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, panicError(r)
		}
	}()
	return p.Fetch(sc)
}
