package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/meghashyamc/omnisearch/query"
)

// Options are the caller's choices for one search.
type Options struct {
	Flags Flags
	// Subset limits the search to these item ids when non-empty.
	Subset []string
	// Providers limits the search to these provider ids when non-empty.
	Providers []string
}

// QueryError is a syntax or resolution error a provider found in the query.
type QueryError struct {
	Provider string `json:"provider"`
	query.Error
}

// Context is the per-search state shared by the dispatcher, the providers
// and the scheduler. It is safe for concurrent use.
type Context struct {
	ID string
	// Text is the raw query.
	Text string
	// SearchText is Text without a provider filter prefix.
	SearchText string
	Flags      Flags

	subset    map[string]struct{}
	providers []Provider

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	errs        []ProviderError
	queryErrors []QueryError
}

func newContext(parent context.Context, text, searchText string, opts Options, providers []Provider) *Context {
	ctx, cancel := context.WithCancel(parent)
	sc := &Context{
		ID:         uuid.NewString(),
		Text:       text,
		SearchText: strings.TrimSpace(searchText),
		Flags:      opts.Flags,
		providers:  providers,
		ctx:        ctx,
		cancel:     cancel,
	}
	if len(opts.Subset) > 0 {
		sc.subset = make(map[string]struct{}, len(opts.Subset))
		for _, id := range opts.Subset {
			sc.subset[id] = struct{}{}
		}
	}
	return sc
}

// Context returns the cancellation context of the search. Providers pass it
// to any blocking work they start.
func (c *Context) Context() context.Context { return c.ctx }

func (c *Context) Cancel() { c.cancel() }

func (c *Context) Cancelled() bool { return c.ctx.Err() != nil }

func (c *Context) Has(f Flags) bool { return c.Flags&f != 0 }

// InSubset reports whether id passes the subset constraint of the search.
func (c *Context) InSubset(id string) bool {
	if c.subset == nil {
		return true
	}
	_, ok := c.subset[id]
	return ok
}

// Providers returns the providers selected for this search, by priority.
func (c *Context) Providers() []Provider {
	return c.providers
}

func (c *Context) AddError(provider string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, ProviderError{Provider: provider, Reason: err.Error()})
}

func (c *Context) AddQueryErrors(provider string, errs []query.Error) {
	if len(errs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range errs {
		c.queryErrors = append(c.queryErrors, QueryError{Provider: provider, Error: e})
	}
}

func (c *Context) Errors() []ProviderError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ProviderError(nil), c.errs...)
}

func (c *Context) QueryErrors() []QueryError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]QueryError(nil), c.queryErrors...)
}

func panicError(r any) error {
	return fmt.Errorf("panic: %v", r)
}
