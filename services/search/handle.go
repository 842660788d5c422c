package search

import (
	"context"
	"sync"
)

// State is what a handle reports when polled.
type State int

const (
	// Pending means nothing is available yet; poll again next round.
	Pending State = iota
	// Ready carries a batch of items and more may follow.
	Ready
	// Done is the last poll; it may still carry items.
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Done:
		return "done"
	}
	return "unknown"
}

// PollResult is the outcome of one Poll.
type PollResult struct {
	State State
	Items []Item
	Err   error
}

// Handle is the resumable computation a provider returns for one search.
// Poll must never block. Close releases whatever the handle owns and may be
// called more than once.
type Handle interface {
	Poll() PollResult
	Close()
}

type eagerHandle struct {
	items []Item
	done  bool
}

// Items returns a handle that reports all items on the first poll.
func Items(items ...Item) Handle {
	return &eagerHandle{items: items}
}

func (h *eagerHandle) Poll() PollResult {
	if h.done {
		return PollResult{State: Done}
	}
	h.done = true
	return PollResult{State: Done, Items: h.items}
}

func (h *eagerHandle) Close() { h.done = true }

// StepFunc adapts a step function to a Handle. Each call performs one step.
type StepFunc func() PollResult

func (f StepFunc) Poll() PollResult { return f() }

func (f StepFunc) Close() {}

type asyncHandle struct {
	cancel context.CancelFunc
	doneC  chan struct{}
	items  []Item
	err    error
	closed bool
}

// Async runs fetch on its own goroutine. The handle reports Pending until
// fetch returns. Closing the handle cancels the context given to fetch.
func Async(ctx context.Context, fetch func(ctx context.Context) ([]Item, error)) Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &asyncHandle{cancel: cancel, doneC: make(chan struct{})}
	go func() {
		defer close(h.doneC)
		defer func() {
			if r := recover(); r != nil {
				h.err = panicError(r)
			}
		}()
		h.items, h.err = fetch(ctx)
	}()
	return h
}

func (h *asyncHandle) Poll() PollResult {
	if h.closed {
		return PollResult{State: Done}
	}
	select {
	case <-h.doneC:
		h.closed = true
		h.cancel()
		return PollResult{State: Done, Items: h.items, Err: h.err}
	default:
		return PollResult{State: Pending}
	}
}

func (h *asyncHandle) Close() {
	h.closed = true
	h.cancel()
}

type streamHandle struct {
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []Item
	finished bool
	err      error
	closed   bool
}

// Stream runs produce on its own goroutine. Every batch handed to emit is
// reported by the next poll; the handle is Done once produce has returned
// and the queue is drained.
func Stream(ctx context.Context, produce func(ctx context.Context, emit func(items ...Item)) error) Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &streamHandle{cancel: cancel}
	emit := func(items ...Item) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if !h.closed {
			h.queue = append(h.queue, items...)
		}
	}
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
			h.mu.Lock()
			h.finished = true
			h.err = err
			h.mu.Unlock()
		}()
		err = produce(ctx, emit)
	}()
	return h
}

func (h *streamHandle) Poll() PollResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return PollResult{State: Done}
	}
	items := h.queue
	h.queue = nil
	if h.finished {
		h.closed = true
		h.cancel()
		return PollResult{State: Done, Items: items, Err: h.err}
	}
	if len(items) == 0 {
		return PollResult{State: Pending}
	}
	return PollResult{State: Ready, Items: items}
}

func (h *streamHandle) Close() {
	h.mu.Lock()
	h.closed = true
	h.queue = nil
	h.mu.Unlock()
	h.cancel()
}
