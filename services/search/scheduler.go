package search

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/meghashyamc/omnisearch/logger"
)

const defaultPollInterval = 10 * time.Millisecond

// Observer receives scheduling events, typically to record metrics.
type Observer interface {
	ObservePoll(provider string, state State)
	ObserveProviderError(provider string)
	ObserveSearch(status string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(string, State)           {}
func (nopObserver) ObserveProviderError(string)         {}
func (nopObserver) ObserveSearch(string, time.Duration) {}

// Scheduler drives dispatched handles to completion.
type Scheduler struct {
	logger   logger.Logger
	observer Observer
}

func NewScheduler(logger logger.Logger, observer Observer) *Scheduler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Scheduler{logger: logger, observer: observer}
}

// Run returns the merged result stream for the dispatched handles. Nothing
// is polled until Round is called.
func (s *Scheduler) Run(sc *Context, dispatched []Dispatched) *Results {
	r := &Results{
		scheduler: s,
		sc:        sc,
		seen:      make(map[string]struct{}),
		started:   time.Now(),
	}
	for _, d := range dispatched {
		r.running = append(r.running, &running{info: d.Info, handle: d.Handle})
	}
	if len(r.running) == 0 {
		r.finished = true
	}
	return r
}

type running struct {
	info   Info
	handle Handle
	done   bool
}

func (h *running) close() {
	if h.done {
		return
	}
	h.done = true
	h.handle.Close()
}

// Results is the running merge of one search. Items are kept ordered by
// score, then provider priority, then arrival.
type Results struct {
	scheduler *Scheduler
	sc        *Context
	started   time.Time

	mu        sync.Mutex
	running   []*running
	items     []Item
	seen      map[string]struct{}
	arrival   int64
	rounds    int
	finished  bool
	cancelled bool
}

func (r *Results) Context() *Context { return r.sc }

// Round polls every open handle once and merges what they report. It
// returns the items added in this round in merge order.
func (r *Results) Round() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return nil
	}
	if r.sc.Cancelled() {
		r.cancelled = true
		r.closeAll()
		return nil
	}
	r.rounds++

	var added []Item
	open := 0
	for _, h := range r.running {
		if h.done {
			continue
		}
		res := r.poll(h)
		r.scheduler.observer.ObservePoll(h.info.ID, res.State)
		if res.Err != nil {
			r.scheduler.logger.Warn("search provider reported an error", "provider", h.info.ID, "search_id", r.sc.ID, "err", res.Err.Error())
			r.scheduler.observer.ObserveProviderError(h.info.ID)
			r.sc.AddError(h.info.ID, res.Err)
		}

		switch res.State {
		case Pending:
			if r.sc.Has(FlagSynchronous) {
				h.close()
			}
		case Ready:
			added = append(added, r.accept(h, res.Items)...)
		case Done:
			added = append(added, r.accept(h, res.Items)...)
			h.close()
		}
		if !h.done {
			open++
		}
	}

	if len(added) > 0 {
		slices.SortFunc(added, compareItems)
		r.items = append(r.items, added...)
		slices.SortFunc(r.items, compareItems)
	}
	if open == 0 {
		r.finished = true
		r.scheduler.logger.Debug("search finished", "search_id", r.sc.ID, "rounds", r.rounds, "items", len(r.items))
	}
	return added
}

func (r *Results) poll(h *running) (res PollResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = PollResult{State: Done, Err: panicError(rec)}
		}
	}()
	return h.handle.Poll()
}

func (r *Results) accept(h *running, items []Item) []Item {
	accepted := make([]Item, 0, len(items))
	for _, item := range items {
		key := h.info.ID + "\x00" + item.ID
		if _, dup := r.seen[key]; dup {
			continue
		}
		r.seen[key] = struct{}{}
		r.arrival++
		item.Provider = h.info.ID
		item.priority = h.info.Priority
		item.arrival = r.arrival
		accepted = append(accepted, item)
	}
	return accepted
}

func compareItems(a, b Item) int {
	if c := cmp.Compare(a.Score, b.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.priority, b.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.arrival, b.arrival)
}

func (r *Results) closeAll() {
	for _, h := range r.running {
		h.close()
	}
	r.finished = true
}

// Cancel stops the search. Open handles are closed and never polled again;
// items merged so far stay available.
func (r *Results) Cancel() {
	r.sc.Cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.cancelled = true
	}
	r.closeAll()
}

func (r *Results) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Complete reports whether every provider finished before the search was
// cancelled.
func (r *Results) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished && !r.cancelled
}

// Items returns a snapshot of the merged items.
func (r *Results) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

func (r *Results) Rounds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds
}

// Collect runs rounds every interval until all handles are done or ctx
// ends, in which case the search is cancelled. It returns the merged items.
func (r *Results) Collect(ctx context.Context, interval time.Duration) []Item {
	status := "ok"
	defer func() {
		r.scheduler.observer.ObserveSearch(status, time.Since(r.started))
	}()

	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.Round()
		if r.Done() {
			if !r.Complete() {
				status = "cancelled"
			}
			return r.Items()
		}
		select {
		case <-ctx.Done():
			r.Cancel()
			status = "cancelled"
			return r.Items()
		case <-ticker.C:
		}
	}
}
