package search

import (
	"context"
	"time"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/services/tracker"
)

// SessionConfig holds the timing used by Collect.
type SessionConfig struct {
	PollInterval time.Duration
	// Timeout bounds Collect. Zero means no bound beyond the caller's context.
	Timeout time.Duration
}

// Session owns the provider registry, the shared item cache and the change
// tracker for the lifetime of the service.
type Session struct {
	logger    logger.Logger
	registry  *Registry
	scheduler *Scheduler
	cache     *itemcache.Cache
	tracker   *tracker.Tracker
	cfg       SessionConfig
}

func NewSession(logger logger.Logger, registry *Registry, scheduler *Scheduler, cache *itemcache.Cache, tracker *tracker.Tracker, cfg SessionConfig) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Session{
		logger:    logger,
		registry:  registry,
		scheduler: scheduler,
		cache:     cache,
		tracker:   tracker,
		cfg:       cfg,
	}
}

func (s *Session) Registry() *Registry { return s.registry }

func (s *Session) Cache() *itemcache.Cache { return s.cache }

func (s *Session) Tracker() *tracker.Tracker { return s.tracker }

func (s *Session) PollInterval() time.Duration { return s.cfg.PollInterval }

// Timeout is the bound Collect puts on a search. Zero means none.
func (s *Session) Timeout() time.Duration { return s.cfg.Timeout }

// Search starts a search and returns its running merge. The caller drives
// it with Round or Collect and must Cancel it when abandoning it early.
func (s *Session) Search(ctx context.Context, text string, opts Options) *Results {
	sc := s.registry.BuildContext(ctx, text, opts)
	s.logger.Debug("starting search", "search_id", sc.ID, "query", text, "providers", len(sc.Providers()))
	return s.scheduler.Run(sc, s.registry.Dispatch(sc))
}

// Collect runs a search to completion, or until the configured timeout,
// and returns it with its merged items.
func (s *Session) Collect(ctx context.Context, text string, opts Options) (*Results, []Item) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	results := s.Search(ctx, text, opts)
	items := results.Collect(ctx, s.cfg.PollInterval)
	return results, items
}
