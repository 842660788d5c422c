package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/config"
	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/db/searchdb"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/metrics"
	"github.com/meghashyamc/omnisearch/providers/catalog"
	"github.com/meghashyamc/omnisearch/providers/content"
	"github.com/meghashyamc/omnisearch/providers/files"
	"github.com/meghashyamc/omnisearch/providers/objects"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/index"
	"github.com/meghashyamc/omnisearch/services/search"
	"github.com/meghashyamc/omnisearch/services/tracker"
	"github.com/meghashyamc/omnisearch/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	logger     logger.Logger

	kvdb      kvdb.DB
	searchdb  searchdb.DB
	validator *validation.Validator

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics
	cache        *itemcache.Cache
	tracker      *tracker.Tracker
	watcher      *tracker.Watcher
	index        *index.Service
	session      *search.Session
}

func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)

	defer cancel()

	s := &server{
		cfg:    cfg,
		logger: logger.New(cfg.GetLogLevel()),
	}
	if err := s.setupDependencies(ctx); err != nil {
		return err
	}
	s.setupRouter()
	s.setupHTTPServer()
	s.setupGracefulShutdown(ctx)

	return nil
}

func (s *server) setupDependencies(ctx context.Context) error {
	var err error
	s.kvdb, err = kvdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating kvDB", "err", err.Error())
		return err
	}
	s.searchdb, err = searchdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating searchDB", "err", err.Error())
		return err
	}
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		return err
	}

	s.promRegistry = prometheus.NewRegistry()
	s.promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.New(s.promRegistry)

	s.cache = itemcache.New(itemcache.WithObserver(s.metrics.ObserveCacheLookup))
	s.metrics.WatchCache(s.cache.Len)
	s.tracker = tracker.New(s.logger, s.cache, s.cfg.GetTrackerDebounce(), s.metrics)

	s.index = index.New(ctx, s.logger, s.searchdb, s.kvdb, index.Options{
		BatchSize:        s.cfg.GetBatchSize(),
		ReindexPerSecond: s.cfg.GetRescanPerSecond(),
	})
	s.tracker.Watch(s.index)

	roots, exclude := s.cfg.GetFileRoots(), s.cfg.GetExcludedFolders()
	fileIndex := files.NewIndex(s.logger, roots, exclude, s.cfg.GetRescanPerSecond())
	fileIndex.Start(ctx)
	s.tracker.Watch(fileIndex)

	if s.cfg.GetTrackerWatch() && len(roots) > 0 {
		s.watcher, err = tracker.NewWatcher(s.logger, s.tracker, fileIndex.Roots(), exclude)
		if err != nil {
			s.logger.Error("error creating filesystem watcher", "err", err.Error())
			return err
		}
		go s.watcher.Run(ctx)
	}

	graph, err := s.loadScene()
	if err != nil {
		return err
	}

	fuzzyMinScore := s.cfg.GetFuzzyMinScore()
	queryOpts := query.Options{
		Strict:        s.cfg.GetStrictFilters(),
		FuzzyMinScore: &fuzzyMinScore,
	}
	registry := search.NewRegistry(s.logger, s.metrics)
	providers := []search.Provider{
		objects.New(s.logger, graph, s.cache, queryOpts),
		files.New(s.logger, fileIndex, s.cache, queryOpts, files.Options{BatchSize: s.cfg.GetBatchSize()}),
		content.New(s.logger, s.searchdb, queryOpts, 0),
	}
	if url := s.cfg.GetCatalogURL(); url != "" {
		client := catalog.NewClient(s.logger, url, s.cfg.GetCatalogTimeout())
		providers = append(providers, catalog.New(s.logger, client, s.cache, queryOpts, 0))
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			s.logger.Error("error registering search provider", "err", err.Error())
			return err
		}
	}

	s.session = search.NewSession(s.logger, registry, search.NewScheduler(s.logger, s.metrics), s.cache, s.tracker, search.SessionConfig{
		PollInterval: s.cfg.GetPollInterval(),
		Timeout:      s.cfg.GetSearchTimeout(),
	})

	return nil
}

// loadScene reads the configured scene, or starts with an empty object
// graph when none is configured.
func (s *server) loadScene() (*objects.Graph, error) {
	path := s.cfg.GetScenePath()
	if path == "" {
		return objects.NewGraph(s.logger, s.tracker)
	}
	graph, err := objects.LoadScene(s.logger, s.tracker, path)
	if err != nil {
		s.logger.Error("error loading scene", "path", path, "err", err.Error())
		return nil, err
	}
	return graph, nil
}

func (s *server) setupRouter() {
	router := newRouter()

	router.Use(loggingMiddleware(s.logger))

	setupRoutes(router, s)

	s.router = router
}

func (s *server) setupHTTPServer() {

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.GetPort()),
		Handler: s.router.Handler(),
	}
	s.httpServer = httpServer
	go func() {
		s.logger.Info("starting http server", "addr", httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
}

func (s *server) setupGracefulShutdown(ctx context.Context) {

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.logger.Info("starting to shut down http server")
		shutdownCtx := context.Background()
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down http server", "err", err)
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.tracker.Close()
		s.kvdb.Close()
		s.searchdb.Close()
		s.logger.Info("shut down http server successfully")
	}()

	wg.Wait()
}
