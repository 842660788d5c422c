package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/api/handlers"
	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupRoutes(router *gin.Engine, s *server) {
	router.GET("/health", health(s.cache))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{})))

	handlers.SetupIndex(router, s.logger, s.index, s.cfg.GetExcludedFolders(), s.validator)
	handlers.SetupSearch(router, s.logger, s.session, s.validator)
	handlers.SetupProviders(router, s.logger, s.session.Registry(), s.kvdb, s.validator)
	handlers.SetupChanges(router, s.logger, s.session.Tracker(), s.validator)
}

type healthResponse struct {
	Status      string `json:"status"`
	CacheItems  int    `json:"cache_items"`
	CacheHits   int64  `json:"cache_hits"`
	CacheMisses int64  `json:"cache_misses"`
}

func health(cache *itemcache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		hits, misses := cache.Stats()
		c.JSON(http.StatusOK, healthResponse{
			Status:      "OK",
			CacheItems:  cache.Len(),
			CacheHits:   hits,
			CacheMisses: misses,
		})
	}
}

func newRouter() *gin.Engine {
	router := gin.Default()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
