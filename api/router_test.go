package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/stretchr/testify/require"
)

func TestHealthReportsCache(t *testing.T) {
	assert := require.New(t)
	gin.SetMode(gin.TestMode)

	cache := itemcache.New()
	for _, id := range []string{"a", "a", "b"} {
		_, err := itemcache.Get(cache, id, itemcache.FieldWords, func() ([]string, error) { return []string{id}, nil })
		assert.NoError(err)
	}

	router := gin.New()
	router.GET("/health", health(cache))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(http.StatusOK, rec.Code)

	var body healthResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(healthResponse{Status: "OK", CacheItems: 2, CacheHits: 1, CacheMisses: 2}, body)
}
