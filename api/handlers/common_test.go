// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/config"
	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/db/searchdb"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/providers/content"
	"github.com/meghashyamc/omnisearch/providers/files"
	"github.com/meghashyamc/omnisearch/providers/objects"
	"github.com/meghashyamc/omnisearch/query"
	"github.com/meghashyamc/omnisearch/services/index"
	"github.com/meghashyamc/omnisearch/services/search"
	"github.com/meghashyamc/omnisearch/services/tracker"
	"github.com/meghashyamc/omnisearch/validation"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   *gin.Engine
	root     string
	searchDB *searchdb.BleveDB
	kvDB     *kvdb.BoltDB
	session  *search.Session
	tracker  *tracker.Tracker
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func writeTestFiles(assert *require.Assertions, root string) {
	for relPath, content := range testFiles {
		fullPath := filepath.Join(root, relPath)
		err := os.MkdirAll(filepath.Dir(fullPath), 0755)
		assert.NoError(err, "could not create test sub-directory")
		err = os.WriteFile(fullPath, []byte(content), 0644)
		assert.NoError(err, "could not write test file")
	}
}

func setupTestServer(t *testing.T, assert *require.Assertions) *testServer {

	cfg, err := config.Load("test")
	assert.NoError(err, "could not load config")

	dataDir := t.TempDir()
	cfg.Set("database.kvdb_path", filepath.Join(dataDir, "omnisearch.db"))
	cfg.Set("database.index_path", filepath.Join(dataDir, "index.bleve"))

	root := t.TempDir()
	writeTestFiles(assert, root)

	ctx, cancel := context.WithCancel(context.Background())
	testLogger := newTestLogger()

	searchDB, err := searchdb.New(testLogger, cfg)
	assert.NoError(err, "could not create search database")
	kvDB, err := kvdb.New(testLogger, cfg)
	assert.NoError(err, "could not create kv database")
	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	cache := itemcache.New()
	changes := tracker.New(testLogger, cache, cfg.GetTrackerDebounce(), nil)

	indexService := index.New(ctx, testLogger, searchDB, kvDB, index.Options{BatchSize: cfg.GetBatchSize()})
	changes.Watch(indexService)

	fileIndex := files.NewIndex(testLogger, []string{root}, cfg.GetExcludedFolders(), cfg.GetRescanPerSecond())
	fileIndex.Start(ctx)
	changes.Watch(fileIndex)
	select {
	case <-fileIndex.Ready():
	case <-time.After(5 * time.Second):
		assert.Fail("file index was not ready in time")
	}

	graph, err := objects.LoadScene(testLogger, changes, testScenePath)
	assert.NoError(err, "could not load test scene")

	registry := search.NewRegistry(testLogger, nil)
	queryOpts := query.Options{}
	assert.NoError(registry.Register(objects.New(testLogger, graph, cache, queryOpts)))
	assert.NoError(registry.Register(files.New(testLogger, fileIndex, cache, queryOpts, files.Options{})))
	assert.NoError(registry.Register(content.New(testLogger, searchDB, queryOpts, 0)))

	session := search.NewSession(testLogger, registry, search.NewScheduler(testLogger, nil), cache, changes, search.SessionConfig{
		PollInterval: cfg.GetPollInterval(),
		Timeout:      cfg.GetSearchTimeout(),
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()

	SetupIndex(router, testLogger, indexService, cfg.GetExcludedFolders(), validator)
	SetupSearch(router, testLogger, session, validator)
	SetupProviders(router, testLogger, registry, kvDB, validator)
	SetupChanges(router, testLogger, changes, validator)

	t.Cleanup(func() {
		cancel()
		changes.Close()
		assert.NoError(searchDB.Close(), "could not close search database")
		assert.NoError(kvDB.Close(), "could not close kv database")
	})

	return &testServer{
		router:   router,
		root:     root,
		searchDB: searchDB,
		kvDB:     kvDB,
		session:  session,
		tracker:  changes,
	}
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		values := url.Values{}
		for key, value := range queryParams {
			values.Set(key, value)
		}
		endpoint = endpoint + "?" + values.Encode()
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	slog.Info("Making test request", "method", method, "endpoint", endpoint, "headers", headers, "body", string(jsonBody))

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

// decodeData unmarshals the data field of a response envelope into out.
func decodeData(assert *require.Assertions, w *httptest.ResponseRecorder, out any) {
	envelope := struct {
		Data   json.RawMessage `json:"data"`
		Errors []string        `json:"errors"`
	}{}
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &envelope), "could not unmarshal response %s", w.Body.String())
	assert.NoError(json.Unmarshal(envelope.Data, out), "could not unmarshal response data %s", string(envelope.Data))
}
