package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleChangesValidation(t *testing.T) {
	testCases := []testCase{
		{
			name:           "NoRequestBody",
			requestHeaders: defaultTestRequestHeaders,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "BlankIdentity",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"updated": []string{"  "}},
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "NullByte",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{"moved": []string{"a\x00b"}},
			expectedStatus: http.StatusNotAcceptable,
		},
		{
			name:           "EmptyLists",
			requestHeaders: defaultTestRequestHeaders,
			requestBody:    map[string]any{},
			expectedStatus: http.StatusNoContent,
		},
	}

	assert := require.New(t)
	server := setupTestServer(t, assert)

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/changes", testCase.requestHeaders, testCase.requestBody, nil)
			assert.Equal(testCase.expectedStatus, w.Code, fmt.Sprintf("response gotten was %s", w.Body.String()))
		})
	}
}

func TestHandleChangesPatchesFileIndex(t *testing.T) {
	assert := require.New(t)
	server := setupTestServer(t, assert)

	search := func(query string) []string {
		w := makeTestHTTPRequest(server.router, assert, http.MethodGet, "/search", nil, nil, map[string]string{"query": query})
		assert.Equal(http.StatusOK, w.Code)
		response := SearchResponse{}
		decodeData(assert, w, &response)
		return resultIDs(response.Results)
	}

	removed := filepath.Join(server.root, "file1.txt")
	added := filepath.Join(server.root, "file6.txt")
	assert.Contains(search("file1"), removed)

	assert.NoError(os.Remove(removed))
	assert.NoError(os.WriteFile(added, []byte("new file"), 0644))

	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/changes", defaultTestRequestHeaders, map[string]any{
		"deleted": []string{removed},
		"updated": []string{added},
	}, nil)
	assert.Equal(http.StatusNoContent, w.Code, w.Body.String())

	assert.NotContains(search("file1"), removed)
	assert.Contains(search("file6"), added)
}
