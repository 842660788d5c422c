package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/meghashyamc/omnisearch/logger"
)

const maxResponseBytes = 4 << 20

var ErrCatalogUnavailable = errors.New("package catalog unavailable")

// Package is one entry of the remote catalog.
type Package struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Deprecated  bool     `json:"deprecated,omitempty"`
	Homepage    string   `json:"homepage,omitempty"`
}

type searchResponse struct {
	Total    int       `json:"total"`
	Packages []Package `json:"packages"`
}

// Client queries a package catalog over HTTP. The catalog answers
// GET <url>?q=<text>&size=<limit> with {"total": n, "packages": [...]}.
type Client struct {
	logger     logger.Logger
	httpClient *http.Client
	baseURL    string
}

func NewClient(logger logger.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

func (c *Client) Search(ctx context.Context, text string, limit int) ([]Package, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog url %q: %w", c.baseURL, err)
	}
	params := u.Query()
	params.Set("q", text)
	params.Set("size", strconv.Itoa(limit))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed", "url", c.baseURL, "err", err.Error())
		return nil, fmt.Errorf("%w: %s", ErrCatalogUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("catalog returned an error status", "url", c.baseURL, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrCatalogUnavailable, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("could not decode catalog response: %w", err)
	}

	c.logger.Debug("catalog search finished", "query", text, "packages", len(body.Packages), "total", body.Total, "took", time.Since(start).String())
	return body.Packages, nil
}
