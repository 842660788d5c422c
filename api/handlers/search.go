package handlers

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/services/search"
	"github.com/meghashyamc/omnisearch/services/tracker"
	"github.com/meghashyamc/omnisearch/validation"
)

const defaultResultsPerPage = 20

const (
	eventItems   = "items"
	eventDone    = "done"
	eventChanged = "changed"
)

type SearchRequest struct {
	Query     string   `form:"query" validate:"required,valid_query,min=1,max=1000"`
	PerPage   int      `form:"per_page" validate:"min=0,max=100"`
	Page      int      `form:"page" validate:"min=0"`
	More      bool     `form:"more"`
	Sync      bool     `form:"sync"`
	Providers []string `form:"provider" validate:"valid_ids"`
	// Watch keeps a stream open after the search is done and reports
	// tracked changes until the client goes away.
	Watch bool `form:"watch"`
}

func (r *SearchRequest) setDefaults() {
	if r.PerPage == 0 {
		r.PerPage = defaultResultsPerPage
	}

	if r.Page == 0 {
		r.Page = 1
	}
}

func (r *SearchRequest) options() search.Options {
	opts := search.Options{Providers: r.Providers}
	if r.More {
		opts.Flags |= search.FlagWantsMore
	}
	if r.Sync {
		opts.Flags |= search.FlagSynchronous
	}
	return opts
}

type SearchResponse struct {
	Results        []search.Item          `json:"results"`
	PageDetails    Pagination             `json:"page_details"`
	Complete       bool                   `json:"complete"`
	QueryErrors    []search.QueryError    `json:"query_errors"`
	ProviderErrors []search.ProviderError `json:"provider_errors"`
}

// StreamSummary is the payload of the final event of a streamed search.
type StreamSummary struct {
	Total          int                    `json:"total"`
	Complete       bool                   `json:"complete"`
	QueryErrors    []search.QueryError    `json:"query_errors"`
	ProviderErrors []search.ProviderError `json:"provider_errors"`
}

func SetupSearch(router gin.IRouter, logger logger.Logger, session *search.Session, validator *validation.Validator) {
	router.GET("/search", handleSearch(session, logger, validator))
	router.GET("/search/stream", handleSearchStream(session, logger, validator))
}

func bindSearchRequest(c *gin.Context, logger logger.Logger, validator *validation.Validator) (SearchRequest, bool) {
	request := SearchRequest{}
	if err := c.ShouldBindQuery(&request); err != nil {
		logger.Warn("could not extract expected params from search request", "err", err.Error())
		c.Abort()
		writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
		return request, false
	}
	request.setDefaults()

	if err := validator.Validate(request); err != nil {
		logger.Warn("could not validate search request", "err", err.Error())
		c.Abort()
		writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
		return request, false
	}
	return request, true
}

func handleSearch(session *search.Session, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, ok := bindSearchRequest(c, logger, validator)
		if !ok {
			return
		}

		results, items := session.Collect(c.Request.Context(), request.Query, request.options())
		sc := results.Context()

		limit := request.PerPage
		offset := (request.Page - 1) * request.PerPage
		searchResponse := SearchResponse{
			Results:        page(items, limit, offset),
			PageDetails:    calculatePagination(len(items), limit, offset),
			Complete:       results.Complete(),
			QueryErrors:    sc.QueryErrors(),
			ProviderErrors: sc.Errors(),
		}

		writeResponse(c, searchResponse, http.StatusOK, nil)
	}
}

// changeFeed coalesces tracker notifications until the stream gets to
// send them.
type changeFeed struct {
	mu      sync.Mutex
	pending tracker.Change
	ready   chan struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{ready: make(chan struct{}, 1)}
}

func (f *changeFeed) push(change tracker.Change) {
	f.mu.Lock()
	f.pending = f.pending.Merge(change)
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *changeFeed) take() tracker.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	change := f.pending
	f.pending = tracker.Change{}
	return change
}

// handleSearchStream sends the items of every scheduling round as an
// "items" event and a "done" event carrying the summary. Tracked changes
// that arrive while the stream is open are sent as "changed" events so the
// client knows to refresh; with watch set the stream stays open for them
// after the search is done.
func handleSearchStream(session *search.Session, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request, ok := bindSearchRequest(c, logger, validator)
		if !ok {
			return
		}

		requestCtx := c.Request.Context()
		ctx := requestCtx
		if timeout := session.Timeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		feed := newChangeFeed()
		if changes := session.Tracker(); changes != nil {
			unsubscribe := changes.Subscribe(feed.push)
			defer unsubscribe()
		}

		results := session.Search(ctx, request.Query, request.options())
		defer results.Cancel()

		ticker := time.NewTicker(session.PollInterval())
		defer ticker.Stop()

		tick := ticker.C
		searchDone := ctx.Done()
		finished := false

		c.Stream(func(w io.Writer) bool {
			if !finished {
				if added := results.Round(); len(added) > 0 {
					c.SSEvent(eventItems, added)
				}
				if results.Done() {
					sc := results.Context()
					c.SSEvent(eventDone, StreamSummary{
						Total:          len(results.Items()),
						Complete:       results.Complete(),
						QueryErrors:    sc.QueryErrors(),
						ProviderErrors: sc.Errors(),
					})
					if !request.Watch {
						return false
					}
					finished = true
					tick, searchDone = nil, nil
					return true
				}
			}

			select {
			case <-feed.ready:
				c.SSEvent(eventChanged, feed.take())
			case <-searchDone:
				logger.Info("streamed search stopped", "search_id", results.Context().ID, "reason", ctx.Err())
				results.Cancel()
			case <-requestCtx.Done():
				return false
			case <-tick:
			}
			return true
		})
	}
}
