package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/services/tracker"
	"github.com/meghashyamc/omnisearch/validation"
)

// ChangesRequest reports identities that changed outside the service, such
// as files edited by another tool.
type ChangesRequest struct {
	Updated []string `json:"updated" validate:"valid_ids"`
	Deleted []string `json:"deleted" validate:"valid_ids"`
	Moved   []string `json:"moved" validate:"valid_ids"`
}

func SetupChanges(router gin.IRouter, logger logger.Logger, tracker *tracker.Tracker, validator *validation.Validator) {
	router.POST("/changes", handleChanges(tracker, logger, validator))
}

func handleChanges(tracker *tracker.Tracker, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := ChangesRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected parameters from changes request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		tracker.OnChanged(request.Updated, request.Deleted, request.Moved)
		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
