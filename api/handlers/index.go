package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/services/index"
	"github.com/meghashyamc/omnisearch/validation"
)

const (
	indexStatusInProgress = "in_progress"
	indexStatusComplete   = "complete"
	indexStatusFailed     = "failed"
)

type IndexRequest struct {
	Path string `json:"path" validate:"required,valid_path"`
}

type IndexResponse struct {
	ID string `json:"id"`
}

type IndexStatusRequest struct {
	ID string `uri:"id" validate:"required,uuid"`
}

type IndexStatusResponse struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
}

func SetupIndex(router gin.IRouter, logger logger.Logger, service *index.Service, excludeFolders []string, validator *validation.Validator) {
	router.POST("/index", handleIndex(service, excludeFolders, logger, validator))
	router.GET("/index/:id", handleIndexStatus(service, logger, validator))
}

func handleIndex(service *index.Service, excludeFolders []string, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected parameters from index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		requestID := uuid.New().String()
		if err := service.Build(request.Path, excludeFolders, requestID); err != nil {
			if errors.Is(err, index.ErrBuildInProgress) {
				c.Abort()
				writeResponse(c, nil, http.StatusConflict, []string{err.Error()})
				return
			}
			logger.Warn("could not create index", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, IndexResponse{ID: requestID}, http.StatusAccepted, nil)
	}
}

// handleIndexStatus answers 200 once a build is complete and 202 while it
// is still running.
func handleIndexStatus(service *index.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexStatusRequest{}
		if err := c.ShouldBindUri(&request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request path parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate index status request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		progress, err := service.GetStatus(request.ID)
		if err != nil {
			if errors.Is(err, kvdb.ErrNotFound) {
				c.Abort()
				writeResponse(c, nil, http.StatusNotFound, []string{"index request not found"})
				return
			}
			logger.Error("could not get index status", "request_id", request.ID, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		response := IndexStatusResponse{ID: request.ID, Progress: progress, Status: indexStatusInProgress}
		switch progress {
		case index.ProgressStatusComplete:
			response.Status = indexStatusComplete
			writeResponse(c, response, http.StatusOK, nil)
		case index.ProgressStatusFailed:
			response.Status = indexStatusFailed
			writeResponse(c, response, http.StatusInternalServerError, []string{"index build failed"})
		default:
			writeResponse(c, response, http.StatusAccepted, nil)
		}
	}
}
