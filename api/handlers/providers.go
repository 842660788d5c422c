package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/omnisearch/db/kvdb"
	"github.com/meghashyamc/omnisearch/logger"
	"github.com/meghashyamc/omnisearch/services/search"
	"github.com/meghashyamc/omnisearch/validation"
)

type ProviderResponse struct {
	search.Info
	Active bool `json:"active"`
}

type ProviderStateRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetupProviders restores the persisted activation of every registered
// provider and adds the routes that list and toggle them.
func SetupProviders(router gin.IRouter, logger logger.Logger, registry *search.Registry, kvDB kvdb.DB, validator *validation.Validator) {
	restoreProviderStates(logger, registry, kvDB)
	router.GET("/providers", handleListProviders(registry))
	router.PUT("/providers/:id", handleSetProviderState(registry, kvDB, logger, validator))
}

func restoreProviderStates(logger logger.Logger, registry *search.Registry, kvDB kvdb.DB) {
	ids, err := kvDB.GetAllKeys(kvdb.ProvidersBucket)
	if err != nil {
		logger.Error("could not read stored provider states", "err", err.Error())
		return
	}
	for _, id := range ids {
		value, err := kvDB.Get(kvdb.ProvidersBucket, id)
		if err != nil {
			logger.Warn("could not read stored provider state", "provider", id, "err", err.Error())
			continue
		}
		var state kvdb.ProviderState
		if err := json.Unmarshal([]byte(value), &state); err != nil {
			logger.Warn("stored provider state is malformed", "provider", id, "err", err.Error())
			continue
		}
		if err := registry.SetActive(id, state.Active); err != nil {
			logger.Info("ignoring stored state of unregistered provider", "provider", id)
		}
	}
}

func handleListProviders(registry *search.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		providers := []ProviderResponse{}
		for _, p := range registry.Providers() {
			info := p.Info()
			providers = append(providers, ProviderResponse{Info: info, Active: registry.IsActive(info.ID)})
		}
		writeResponse(c, providers, http.StatusOK, nil)
	}
}

func handleSetProviderState(registry *search.Registry, kvDB kvdb.DB, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		request := ProviderStateRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected parameters from provider request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		if err := registry.SetActive(id, *request.Active); err != nil {
			if errors.Is(err, search.ErrProviderNotFound) {
				c.Abort()
				writeResponse(c, nil, http.StatusNotFound, []string{err.Error()})
				return
			}
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		value, err := json.Marshal(kvdb.ProviderState{Active: *request.Active})
		if err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}
		if err := kvDB.Set(kvdb.ProvidersBucket, id, string(value)); err != nil {
			logger.Error("could not persist provider state", "provider", id, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		logger.Info("changed provider state", "provider", id, "active", *request.Active)
		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
