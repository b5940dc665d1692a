package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/loader"
	"github.com/bher20/fxratemanager/internal/resource"
)

// ActionResponse reports the outcome of a load or reset.
type ActionResponse struct {
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	Loaded   bool           `json:"loaded"`
	Stats    resource.Stats `json:"stats"`
}

// handleResources lists every registered resource.
// @Summary List resources
// @Tags resources
// @Produce json
// @Success 200 {array} resource.Stats
// @Router /api/v1/resources [get]
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.resources.AllStats(r.Context()))
}

// handleResource shows one resource.
// @Summary Get resource stats
// @Tags resources
// @Produce json
// @Param id path string true "Resource id"
// @Success 200 {object} resource.Stats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/resources/{id} [get]
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	st, err := s.resources.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.resourceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleLoad reloads a resource from cache and remote.
// @Summary Load a resource
// @Tags resources
// @Produce json
// @Param id path string true "Resource id"
// @Success 200 {object} ActionResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/resources/{id}/load [post]
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "load", s.resources.LoadData)
}

// handleLoadLocal reloads a resource from cache or fallback only.
// @Summary Load a resource locally
// @Tags resources
// @Produce json
// @Param id path string true "Resource id"
// @Success 200 {object} ActionResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/resources/{id}/load-local [post]
func (s *Server) handleLoadLocal(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "load-local", s.resources.LoadDataLocal)
}

// handleReset discards the cache and reloads the fallback.
// @Summary Reset a resource to its fallback
// @Tags resources
// @Produce json
// @Param id path string true "Resource id"
// @Success 200 {object} ActionResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/resources/{id}/reset [post]
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, "reset", s.resources.ResetData)
}

func (s *Server) action(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, string) (bool, error)) {
	id := r.PathValue("id")
	ok, err := fn(r.Context(), id)
	if err != nil {
		s.resourceError(w, err)
		return
	}
	st, err := s.resources.Stats(r.Context(), id)
	if err != nil {
		s.resourceError(w, err)
		return
	}
	s.log.Info("resource action",
		zap.String("resource", id),
		zap.String("action", name),
		zap.Bool("loaded", ok))

	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, ActionResponse{Resource: id, Action: name, Loaded: ok, Stats: st})
}

// handleJobs lists the scheduled reloads.
// @Summary List scheduled jobs
// @Tags resources
// @Produce json
// @Success 200 {array} cron.JobInfo
// @Router /api/v1/jobs [get]
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.resources.Jobs())
}

func (s *Server) resourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loader.ErrUnknownResource):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, loader.ErrRegistryClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("resource request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
