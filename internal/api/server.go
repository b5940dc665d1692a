package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/api/swagger"
	"github.com/bher20/fxratemanager/internal/auth"
	"github.com/bher20/fxratemanager/internal/cron"
	"github.com/bher20/fxratemanager/internal/rates"
	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/pkg/providers"
)

// RateService answers rate queries.
type RateService interface {
	GetRate(q rates.Query) (rates.Result, error)
}

// ResourceService exposes the loader registry operations served over HTTP.
type ResourceService interface {
	AllStats(ctx context.Context) []resource.Stats
	Stats(ctx context.Context, id string) (resource.Stats, error)
	LoadData(ctx context.Context, id string) (bool, error)
	LoadDataLocal(ctx context.Context, id string) (bool, error)
	ResetData(ctx context.Context, id string) (bool, error)
	Jobs() []cron.JobInfo
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Rates     RateService
	Resources ResourceService
	Providers []providers.Info
	// Ready is pinged by /readyz. Nil means always ready.
	Ready Pinger
	// Auth guards /api/v1 when set.
	Auth   *auth.Service
	Logger *zap.Logger
}

type Server struct {
	rates     RateService
	resources ResourceService
	providers []providers.Info
	ready     Pinger
	auth      *auth.Service
	log       *zap.Logger
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		rates:     opts.Rates,
		resources: opts.Resources,
		providers: opts.Providers,
		ready:     opts.Ready,
		auth:      opts.Auth,
		log:       log.Named("api"),
	}
}

// Handler builds the HTTP mux, wiring in the API, metrics and health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /livez", s.handleLive)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))

	mux.Handle("GET /api/v1/rates", s.guard(auth.ObjRates, auth.ActRead, s.handleRate))
	mux.Handle("GET /api/v1/providers", s.guard(auth.ObjProviders, auth.ActRead, s.handleProviders))
	mux.Handle("GET /api/v1/resources", s.guard(auth.ObjResources, auth.ActRead, s.handleResources))
	mux.Handle("GET /api/v1/resources/{id}", s.guard(auth.ObjResources, auth.ActRead, s.handleResource))
	mux.Handle("POST /api/v1/resources/{id}/load", s.guard(auth.ObjResources, auth.ActWrite, s.handleLoad))
	mux.Handle("POST /api/v1/resources/{id}/load-local", s.guard(auth.ObjResources, auth.ActWrite, s.handleLoadLocal))
	mux.Handle("POST /api/v1/resources/{id}/reset", s.guard(auth.ObjResources, auth.ActWrite, s.handleReset))
	mux.Handle("GET /api/v1/jobs", s.guard(auth.ObjResources, auth.ActRead, s.handleJobs))

	return s.withRequestID(withMetrics(mux))
}

// guard wraps handler with token auth and a casbin check when auth is enabled.
func (s *Server) guard(obj, act string, handler http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return handler
	}
	return s.auth.Middleware(s.auth.RequirePermission(obj, act, handler))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("live"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			s.log.Warn("readyz: cache ping failed", zap.Error(err))
			http.Error(w, "cache not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
