package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/placefeed/internal/config"
	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/db/gorm"
	"github.com/thebtf/placefeed/internal/httpx"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/internal/metrics"
	"github.com/thebtf/placefeed/internal/privacy"
)

// healthChecker is implemented by backends that report pool details.
type healthChecker interface {
	HealthCheck(ctx context.Context) *gorm.HealthInfo
}

// stateReporter is implemented by db.Breaker.
type stateReporter interface {
	State() string
}

type healthResponse struct {
	Database *gorm.HealthInfo `json:"database,omitempty"`
	Status   string           `json:"status"`
	Server   string           `json:"server"`
	Version  string           `json:"version"`
	Backend  string           `json:"backend"`
	Breaker  string           `json:"breaker,omitempty"`
	Error    string           `json:"error,omitempty"`
	Sessions int              `json:"sessions"`
}

// routerDeps is everything the HTTP surface needs.
type routerDeps struct {
	cfg       *config.Config
	store     db.Client // the chain tools read through
	backend   db.Client // the raw backend, for pool health details
	transport *mcp.StreamableHandler
	collector *metrics.Collector
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger)
	r.Use(deps.collector.Middleware)
	r.Use(httpx.SecurityHeaders)

	r.Get("/health", healthHandler(deps))
	r.Handle("/metrics", deps.collector.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httpx.TokenAuth(deps.cfg.Token))
		if deps.cfg.RateLimit > 0 {
			r.Use(httpx.NewPerClientRateLimiter(deps.cfg.RateLimit, deps.cfg.RateBurst).Middleware)
		}
		r.Use(httpx.MaxBodySize(deps.cfg.MaxBodyBytes))
		r.Handle(deps.cfg.BasePath, deps.transport)
	})

	return r
}

func healthHandler(deps routerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:   "ok",
			Server:   serverName,
			Version:  Version,
			Backend:  deps.cfg.Backend,
			Sessions: deps.transport.Sessions().Len(),
		}
		if b, ok := deps.store.(stateReporter); ok {
			resp.Breaker = b.State()
		}

		status := http.StatusOK
		if err := deps.store.Ping(ctx); err != nil {
			log.Warn().Str("error", privacy.RedactError(err)).Msg("Health check failed")
			resp.Status = "unavailable"
			resp.Error = "store unreachable"
			status = http.StatusServiceUnavailable
		} else if hc, ok := deps.backend.(healthChecker); ok {
			resp.Database = hc.HealthCheck(ctx)
			if resp.Database.Status == "degraded" {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Debug().Err(err).Msg("Failed to write health response")
		}
	}
}
