package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/config"
	"github.com/notaspider/comick-source-api/internal/health"
	"github.com/notaspider/comick-source-api/internal/metrics"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/search"
)

// Registry resolves adapters.
type Registry interface {
	ResolveByURL(rawURL string) (scraper.Adapter, error)
	ResolveByName(name string) (scraper.Adapter, error)
	Descriptors() []scraper.Descriptor
}

// HealthService produces health reports.
type HealthService interface {
	Check(ctx context.Context, force bool) (health.Report, error)
}

// Searcher runs single-source and fan-out searches.
type Searcher interface {
	SearchOne(ctx context.Context, source, query string) (search.SingleResult, error)
	SearchAll(ctx context.Context, query string) ([]search.SourceResults, error)
}

// Dependencies are the collaborators the handlers call. History, Proxy and
// Ready are optional.
type Dependencies struct {
	Registry Registry
	Health   HealthService
	Search   Searcher
	History  health.HistoryReader
	// Proxy fetches pages for the /proxy/html endpoint.
	Proxy retrieval.Fetcher
	// Ready reports whether downstream stores are reachable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the source services.
type Server struct {
	router chi.Router
	deps   Dependencies
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger.Named("api")}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/health", s.getHealth)
		r.Post("/health", s.refreshHealth)
		r.Get("/health/history/{source}", s.healthHistory)
		r.Post("/search", s.search)
		r.Post("/pages", s.pages)
		r.Post("/chapters", s.chapters)
		r.Post("/info", s.info)
		r.Get("/sources", s.sources)
		r.Get("/proxy/html", s.proxyHTML)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps an operation error onto an HTTP status.
func statusFor(err error) int {
	var unknown *search.UnknownSourceError
	switch {
	case errors.Is(err, search.ErrEmptyQuery),
		errors.As(err, &unknown),
		errors.Is(err, scraper.ErrNotFound),
		errors.Is(err, scraper.ErrImagesUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch scraper.KindOf(err) {
	case scraper.KindTimeout:
		return http.StatusGatewayTimeout
	case scraper.KindNetwork, scraper.KindHTTPStatus, scraper.KindBotWall, scraper.KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(scraper.KindOf(err))),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
