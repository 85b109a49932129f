// Package worker provides the HTTP worker service for the AppAgent ASO
// pipelines.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/internal/config"
	"github.com/appagent/aso/internal/db/gorm"
	"github.com/appagent/aso/internal/pipeline"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout bounds non-streaming requests. Streaming
	// pipeline routes get their own, longer timeout.
	DefaultHTTPTimeout = 30 * time.Second

	// PipelineTimeout bounds a full pipeline run, which can chain many
	// model and search calls.
	PipelineTimeout = 10 * time.Minute

	// MaxRequestBody caps inbound request bodies.
	MaxRequestBody = 1 << 20

	// RequestsPerSecond and RequestBurst tune the per-client limiter.
	RequestsPerSecond = 10
	RequestBurst      = 20
)

// Service is the worker service orchestrator.
type Service struct {
	version string
	config  *config.Config

	// Database
	store         *gorm.Store
	competitors   *gorm.CompetitorStore
	keywords      *gorm.KeywordStore
	localizations *gorm.LocalizationStore

	// Domain services
	pipelines *pipeline.Pipelines
	search    Searcher
	scorer    Scorer

	// HTTP server
	router    *chi.Mux
	server    *http.Server
	limiter   *PerClientRateLimiter
	startTime time.Time
}

// Deps carries the initialized components a Service runs on.
type Deps struct {
	Store         *gorm.Store
	Competitors   *gorm.CompetitorStore
	Keywords      *gorm.KeywordStore
	Localizations *gorm.LocalizationStore
	Pipelines     *pipeline.Pipelines
	Search        Searcher
	Scorer        Scorer
}

// NewService creates a worker service over already-initialized stores
// and pipelines.
func NewService(version string, cfg *config.Config, deps Deps) *Service {
	svc := &Service{
		version:       version,
		config:        cfg,
		store:         deps.Store,
		competitors:   deps.Competitors,
		keywords:      deps.Keywords,
		localizations: deps.Localizations,
		pipelines:     deps.Pipelines,
		search:        deps.Search,
		scorer:        deps.Scorer,
		router:        chi.NewRouter(),
		limiter:       NewPerClientRateLimiter(RequestsPerSecond, RequestBurst),
		startTime:     time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()
	return svc
}

// Router exposes the configured handler, mostly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestID)
	s.router.Use(MaxBodySize(MaxRequestBody))
	s.router.Use(RequireJSONContentType)
	s.router.Use(PerClientRateLimitMiddleware(s.limiter))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)

	// Streaming pipeline routes; each response is newline-delimited
	// JSON progress events. These manage their own timeout.
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(PipelineTimeout))
		r.Post("/api/aso/competitors/find", s.handleFindCompetitors)
		r.Post("/api/aso/keywords/select", s.handleSelectKeywords)
		r.Post("/api/aso/keywords/suggest", s.handleSuggestKeywords)
		r.Post("/api/aso/keywords/rescore", s.handleRescoreKeywords)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(PipelineTimeout))
		r.Post("/api/aso/contents/optimize", s.handleOptimizeContents)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultHTTPTimeout))

		// Competitor management
		r.Get("/api/aso/competitors", s.handleGetCompetitors)
		r.Post("/api/aso/competitors", s.handleAddCompetitor)
		r.Put("/api/aso/competitors", s.handleUpdateCompetitors)
		r.Delete("/api/aso/competitors/{id}", s.handleRemoveCompetitor)

		// Manual competitor search
		r.Get("/api/aso/search", s.handleSearch)

		// Keywords
		r.Get("/api/aso/keywords", s.handleGetKeywords)
		r.Post("/api/aso/keywords/score", s.handleScoreKeyword)

		// Listing localizations
		r.Put("/api/aso/localizations", s.handleUpsertLocalization)
	})
}

// Start starts the HTTP server. It returns once the listener goroutine
// is launched; use Shutdown to stop.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Int("port", s.config.WorkerPort).Str("version", s.version).Msg("Worker HTTP server started")
	return nil
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Error().Err(err).Msg("Database close error")
		}
	}

	log.Info().Msg("Worker service shutdown complete")
	return nil
}
