package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"homesite/internal/history"
	"homesite/internal/site"
	"homesite/internal/update"
	"homesite/internal/visits"
)

const (
	// HTTP server timeouts. Updates are handled synchronously, so writes may
	// take as long as a full update.
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 6 * time.Minute
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for site pages
	RequestTimeout = 30 * time.Second

	// Rate limiting - requests per minute per client
	WebhookRateLimit = 6
	UploadRateLimit  = 10

	DefaultMaxUploadBytes = 32 << 20
)

// FailurePolicy decides what happens after a failed update.
type FailurePolicy string

const (
	// FailurePolicyReport only reports the failure to the caller.
	FailurePolicyReport FailurePolicy = "report"
	// FailurePolicyRestart also asks the host to restart the service.
	FailurePolicyRestart FailurePolicy = "restart"
)

// RestartRequest asks the host to exit so the supervisor starts the newly
// installed release.
type RestartRequest struct {
	Reason  string
	Release string
}

// Config holds the server settings.
type Config struct {
	WebhookSecret string
	GalleryToken  string
	APIToken      string

	// GitHubToken is only used to redact command output.
	GitHubToken string

	StaticDir      string
	MaxUploadBytes int64
	ExposeOutput   bool
	FailurePolicy  FailurePolicy

	// TestMode disables rate limiting.
	TestMode bool
}

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	Site     *site.Cache
	Updater  *update.Updater
	Visits   *visits.Store    // optional
	History  *history.History // optional
	Database Pinger           // optional, checked by /health
	Logger   *slog.Logger
	Config   Config

	metrics  *Metrics
	restarts chan RestartRequest

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new server instance. Visits and History may be set
// afterwards; without them visits and updates are not recorded.
func NewServer(cfg Config, cache *site.Cache, updater *update.Updater, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailurePolicyReport
	}
	if cfg.APIToken == "" {
		cfg.APIToken = cfg.GalleryToken
	}

	return &Server{
		Site:     cache,
		Updater:  updater,
		Logger:   logger,
		Config:   cfg,
		metrics:  NewMetrics(),
		restarts: make(chan RestartRequest, 1),
	}
}

// RestartRequests delivers restart requests to the host.
func (s *Server) RestartRequests() <-chan RestartRequest {
	return s.restarts
}

func (s *Server) requestRestart(req RestartRequest) {
	select {
	case s.restarts <- req:
		s.Logger.Info("Restart requested", "reason", req.Reason, "release", req.Release)
	default:
		s.Logger.Warn("Restart already pending", "reason", req.Reason)
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	limit := func(perMinute int) func(http.Handler) http.Handler {
		if s.Config.TestMode {
			return func(next http.Handler) http.Handler { return next }
		}
		return NewRateLimitMiddleware(perMinute, s.Logger)
	}

	r.Get("/health", s.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	if s.Config.StaticDir != "" {
		r.Handle("/static/*", staticHandler(s.Config.StaticDir))
	}

	r.With(limit(WebhookRateLimit), s.VerifyPayload).Post("/update", s.HandleUpdate)

	r.With(
		limit(UploadRateLimit),
		RequireBearer(s.Config.GalleryToken, CapabilityGalleryUpload, s.Logger),
	).Post("/gallery", s.HandleGalleryUpload)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireBearer(s.Config.APIToken, CapabilityReadAPI, s.Logger))
		r.Get("/visits", s.HandleVisits)
		r.Get("/visits/recent", s.HandleRecentVisits)
		r.Get("/updates", s.HandleUpdates)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))
		r.Use(s.countVisits)
		r.Get("/", s.HandleIndex)
		r.Get("/blog", s.HandleBlogIndex)
		r.Get("/blog/{article}", s.HandleArticle)
		r.Get("/gallery", s.HandleGallery)
		r.Get("/{page}", s.HandlePage)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops. After Shutdown it
// returns http.ErrServerClosed.
func (s *Server) Start(addr string) error {
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	if err := writeJSON(w, statusCode, data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
