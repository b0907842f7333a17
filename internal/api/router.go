// Package api provides the REST control surface for sidekick-service.
// Hosts (editors, scripts) drive the request lifecycle through it: ask,
// cancel, dismiss, session management, and skill listings.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ternarybob/sidekick/internal/config"
	"github.com/ternarybob/sidekick/pkg/assist"
	"github.com/ternarybob/sidekick/pkg/display"
	"github.com/ternarybob/sidekick/pkg/prompt"
	"github.com/ternarybob/sidekick/pkg/session"
	"github.com/ternarybob/sidekick/pkg/skill"
	"github.com/ternarybob/sidekick/web"
)

// Server represents the API server.
type Server struct {
	cfg      *config.Config
	router   chi.Router
	manager  *assist.Manager
	composer *prompt.Composer
	registry *skill.Registry
	sessions *session.Store
	frames   *display.Recorder
}

// NewServer creates a new API server. frames is the recorder surface the
// manager renders into, exposed read-only through /status.
func NewServer(cfg *config.Config, manager *assist.Manager, composer *prompt.Composer,
	registry *skill.Registry, sessions *session.Store, frames *display.Recorder) *Server {
	s := &Server{
		cfg:      cfg,
		manager:  manager,
		composer: composer,
		registry: registry,
		sessions: sessions,
		frames:   frames,
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Optional API key authentication
	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	// Health and version endpoints (no auth)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Post("/ask", s.handleAsk)
	r.Post("/cancel", s.handleCancel)
	r.Post("/dismiss", s.handleDismiss)
	r.Get("/status", s.handleStatus)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleSessionState)
		r.Delete("/", s.handleNewSession)
	})

	r.Get("/skills", s.handleListSkills)

	// Embedded status page
	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.FileServer(http.FS(web.Static)))

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth is middleware that validates the API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health, version, and the status page shell
		if r.URL.Path == "/health" || r.URL.Path == "/version" ||
			r.URL.Path == "/" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
