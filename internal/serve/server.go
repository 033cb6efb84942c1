// Package serve exposes the gateway over HTTP: the streaming chat relay,
// conversation persistence, health and metrics.
package serve

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
	"github.com/samsaffron/llm-gateway/internal/session"
)

// Streamer produces the frames answering one generation request.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request) iter.Seq[frame.Frame]
}

// Options configures a Server.
type Options struct {
	Gateway Streamer
	Store   session.Store
	Logger  zerolog.Logger
	// Token, when set, is required as a bearer token on API routes.
	Token          string
	AllowedOrigins []string
	// Providers reports which provider kinds have credentials, for /health.
	Providers map[string]bool
}

// Server holds the HTTP handlers. It keeps no per-request state.
type Server struct {
	gateway   Streamer
	store     session.Store
	log       zerolog.Logger
	token     string
	origins   []string
	providers map[string]bool
}

func New(opts Options) *Server {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		gateway:   opts.Gateway,
		store:     opts.Store,
		log:       opts.Logger,
		token:     opts.Token,
		origins:   origins,
		providers: opts.Providers,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)

	for _, prefix := range []string{"/api", ""} {
		r.HandleFunc(prefix+"/chat", s.auth(s.handleChat))
		r.HandleFunc(prefix+"/conversations", s.auth(s.handleConversations))
	}
	return r
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(s.token)
	if token == "" {
		return true
	}
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(value, prefix)) == token
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
