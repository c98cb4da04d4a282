// Package server wires the HTTP surface: middleware, rate limits, the huma
// API, the optional live stream and the optional widget assets.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/deskchat/internal/api/v1"
	"github.com/gosuda/deskchat/internal/api/ws"
	"github.com/gosuda/deskchat/internal/config"
	"github.com/gosuda/deskchat/internal/server/middleware"
)

const (
	msgTooManyRequests = "Too many requests, please try again later."
	msgTooManyMessages = "Too many messages, please slow down."
	msgNotFound        = "Not found"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Chat     v1.ChatService
	Provider v1.ProviderInfo

	// GeneralCounter and MessageCounter back the two rate limits.
	GeneralCounter middleware.Counter
	MessageCounter middleware.Counter

	// Subscriber enables GET /ws/chat/{sessionId}; nil leaves it unmounted.
	Subscriber ws.Subscriber
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired.
func New(cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	if cfg.Server.TrustProxy {
		router.Use(chimw.RealIP)
	}
	router.Use(hlog.NewHandler(log.Logger))
	router.Use(hlog.RequestIDHandler("req_id", "X-Request-ID"))
	router.Use(hlog.RemoteAddrHandler("ip"))
	router.Use(hlog.AccessHandler(accessLog))
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	router.Use(middleware.RateLimit(deps.GeneralCounter, middleware.RateLimitConfig{
		Limit:   cfg.RateLimit.General,
		Message: msgTooManyRequests,
		Skip:    isHealthCheck,
	}))
	router.Use(middleware.RateLimit(deps.MessageCounter, middleware.RateLimitConfig{
		Limit:   cfg.RateLimit.Message,
		Message: msgTooManyMessages,
		Skip:    func(r *http.Request) bool { return !isChatRoute(r) },
	}))

	api := humachi.New(router, v1.NewConfig())
	v1.RegisterHealthRoutes(api, deps.Provider)
	v1.RegisterChatRoutes(api, deps.Chat, cfg.Server.BodyLimit)

	if deps.Subscriber != nil {
		hub := ws.NewHub(deps.Subscriber, originPatterns(cfg.Server.CORSOrigins)...)
		router.Get("/ws/chat/{sessionId}", hub.ServeConversation)
		log.Info().Msg("live conversation stream enabled")
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSONError(w, http.StatusNotFound, msgNotFound)
	})
	if cfg.Server.WebDir != "" {
		router.NotFound(spaFileServer(os.DirFS(cfg.Server.WebDir), notFound).ServeHTTP)
		log.Info().Str("dir", cfg.Server.WebDir).Msg("serving widget assets")
	} else {
		router.NotFound(notFound)
	}
	router.MethodNotAllowed(notFound)

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	var event *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		event = hlog.FromRequest(r).Error()
	case status == http.StatusTooManyRequests:
		event = hlog.FromRequest(r).Warn()
	default:
		event = hlog.FromRequest(r).Info()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func isHealthCheck(r *http.Request) bool {
	return r.URL.Path == "/health"
}

func isChatRoute(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/chat/")
}

// originPatterns turns CORS origins into host patterns for the websocket
// origin check.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// spaFileServer serves static files from assets, falling back to index.html
// for paths that are not real files so client-side routing keeps working.
// Without an index.html every miss goes to notFound.
func spaFileServer(assets fs.FS, notFound http.Handler) http.Handler {
	fileServer := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			notFound.ServeHTTP(w, r)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if _, err := fs.Stat(assets, path); err != nil {
			if _, err := fs.Stat(assets, "index.html"); err != nil {
				notFound.ServeHTTP(w, r)
				return
			}
			r.URL.Path = "/"
		}

		fileServer.ServeHTTP(w, r)
	})
}
