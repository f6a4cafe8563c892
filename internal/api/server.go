// Package api serves the local JSON API and the WebSocket event stream a
// binder UI talks to.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ramonehamilton/binder-companion/internal/api/websocket"
	"github.com/ramonehamilton/binder-companion/internal/catalog"
	"github.com/ramonehamilton/binder-companion/internal/editor"
	"github.com/ramonehamilton/binder-companion/internal/metrics"
	"github.com/ramonehamilton/binder-companion/internal/storage"
	"github.com/ramonehamilton/binder-companion/internal/storage/repository"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	port       int
	origins    []string

	// WebSocket hub for real-time events
	wsHub *websocket.Hub

	editor   *editor.Manager
	catalog  *catalog.Service
	metrics  *metrics.SyncMetrics
	backups  *storage.BackupManager
	settings repository.SettingsRepository
}

// Config holds configuration for the API server.
type Config struct {
	Port int

	// AllowedOrigins are CORS origins; the WebSocket check uses their hosts.
	AllowedOrigins []string
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*", "https://localhost:*"},
	}
}

// Services holds what the handlers operate on. Only Editor is required.
type Services struct {
	Editor   *editor.Manager
	Catalog  *catalog.Service
	Metrics  *metrics.SyncMetrics
	Backups  *storage.BackupManager
	Settings repository.SettingsRepository
}

// NewServer creates a new API server.
func NewServer(cfg *Config, services *Services) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if services == nil || services.Editor == nil {
		return nil, errors.New("editor manager is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultConfig().AllowedOrigins
	}

	s := &Server{
		router:   chi.NewRouter(),
		port:     cfg.Port,
		origins:  cfg.AllowedOrigins,
		wsHub:    websocket.NewHub(originHosts(cfg.AllowedOrigins)...),
		editor:   services.Editor,
		catalog:  services.Catalog,
		metrics:  services.Metrics,
		backups:  services.Backups,
		settings: services.Settings,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// originHosts strips the scheme from CORS origins for the WebSocket check.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		hosts = append(hosts, o)
	}
	return hosts
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Content-Type enforcement for POST/PUT/PATCH only (not GET/DELETE/OPTIONS)
	s.router.Use(s.jsonContentTypeMiddleware)
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" || (contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;")) {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router, for tests and for embedding under another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in a goroutine. Binding errors are
// returned; later serve errors are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("[API] Server listening on port %d", s.port)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[API] Server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the WebSocket hub and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.httpServer == nil {
		return nil
	}

	log.Println("[API] Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}

// Port returns the port the server is configured to listen on.
func (s *Server) Port() int {
	return s.port
}

// WebSocketHub returns the WebSocket hub for external integration.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

// NewWebSocketObserver creates an observer that forwards dispatched events
// to WebSocket clients. Register it with the event dispatcher.
func (s *Server) NewWebSocketObserver() *websocket.WebSocketObserver {
	return websocket.NewWebSocketObserver(s.wsHub)
}
