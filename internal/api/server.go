// Package api exposes the engine over HTTP: connection administration, the
// query console, key management and the keyed data endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/veildb/veildb/internal/engine"
)

// Server is the REST API server.
type Server struct {
	engine  *engine.Engine
	logger  *slog.Logger
	port    int
	server  *http.Server
	devMode bool
}

// Option configures the API server.
type Option func(*Server)

// WithDevMode enables CORS for development.
func WithDevMode(dev bool) Option {
	return func(s *Server) {
		s.devMode = dev
	}
}

// New creates a new API server.
func New(eng *engine.Engine, logger *slog.Logger, port int, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		logger: logger,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = requestLogger(s.logger, mux)
	if s.devMode {
		handler = s.corsMiddleware(handler)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: handler,
	}

	s.logger.Info("starting api server", "port", s.port, "dev_mode", s.devMode)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("POST /api/connections", s.handleAddConnection)
	mux.HandleFunc("POST /api/connections/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /api/connections/{id}/deactivate", s.handleDeactivate)
	mux.HandleFunc("POST /api/connections/{id}/introspect", s.handleIntrospect)
	mux.HandleFunc("GET /api/connections/{id}/schema", s.handleGetSchema)
	mux.HandleFunc("GET /api/connections/{id}/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/connections/{id}/properties", s.handleGetProperties)
	mux.HandleFunc("PUT /api/connections/{id}/properties", s.handleSaveProperties)
	mux.HandleFunc("GET /api/connections/{id}/query", s.handleQuery)
	mux.HandleFunc("GET /api/connections/{id}/keys", s.handleListKeys)
	mux.HandleFunc("POST /api/connections/{id}/keys", s.handleCreateKey)
	mux.HandleFunc("POST /api/connections/{id}/keys/{key}/revoke", s.handleRevokeKey)

	mux.HandleFunc("GET /api/keys/{token}/list", s.handleKeyedList)
	mux.HandleFunc("GET /api/keys/{token}/count", s.handleKeyedCount)

	mux.HandleFunc("GET /api/cohorts", s.handleListCohorts)
	mux.HandleFunc("POST /api/cohorts", s.handleCreateCohort)
	mux.HandleFunc("GET /api/cohorts/{id}", s.handleGetCohort)
	mux.HandleFunc("POST /api/cohorts/{id}/refresh", s.handleRefreshCohort)
	mux.HandleFunc("DELETE /api/cohorts/{id}", s.handleDeleteCohort)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
