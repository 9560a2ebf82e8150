// Package api provides the HTTP API server for the carbon tracker.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/notify"
	"github.com/carbon-tracker/internal/service"
)

// Service interfaces for dependency injection and testing

// RecordOrchestratorInterface defines the record workflow operations
type RecordOrchestratorInterface interface {
	CreateRecord(ctx context.Context, input *service.CreateRecordInput) error
	DecryptRecord(ctx context.Context, businessKey string) (*uint64, error)
	CheckAvailability(ctx context.Context) error
}

// RegistryInterface defines the record snapshot operations
type RegistryInterface interface {
	Records() []*models.Record
	Get(businessKey string) (*models.Record, bool)
	Stats() models.Stats
	Refresh(ctx context.Context) ([]*models.Record, error)
}

// StatusInterface exposes the current transient status
type StatusInterface interface {
	Current() notify.Status
}

// HistoryInterface exposes the bounded operation history
type HistoryInterface interface {
	Entries() []models.HistoryEntry
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	orchestrator RecordOrchestratorInterface
	registry     RegistryInterface
	status       StatusInterface
	history      HistoryInterface
	config       *ServerConfig
	logger       *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	orchestrator RecordOrchestratorInterface,
	registry RegistryInterface,
	status StatusInterface,
	history HistoryInterface,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		orchestrator: orchestrator,
		registry:     registry,
		status:       status,
		history:      history,
		config:       config,
		logger:       logging.GetGlobalLogger().WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Middleware order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Record endpoints
	api.HandleFunc("/records", s.handleListRecords).Methods("GET")
	api.HandleFunc("/records", s.handleCreateRecord).Methods("POST")
	api.HandleFunc("/records/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/records/{key}", s.handleGetRecord).Methods("GET")
	api.HandleFunc("/records/{key}/decrypt", s.handleDecryptRecord).Methods("POST")

	// Dashboard endpoints
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	// Contract probe
	api.HandleFunc("/availability", s.handleCheckAvailability).Methods("POST")

	// Preflight requests need a matching route for the middleware chain to
	// run; CORSMiddleware answers them before this handler is reached.
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "carbon-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}
