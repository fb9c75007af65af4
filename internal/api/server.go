// Package api provides the HTTP API server of the latency monitor.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/latency-monitor/internal/service"
	"github.com/latency-monitor/internal/types"
)

// Service interfaces for dependency injection and testing

// IngestServiceInterface defines the interface for probe ingestion
type IngestServiceInterface interface {
	Ingest(ctx context.Context, region string, items []types.ProbeItem) (*service.IngestResult, error)
}

// SummaryServiceInterface defines the interface for summary assembly
type SummaryServiceInterface interface {
	GetSummary(ctx context.Context) (*service.SummaryResponse, error)
}

// DetailServiceInterface defines the interface for endpoint detail lookups
type DetailServiceInterface interface {
	GetEndpoint(ctx context.Context, url string) (*service.EndpointDetails, error)
}

// Server represents the HTTP API server.
type Server struct {
	router         *mux.Router
	httpServer     *http.Server
	ingestService  IngestServiceInterface
	summaryService SummaryServiceInterface
	detailService  DetailServiceInterface
	logger         *zap.Logger
	config         *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	IngestRPS       int // probe submissions per second, per region
	IngestBurst     int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	ingestService IngestServiceInterface,
	summaryService SummaryServiceInterface,
	detailService DetailServiceInterface,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		ingestService:  ingestService,
		summaryService: summaryService,
		detailService:  detailService,
		logger:         logger,
		config:         config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
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

	// Probe submission endpoints, rate limited per region
	upload := api.NewRoute().Subrouter()
	upload.Use(RateLimitMiddleware(NewRateLimiter(s.config.IngestRPS, s.config.IngestBurst)))
	upload.HandleFunc("/upload-latency", s.handleUploadLatency).Methods("POST")
	upload.HandleFunc("/upload-monitoring", s.handleUploadMonitoring).Methods("POST")

	// Read endpoints
	api.HandleFunc("/latency/summary", s.handleGetSummary).Methods("GET")
	api.HandleFunc("/latency/endpoint/{url:.+}", s.handleGetEndpoint).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "latency-monitor",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the configured router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
