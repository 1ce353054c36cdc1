// Package api provides the HTTP entry point for the comms batch.
// It is a thin adapter over the workflow runner: credentials and config in,
// per-group results out.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"p0comms/internal/matching"
	"p0comms/internal/routing"
	"p0comms/internal/workflow"
	"p0comms/pkg/platform"
)

var version = "0.1.0"

// Processor runs one comms batch. Satisfied by *workflow.Runner.
type Processor interface {
	Run(ctx context.Context, req workflow.RunRequest) (*workflow.RunSummary, error)
}

// Config holds server configuration.
type Config struct {
	Port           int
	APIKey         string
	RequestTimeout time.Duration
	MaxRequestSize int64
}

// DefaultConfig returns default server configuration. Batch runs poll an
// external report job, so the request timeout must outlive the poll loop.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		RequestTimeout: 10 * time.Minute,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
	}
}

// Server is the HTTP API server.
type Server struct {
	processor  Processor
	config     *Config
	logger     zerolog.Logger
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates an API server around a batch processor.
func NewServer(processor Processor, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		processor: processor,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		r.Post("/process", s.handleProcess)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		// Writes span the whole batch, including the report poll loop.
		WriteTimeout: s.config.RequestTimeout + 30*time.Second,
	}

	s.logger.Info().Int("port", s.config.Port).Str("version", version).Msg("starting comms API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains it on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// =============================================================================
// PROCESS ENDPOINT
// =============================================================================

// ProcessRequest is the JSON contract for one batch run.
type ProcessRequest struct {
	CSVData        string `json:"csv_data"`
	EnableTestMode bool   `json:"enable_test_mode"`
	TestEmail      string `json:"test_email"`
	CustomSubject  string `json:"custom_subject"`
	CustomBody     string `json:"custom_body"`
}

// ProcessResponse carries the per-group outcome list.
type ProcessResponse struct {
	RunID   string                 `json:"run_id"`
	Results []workflow.GroupResult `json:"results"`

	Groups   int      `json:"groups"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if strings.TrimSpace(req.CSVData) == "" {
		s.jsonError(w, http.StatusBadRequest, "no CSV data provided")
		return
	}

	opts := routing.Options{TestMode: req.EnableTestMode, TestEmail: req.TestEmail}
	if err := opts.Validate(); err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.processor.Run(r.Context(), workflow.RunRequest{
		UserCSV:   req.CSVData,
		Subject:   req.CustomSubject,
		Body:      req.CustomBody,
		TestMode:  req.EnableTestMode,
		TestEmail: req.TestEmail,
	})
	if err != nil {
		if errors.Is(err, matching.ErrJoinColumnMissing) {
			s.jsonError(w, http.StatusUnprocessableEntity, "no matching data found, check the deployment column in your CSV")
			return
		}
		s.logger.Error().Err(err).Msg("batch run failed")
		s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("batch run failed: %v", err))
		return
	}

	s.jsonResponse(w, http.StatusOK, ProcessResponse{
		RunID:    summary.RunID.String(),
		Results:  summary.Results,
		Groups:   summary.Groups,
		Warnings: summary.Warnings,
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "p0comms",
		"version": version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "processor not configured")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"version": version})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
