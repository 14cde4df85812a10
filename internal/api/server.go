// Package api exposes the lab over HTTP: job-creating endpoints for the
// slow analytics cycles, poll and websocket endpoints for job state, and
// read endpoints for run history, stats, and parameter suggestions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/jobs"
	"github.com/yourusername/strategy-lab/internal/models"
	"github.com/yourusername/strategy-lab/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the REST and websocket API.
type Server struct {
	service  *service.StrategyService
	registry *jobs.Registry
	logger   *logrus.Logger
	host     string
	port     int
	server   *http.Server
	upgrader websocket.Upgrader

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Config holds the API server dependencies.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Service      *service.StrategyService
	Registry     *jobs.Registry
	Logger       *logrus.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		service:      cfg.Service,
		registry:     cfg.Registry,
		logger:       logger,
		host:         cfg.Host,
		port:         cfg.Port,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		upgrader: websocket.Upgrader{
			// The API is same-host or reverse-proxied; origin checks stay
			// with the proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the full API handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return corsMiddleware(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtest/run", s.handleBacktestRun)
	mux.HandleFunc("POST /api/backtest/analyze", s.handleBacktestAnalyze)
	mux.HandleFunc("POST /api/refine/run", s.handleRefineRun)
	mux.HandleFunc("POST /api/scenarios/run", s.handleScenariosRun)
	mux.HandleFunc("POST /api/data/download", s.handleDataDownload)
	mux.HandleFunc("GET /api/jobs", s.handleJobList)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobGet)
	mux.HandleFunc("GET /api/jobs/{id}/ws", s.handleJobStream)
	mux.HandleFunc("GET /api/history/runs", s.handleHistoryRuns)
	mux.HandleFunc("GET /api/history/runs/{id}", s.handleHistoryRun)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)
}

// Start starts the API server in the background.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.WithFields(logrus.Fields{
			"host": s.host,
			"port": s.port,
		}).Info("API server starting")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("API server error")
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the API server. In-flight requests get a
// deadline; running jobs keep going on their own goroutines.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("API server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// writeServiceError maps service errors onto HTTP statuses: not-found to
// 404, input sentinels to 400, everything else to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidLimit),
		errors.Is(err, models.ErrInvalidRunID),
		errors.Is(err, models.ErrInvalidRating),
		errors.Is(err, models.ErrEmptyStrategyCode):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}
