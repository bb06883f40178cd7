// Package http serves the read-only monitor API: aggregate health,
// prometheus metrics, and the latest score snapshot and locked
// prediction per instrument.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
	"github.com/JGDev1215/OpenPredict/internal/providers"
	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// LatestSource serves the most recent snapshot and prediction per
// instrument. The redis latest-store satisfies it.
type LatestSource interface {
	LatestScore(ctx context.Context, instrument string) (*domain.DualScore, bool, error)
	LatestPrediction(ctx context.Context, instrument string) (*domain.PredictionResult, bool, error)
}

// ServerConfig holds the monitor server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the local-only defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the collaborators the endpoints read from. Nil members
// disable their endpoints instead of failing startup.
type Deps struct {
	Providers []providers.Provider
	Storage   map[string]persistence.Health
	Latest    LatestSource
	Metrics   *telemetry.Registry
	Version   string
}

// Server is the read-only monitor HTTP server.
type Server struct {
	router    *mux.Router
	server    *http.Server
	deps      Deps
	startTime time.Time
}

// NewServer builds the server and wires its routes.
func NewServer(config ServerConfig, deps Deps) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		deps:      deps,
		startTime: time.Now(),
	}
	s.routes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	// Prometheus text format, so it stays outside the JSON subrouter.
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/v1/scores/{instrument}/latest", s.handleLatestScore).Methods(http.MethodGet)
	api.HandleFunc("/v1/predictions/{instrument}/latest", s.handleLatestPrediction).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("monitor server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("monitor server shutting down")
	return s.server.Shutdown(ctx)
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// requestIDMiddleware tags each request with a short unique ID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("monitor request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestIDFrom(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// responseWrapper captures status codes for request logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
