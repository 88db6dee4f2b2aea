// Package server exposes tutoring sessions over HTTP. Verbs that talk to the
// professor answer with a server-sent event stream of session events; a
// websocket feed carries the same events to passive viewers.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/chat"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/tutor"
)

const defaultMaxRequestBodySize = 1 << 20

type Options struct {
	Manager  *tutor.Manager
	Catalog  *catalog.Catalog
	Progress *progress.Repository
	Logger   *zap.Logger

	// Registry receives the server's metrics. Nil creates a private one.
	Registry *prometheus.Registry

	// RatePerSecond and Burst bound the professor requests per session.
	// A zero rate disables limiting.
	RatePerSecond float64
	Burst         int

	MaxRequestBodySize int64
}

// Server is an http.Handler.
type Server struct {
	manager  *tutor.Manager
	catalog  *catalog.Catalog
	progress *progress.Repository
	logger   *zap.Logger
	limiter  *limiter
	metrics  *metrics
	maxBody  int64
	router   chi.Router
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	maxBody := opts.MaxRequestBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBodySize
	}

	s := &Server{
		manager:  opts.Manager,
		catalog:  opts.Catalog,
		progress: opts.Progress,
		logger:   logger,
		limiter:  newLimiter(opts.RatePerSecond, opts.Burst),
		metrics:  newMetrics(reg),
		maxBody:  maxBody,
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.metrics.middleware)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/languages", s.handleLanguages)
		r.Get("/progress", s.handleProgress)
		r.Delete("/progress", s.handleResetProgress)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/code", s.handleSetCode)
			r.Post("/cancel", s.handleCancel)
			r.Get("/ws", s.handleWebSocket)

			r.Post("/language", s.handleSelectLanguage)
			r.Post("/messages", s.handleMessage)
			r.Post("/run", s.handleRun)
			r.Post("/modules/{moduleID}", s.handleModule)
			r.Post("/continue", s.handleContinue)
			r.Post("/debug/start", s.handleDebugStart)
			r.Post("/debug/step", s.handleDebugStep)
			r.Post("/debug/stop", s.handleDebugStop)
		})
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// logRequests logs one line per request with zap.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, tutor.ErrModuleLocked), errors.Is(err, tutor.ErrLanguageDisabled):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrUnknownLanguage), errors.Is(err, catalog.ErrUnknownModule):
		return http.StatusNotFound
	case errors.Is(err, tutor.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, tutor.ErrNoLanguage), errors.Is(err, tutor.ErrNoModule), errors.Is(err, tutor.ErrNotDebugging):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
