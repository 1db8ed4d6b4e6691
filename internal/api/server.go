package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnmirror/internal/hn"
	"github.com/JakeFAU/hnmirror/internal/metrics"
	"github.com/JakeFAU/hnmirror/internal/scheduler"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusReporter lists per-category schedule state.
type StatusReporter interface {
	Status(ctx context.Context) ([]scheduler.CategoryStatus, error)
}

// Server wires HTTP handlers to the store and scheduler.
type Server struct {
	router chi.Router
	store  Pinger
	status StatusReporter
	logger *zap.Logger
}

const requestTimeout = 30 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(store Pinger, status StatusReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		status: status,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/schedules", func(r chi.Router) {
		r.Get("/", s.listSchedules)
		r.Get("/{category}", s.getSchedule)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.status.Status(r.Context())
	if err != nil {
		s.logger.Error("list schedules failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read schedules")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"schedules": statuses})
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	category, err := hn.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	statuses, err := s.status.Status(r.Context())
	if err != nil {
		s.logger.Error("get schedule failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read schedules")
		return
	}
	for _, st := range statuses {
		if st.Category == category {
			s.writeJSON(w, http.StatusOK, st)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "category not scheduled")
}

// echoRequestID returns the id chi assigned to the request in the response headers.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
