// Package server exposes nearby-voter search over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/search"
)

// Config holds HTTP server settings.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Searcher runs nearby searches. *search.Service implements it.
type Searcher interface {
	Nearby(ctx context.Context, req search.Request) (*search.Response, error)
}

// HealthReporter is implemented by searchers that can report the state of
// their dependencies. *search.Service implements it.
type HealthReporter interface {
	Health() map[string]string
}

// Server is the HTTP API.
type Server struct {
	cfg        Config
	searcher   Searcher
	gatherer   prometheus.Gatherer
	httpServer *http.Server
}

// New creates a Server. gatherer may be nil, in which case /metrics is not
// mounted.
func New(cfg Config, searcher Searcher, gatherer prometheus.Gatherer) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, searcher: searcher, gatherer: gatherer}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/voters/nearby", s.handleNearby)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server: listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return <-errCh
}

// handleHealth always answers 200: an open geocoder circuit degrades
// searches to lexical ranking but does not stop them.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{}
	if hr, ok := s.searcher.(HealthReporter); ok {
		for k, v := range hr.Health() {
			body[k] = v
		}
	}
	body["status"] = "ok"
	jsonResponse(w, http.StatusOK, body)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := search.Request{
		Address: q.Get("address"),
		Zip:     q.Get("zip"),
		State:   q.Get("state"),
	}

	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		errorResponse(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if req.Offset, err = intParam(q.Get("offset")); err != nil {
		errorResponse(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	resp, err := s.searcher.Nearby(r.Context(), req)
	if err != nil {
		if eris.Is(err, search.ErrInvalidRequest) {
			errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("server: nearby search failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
