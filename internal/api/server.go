package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/philp97/frontier/internal/data"
	"github.com/philp97/frontier/internal/metrics"
	"github.com/philp97/frontier/internal/portfolio"
	"github.com/philp97/frontier/internal/store"
	"github.com/rs/zerolog"
)

// RunStore persists analyze results.
type RunStore interface {
	Save(ctx context.Context, res *portfolio.AllocationResult) (*store.Summary, error)
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
}

// Options wires the server's collaborators. Store and Metrics are optional.
type Options struct {
	Source  data.Source
	Engine  *portfolio.Engine
	Params  portfolio.Params
	Store   RunStore
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// Timeout bounds the data fetch and analysis of one request.
	Timeout   time.Duration
	MaxAssets int
}

// Server is the HTTP API over the analytics engine.
type Server struct {
	src       data.Source
	engine    *portfolio.Engine
	params    portfolio.Params
	store     RunStore
	metrics   *metrics.Metrics
	log       zerolog.Logger
	timeout   time.Duration
	maxAssets int
	now       func() time.Time
	router    *mux.Router
}

// NewServer builds the router for opts.
func NewServer(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAssets <= 0 {
		opts.MaxAssets = 20
	}
	s := &Server{
		src:       opts.Source,
		engine:    opts.Engine,
		params:    opts.Params,
		store:     opts.Store,
		metrics:   opts.Metrics,
		log:       opts.Logger.With().Str("component", "api").Logger(),
		timeout:   opts.Timeout,
		maxAssets: opts.MaxAssets,
		now:       time.Now,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	api.HandleFunc("/analyze", s.AnalyzeHandler).Methods(http.MethodPost, http.MethodOptions)
	if s.store != nil {
		api.HandleFunc("/runs", s.ListRunsHandler).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}", s.GetRunHandler).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no route for " + r.URL.Path, Kind: "not_found"})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: r.Method + " is not supported", Kind: "bad_request"})
	})
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.timeout + 10*time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("frontier server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		logger := s.log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, strconv.Itoa(wrapper.statusCode))
		}
		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", wrapper.statusCode).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWrapper captures the status code for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
