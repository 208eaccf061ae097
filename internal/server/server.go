package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/netprobe/api/schemas"
	"github.com/xkilldash9x/netprobe/internal/config"
	"github.com/xkilldash9x/netprobe/internal/metrics"
	"github.com/xkilldash9x/netprobe/internal/scrape"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const errorPrefix = "An error occurred while scraping the page: "

// SessionRunner executes one scrape session.
type SessionRunner interface {
	Run(ctx context.Context, sc scrape.SessionConfig) (*schemas.ScrapeResult, error)
}

// Server exposes scrape sessions over HTTP.
type Server struct {
	cfg     config.ServerConfig
	runner  SessionRunner
	metrics *metrics.Collector
	logger  *zap.Logger

	sessions *semaphore.Weighted
	limiter  *rate.Limiter

	httpServer *http.Server
}

// New creates a Server. collector may be nil, which disables /metrics.
func New(cfg config.ServerConfig, runner SessionRunner, collector *metrics.Collector, logger *zap.Logger) *Server {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	slots := cfg.MaxConcurrentSessions
	if slots <= 0 {
		slots = 1
	}
	return &Server{
		cfg:      cfg,
		runner:   runner,
		metrics:  collector,
		logger:   logger.Named("server"),
		sessions: semaphore.NewWeighted(int64(slots)),
		limiter:  rate.NewLimiter(limit, cfg.RateBurst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.recoverer)
	router.Use(corsMiddleware)

	router.Get("/", s.handleScrape)
	router.Get("/api/scrape", s.handleScrape)
	router.Get("/healthz", s.handleHealthz)
	if s.metrics != nil && s.cfg.EnableMetrics {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return router
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("Serving scrape API.", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down scrape API.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		<-serverErr
		return err
	case err := <-serverErr:
		return err
	}
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	sc, err := scrape.Resolve(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	if timeout := s.sessionTimeout(sc); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	release, err := s.admit(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.Rejected()
		}
		s.respondError(w, r, err)
		return
	}
	defer release()

	result, err := s.runner.Run(ctx, sc)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondResult(w, result)
}

// sessionTimeout bounds one request. The caller's wait is held in full on
// top of the configured budget, so no wait value alone exhausts it. Zero
// means unbounded.
func (s *Server) sessionTimeout(sc scrape.SessionConfig) time.Duration {
	if s.cfg.RequestTimeout <= 0 {
		return 0
	}
	if sc.Wait > math.MaxInt64-s.cfg.RequestTimeout {
		return 0
	}
	return s.cfg.RequestTimeout + sc.Wait
}

// admit waits for the rate limiter and a free session slot.
func (s *Server) admit(ctx context.Context) (func(), error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	if err := s.sessions.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a free browser slot: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	return func() {
		if s.metrics != nil {
			s.metrics.SessionFinished()
		}
		s.sessions.Release(1)
	}, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) respondResult(w http.ResponseWriter, result *schemas.ScrapeResult) {
	if result.Requests == nil {
		result.Requests = []schemas.CapturedRequest{}
	}
	body, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Failed to encode scrape result.", zap.Error(err))
		writeText(w, http.StatusInternalServerError, errorPrefix+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", s.cfg.CacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *scrape.MissingTargetError
	if errors.As(err, &missing) {
		writeText(w, http.StatusBadRequest, missing.Error())
		return
	}
	s.logger.Error("Scrape request failed.",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
	writeText(w, http.StatusInternalServerError, errorPrefix+err.Error())
}

// recoverer turns a handler panic into the standard 500 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("Handler panicked.", zap.Any("panic", rec), zap.Stack("stack"))
				writeText(w, http.StatusInternalServerError, fmt.Sprintf("%s%v", errorPrefix, rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
