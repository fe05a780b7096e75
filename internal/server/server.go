// Package server provides the HTTP trigger surface for profile runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jonathan/lastseen/internal/job"
	"github.com/jonathan/lastseen/internal/server/middleware"
	"github.com/jonathan/lastseen/internal/server/ratelimit"
)

// Response bodies of the plain-text endpoints.
const (
	TaskStartedMessage = "✅ Task started. Check the Google Sheet for updates!"
	PongMessage        = "Pong ✅"
)

// Trigger starts runs in the background. *job.Runner implements it.
type Trigger interface {
	Start(ctx context.Context) (uuid.UUID, error)
	Status() job.Status
	Wait()
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	trigger     Trigger
	runCtx      context.Context
	logger      *zap.Logger
	rateLimiter *ratelimit.Limiter
	handler     http.Handler
}

// Config holds server configuration
type Config struct {
	Port    int
	Trigger Trigger
	// RunContext is the parent of every triggered run. Cancelling it aborts
	// the run in progress. Defaults to context.Background().
	RunContext context.Context
	Logger     *zap.Logger
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// RateLimit configures the limiter. Nil means ratelimit.DefaultConfig().
	RateLimit *ratelimit.Config
	// Tokens enables bearer auth on the trigger. Nil leaves it open.
	Tokens *TokenService
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Trigger == nil {
		return nil, fmt.Errorf("server: trigger is required")
	}
	if cfg.RunContext == nil {
		cfg.RunContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		trigger:     cfg.Trigger,
		runCtx:      cfg.RunContext,
		logger:      cfg.Logger,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
	}

	var validator middleware.TokenValidator
	if cfg.Tokens != nil {
		validator = cfg.Tokens.AsTokenValidator()
	}
	requireToken := middleware.AuthMiddleware(validator)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", requireToken(http.HandlerFunc(s.handleTrigger)))
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	s.handler = s.withLogging(s.withRateLimit(mux))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens until ctx is cancelled, then shuts down gracefully: the
// listener stops, in-flight requests finish, and the run in progress is
// waited for.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	s.trigger.Wait()

	s.logger.Info("Server stopped")
	return serveErr
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleTrigger starts a run and answers before it finishes.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	runID, err := s.trigger.Start(s.runCtx)
	if err != nil {
		s.logger.Warn("Trigger rejected", zap.String("run_id", runID.String()), zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	fields := []zap.Field{zap.String("run_id", runID.String())}
	if subject, err := middleware.GetSubject(r); err == nil {
		fields = append(fields, zap.String("subject", subject))
	}
	s.logger.Info("Trigger accepted", fields...)

	w.Header().Set("X-Run-ID", runID.String())
	s.textResponse(w, http.StatusOK, TaskStartedMessage)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	s.textResponse(w, http.StatusOK, PongMessage)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the run in progress and the last finished run.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.trigger.Status())
}

func (s *Server) textResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Debug("Error writing response", zap.Error(err))
	}
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// clientID identifies the caller by the IP in RemoteAddr.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds())
		response["retry_after"] = secs
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	}

	s.logger.Warn("Rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Int("remaining", info.Remaining),
		zap.Time("reset", info.ResetTime),
	)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
