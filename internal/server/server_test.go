package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/lastseen/internal/config"
	"github.com/jonathan/lastseen/internal/job"
	"github.com/jonathan/lastseen/internal/recency"
	"github.com/jonathan/lastseen/internal/server/ratelimit"
)

type fakeTrigger struct {
	mu      sync.Mutex
	running bool
	started []uuid.UUID
	ctxs    []context.Context
	last    *job.Report
	waited  bool
}

func (f *fakeTrigger) Start(ctx context.Context) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return f.started[len(f.started)-1], job.ErrRunInProgress
	}
	id := uuid.New()
	f.running = true
	f.started = append(f.started, id)
	f.ctxs = append(f.ctxs, ctx)
	return id, nil
}

func (f *fakeTrigger) Status() job.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := job.Status{Running: f.running, Last: f.last}
	if f.running {
		s.RunID = f.started[len(f.started)-1].String()
	}
	return s
}

func (f *fakeTrigger) Wait() {
	f.mu.Lock()
	f.waited = true
	f.mu.Unlock()
}

func (f *fakeTrigger) finish(report *job.Report) {
	f.mu.Lock()
	f.running = false
	f.last = report
	f.mu.Unlock()
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *fakeTrigger) {
	t.Helper()
	trigger := &fakeTrigger{}
	cfg := Config{
		Trigger:   trigger,
		Logger:    zaptest.NewLogger(t),
		Gatherer:  prometheus.NewRegistry(),
		RateLimit: &ratelimit.Config{Enabled: false},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return s, trigger
}

func do(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RequiresTrigger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTrigger_StartsRun(t *testing.T) {
	type ctxKey struct{}
	runCtx := context.WithValue(context.Background(), ctxKey{}, "run")
	s, trigger := newTestServer(t, func(c *Config) { c.RunContext = runCtx })

	w := do(t, s.Handler(), "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TaskStartedMessage, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	require.Len(t, trigger.started, 1)
	assert.Equal(t, trigger.started[0].String(), w.Header().Get("X-Run-ID"))
	assert.Equal(t, "run", trigger.ctxs[0].Value(ctxKey{}), "run must use the server run context, not the request")
}

func TestTrigger_ConflictWhileRunning(t *testing.T) {
	s, trigger := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, do(t, s.Handler(), "/", nil).Code)
	w := do(t, s.Handler(), "/", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already in progress")
	assert.Len(t, trigger.started, 1)

	trigger.finish(&job.Report{})
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), "/", nil).Code)
}

func TestTrigger_OnlyRootPath(t *testing.T) {
	s, trigger := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), "/favicon.ico", nil).Code)
	assert.Empty(t, trigger.started)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Empty(t, trigger.started)
}

func TestPingAndHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s.Handler(), "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, PongMessage, w.Body.String())

	w = do(t, s.Handler(), "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	s, trigger := newTestServer(t, nil)

	w := do(t, s.Handler(), "/status", nil)
	assert.JSONEq(t, `{"running":false}`, w.Body.String())

	do(t, s.Handler(), "/", nil)
	var running job.Status
	require.NoError(t, json.Unmarshal(do(t, s.Handler(), "/status", nil).Body.Bytes(), &running))
	assert.True(t, running.Running)
	assert.Equal(t, trigger.started[0].String(), running.RunID)

	trigger.finish(&job.Report{
		RunID:   trigger.started[0],
		Summary: recency.Summary{Total: 3, Formatted: 2, FetchErrors: 1},
	})
	var done job.Status
	require.NoError(t, json.Unmarshal(do(t, s.Handler(), "/status", nil).Body.Bytes(), &done))
	assert.False(t, done.Running)
	require.NotNil(t, done.Last)
	assert.Equal(t, 3, done.Last.Total)
	assert.Equal(t, 1, done.Last.FetchErrors)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "lastseen_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s, _ := newTestServer(t, func(c *Config) { c.Gatherer = reg })
	w := do(t, s.Handler(), "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lastseen_test_total 1")
}

func TestTrigger_RequiresToken(t *testing.T) {
	tokens := NewTokenService(&config.TriggerAuthConfig{Secret: "0123456789abcdef", TTL: time.Hour})
	s, trigger := newTestServer(t, func(c *Config) { c.Tokens = tokens })

	assert.Equal(t, http.StatusUnauthorized, do(t, s.Handler(), "/", nil).Code)
	assert.Empty(t, trigger.started)

	// Other endpoints stay open
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), "/ping", nil).Code)

	token, err := tokens.GenerateToken("cron")
	require.NoError(t, err)
	w := do(t, s.Handler(), "/", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, trigger.started, 1)
}

func TestTrigger_RateLimited(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled:       true,
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			Endpoints: []ratelimit.EndpointConfig{
				{Path: "/", Method: "GET", Limit: 1, Window: time.Hour, Burst: 1},
			},
		}
	})

	w := do(t, s.Handler(), "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = do(t, s.Handler(), "/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// /status draws from the default bucket
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), "/status", nil).Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, trigger := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), "Pong"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.True(t, trigger.waited, "shutdown should wait for the run in progress")
}
