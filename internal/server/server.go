// Package server exposes the reconciler over HTTP and runs scheduled drift checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// maxEventBytes bounds the size of a trigger payload
const maxEventBytes = 1 << 20

// Reconciler runs one reconciliation per trigger
type Reconciler interface {
	Reconcile(ctx context.Context, trigger types.Trigger) types.ReconciliationOutcome
	Resource() types.ResourceRef
}

// Config configures the server
type Config struct {
	Listen string
	// DriftInterval is the period of scheduled drift checks; zero disables them
	DriftInterval time.Duration
}

// Options are the optional collaborators of a server
type Options struct {
	// Metrics is served on /metrics when set
	Metrics http.Handler
	// Flush is called after every reconciliation
	Flush  func(context.Context) error
	Logger logger.Logger
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status     string       `json:"status"`
	Timestamp  string       `json:"timestamp"`
	Resource   string       `json:"resource"`
	Uptime     string       `json:"uptime"`
	LastRun    string       `json:"last_run,omitempty"`
	LastStatus types.Status `json:"last_status,omitempty"`
}

// Server serialises reconciliations of one resource
type Server struct {
	cfg   Config
	rec   Reconciler
	opts  Options
	log   logger.Logger
	now   func() time.Time
	start time.Time

	// mu is held for the whole of a reconciliation
	mu sync.Mutex

	lastMu sync.RWMutex
	last   *types.ReconciliationOutcome
}

// New creates a server for rec
func New(cfg Config, rec Reconciler, opts Options) *Server {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		cfg:   cfg,
		rec:   rec,
		opts:  opts,
		log:   log.WithField("component", "server"),
		now:   time.Now,
		start: time.Now(),
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleEvent)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	return mux
}

// Reconcile runs one reconciliation, waiting for any run in progress
func (s *Server) Reconcile(ctx context.Context, trigger types.Trigger) types.ReconciliationOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.rec.Reconcile(ctx, trigger)

	s.lastMu.Lock()
	s.last = &outcome
	s.lastMu.Unlock()

	if s.opts.Flush != nil {
		if err := s.opts.Flush(ctx); err != nil {
			s.log.Error("failed to flush metrics", err)
		}
	}
	return outcome
}

// Last returns the most recent outcome, if any
func (s *Server) Last() (types.ReconciliationOutcome, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return types.ReconciliationOutcome{}, false
	}
	return *s.last, true
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}

	// a client disconnect must not abort a remediation half way
	ctx := context.WithoutCancel(r.Context())
	outcome := s.Reconcile(ctx, types.Trigger(body))
	writeJSON(w, outcome.Status.HTTPStatus(), outcome)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: now.UTC().Format(time.RFC3339),
		Resource:  s.rec.Resource().String(),
		Uptime:    now.Sub(s.start).Round(time.Second).String(),
	}
	if last, ok := s.Last(); ok {
		resp.LastRun = last.StartedAt.UTC().Format(time.RFC3339)
		resp.LastStatus = last.Status
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RunSchedule runs a drift check every interval until ctx is done
func (s *Server) RunSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome := s.Reconcile(ctx, types.ScheduledTrigger(s.now()))
			s.log.WithField("status", outcome.Status.String()).Debug("scheduled drift check finished")
		}
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.cfg.DriftInterval > 0 {
		go s.RunSchedule(ctx, s.cfg.DriftInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("listen", s.cfg.Listen).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
