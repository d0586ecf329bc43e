// Package api exposes the engine's operations to its collaborators (store
// UI, settings, onboarding, the platform agent) over HTTP with a JSON
// envelope. Collaborators never touch the state store directly; every
// mutation goes through these endpoints.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stepfence/StepFence/internal/config"
	"github.com/stepfence/StepFence/internal/countdown"
	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/mission"
	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/monitor"
	"github.com/stepfence/StepFence/internal/steps"
	"github.com/stepfence/StepFence/internal/tasks"
)

// DefaultAddr is the API listen address when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the engine components behind the HTTP surface.
type Server struct {
	cfg       *config.Config
	ledger    *ledger.Ledger
	tasks     *tasks.Manager
	mission   *mission.Manager
	tracker   *steps.Tracker
	countdown *countdown.Aggregator
	querier   *monitor.ReportedQuerier
	timer     models.Timer

	addr      string
	startedAt time.Time
	baseCtx   context.Context
	http      *http.Server
}

// NewServer creates the API server over the engine components.
func NewServer(baseCtx context.Context, cfg *config.Config, led *ledger.Ledger, tm *tasks.Manager, mm *mission.Manager, tracker *steps.Tracker, agg *countdown.Aggregator, querier *monitor.ReportedQuerier, timer models.Timer, opts ...Option) *Server {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	return &Server{
		cfg:       cfg,
		ledger:    led,
		tasks:     tm,
		mission:   mm,
		tracker:   tracker,
		countdown: agg,
		querier:   querier,
		timer:     timer,
		addr:      o.Addr,
		startedAt: time.Now(),
		baseCtx:   baseCtx,
	}
}

// Handler returns the routed HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/purchase", s.purchaseHandler)
	mux.HandleFunc("/balance", s.balanceHandler)
	mux.HandleFunc("/tasks", s.tasksHandler)
	mux.HandleFunc("/tasks/claim", s.claimHandler)
	mux.HandleFunc("/mission", s.missionHandler)
	mux.HandleFunc("/mission/evaluate", s.missionEvaluateHandler)
	mux.HandleFunc("/unlock/status", s.unlockStatusHandler)
	mux.HandleFunc("/whitelist", s.whitelistHandler)
	mux.HandleFunc("/whitelist/toggle", s.whitelistToggleHandler)
	mux.HandleFunc("/steps", s.stepsHandler)
	mux.HandleFunc("/foreground", s.foregroundHandler)
	mux.HandleFunc("/status", s.statusHandler)
	return mux
}

// Run serves the API until the base context is cancelled.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return s.baseCtx },
	}
	slog.Info("API server listening", "addr", s.addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
