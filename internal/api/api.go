// Package api provides HTTP handlers and the main API server logic for MoodPipe.
//
// It exposes RESTful endpoints for screenshot analysis, message
// classification, workflow inspection, wellness assessment, and health
// provider authorization. Run wires the store, analysis engine, providers,
// and scheduler together and serves until interrupted.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/bus"
	"github.com/BTreeMap/MoodPipe/internal/emotion"
	"github.com/BTreeMap/MoodPipe/internal/engine"
	"github.com/BTreeMap/MoodPipe/internal/health"
	"github.com/BTreeMap/MoodPipe/internal/insight"
	"github.com/BTreeMap/MoodPipe/internal/metrics"
	"github.com/BTreeMap/MoodPipe/internal/providers"
	"github.com/BTreeMap/MoodPipe/internal/scheduler"
	"github.com/BTreeMap/MoodPipe/internal/store"
	"github.com/BTreeMap/MoodPipe/internal/vision"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultUserID attributes requests that carry no user identifier.
	DefaultUserID = "default"
	// DefaultShutdownTimeout bounds the graceful drain of in-flight requests.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultSyncTimeout bounds one scheduled sweep over all connected
	// providers, including the chained insight aggregation.
	DefaultSyncTimeout = time.Minute
	// DefaultReadHeaderTimeout bounds how long a client may dribble headers.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	SyncSchedule string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSyncSchedule sets the cron expression for periodic provider syncs.
func WithSyncSchedule(expr string) Option {
	return func(o *Opts) { o.SyncSchedule = expr }
}

// ProviderOptions carries the per-provider option sets assembled by main
// from the environment. A provider with no credentials is still registered;
// it just cannot complete authorization until configured.
type ProviderOptions struct {
	Strava    []providers.Option
	GoogleFit []providers.Option
	Withings  []providers.Option
}

// pendingAuth remembers who started an authorization flow so the callback
// can attribute the stored session.
type pendingAuth struct {
	userID   string
	issuedAt time.Time
}

// Server holds the wired subsystems behind the HTTP handlers.
type Server struct {
	engine   *engine.Engine
	history  *emotion.HistoryStore
	agg      *health.Aggregator
	registry *providers.Registry
	st       store.Store

	mu      sync.Mutex
	pending map[string]pendingAuth // state token -> initiating user
}

// NewServer creates a Server over already-constructed subsystems.
func NewServer(eng *engine.Engine, history *emotion.HistoryStore, agg *health.Aggregator, registry *providers.Registry, st store.Store) *Server {
	return &Server{
		engine:   eng,
		history:  history,
		agg:      agg,
		registry: registry,
		st:       st,
		pending:  make(map[string]pendingAuth),
	}
}

// routes builds the HTTP mux for the API surface.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/screenshots", s.screenshotHandler)
	mux.HandleFunc("/api/v1/messages", s.messageHandler)
	mux.HandleFunc("/api/v1/workflows", s.workflowsHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.HandleFunc("/api/v1/results", s.resultsHandler)
	mux.HandleFunc("/api/v1/insights", s.insightsHandler)
	mux.HandleFunc("/api/v1/wellness", s.wellnessHandler)
	mux.HandleFunc("/api/v1/assessments", s.assessmentsHandler)
	mux.HandleFunc("/api/v1/assessments/score", s.scoreAssessmentHandler)
	mux.HandleFunc("/oauth/", s.oauthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run wires every subsystem from the given option sets and serves HTTP until
// the process receives SIGINT or SIGTERM. It owns the full lifecycle: store,
// bus, engine, providers, scheduler, and server are created here and torn
// down on the way out.
func Run(storeOpts []store.Option, visionOpts []vision.GeminiOption, insightOpts []insight.Option, providerOpts ProviderOptions, apiOpts []Option) error {
	cfg := Opts{
		Addr:         DefaultAddr,
		SyncSchedule: scheduler.DefaultSyncSchedule,
	}
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	slog.Debug("api.Run: configuration loaded", "addr", cfg.Addr, "sync_schedule", cfg.SyncSchedule)

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	b := bus.New(bus.WithPanicHook(metrics.RecordSubscriberPanic))

	adapter := vision.NewAdapter(
		vision.NewGeminiStrategy(visionOpts...),
		vision.NewPatternStrategy(),
	)
	generator := insight.NewGenerator(insightOpts...)

	eng, err := engine.New(
		engine.WithAdapter(adapter),
		engine.WithGenerator(generator),
		engine.WithBus(b),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	agg := health.NewAggregator()
	history := emotion.NewHistoryStore()
	registry := providers.NewRegistry(
		providers.NewStrava(providerOpts.Strava...),
		providers.NewGoogleFit(providerOpts.GoogleFit...),
		providers.NewWithings(providerOpts.Withings...),
	)

	recorder := store.NewRecorder(st)
	detach := recorder.Attach(b, engine.TopicAnalysisCompleted)
	defer detach()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	syncJob := func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultSyncTimeout)
		defer cancel()
		if synced := registry.SyncAll(ctx, agg); synced > 0 {
			slog.Debug("api.Run: provider sync completed", "synced", synced)
			if _, aggErr := eng.AggregateInsights(ctx); aggErr != nil {
				slog.Warn("api.Run: insight aggregation after sync failed", "error", aggErr)
			}
		}
	}
	if err := sched.AddJob(cfg.SyncSchedule, syncJob); err != nil {
		return fmt.Errorf("failed to schedule provider sync: %w", err)
	}

	srv := NewServer(eng, history, agg, registry, st)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("MoodPipe API running", "addr", cfg.Addr)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	select {
	case serveErr := <-errCh:
		return fmt.Errorf("http server failed: %w", serveErr)
	case <-ctx.Done():
	}

	slog.Info("api.Run: shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
