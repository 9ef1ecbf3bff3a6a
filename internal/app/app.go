// Package app wires the Parlance subsystems into a running service: the
// Postgres store, carrier clients, the campaign dispatcher, the media
// bridge, webhook routing, and the HTTP server with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/parlance-ai/parlance/internal/bandit"
	"github.com/parlance-ai/parlance/internal/bridge"
	"github.com/parlance-ai/parlance/internal/campaign"
	"github.com/parlance-ai/parlance/internal/config"
	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/health"
	"github.com/parlance-ai/parlance/internal/ivr"
	"github.com/parlance-ai/parlance/internal/observe"
	"github.com/parlance-ai/parlance/internal/registry"
	"github.com/parlance-ai/parlance/internal/session"
	"github.com/parlance-ai/parlance/internal/store"
	"github.com/parlance-ai/parlance/internal/tools"
	"github.com/parlance-ai/parlance/pkg/calendar"
	"github.com/parlance-ai/parlance/pkg/provider/llm"
	"github.com/parlance-ai/parlance/pkg/provider/realtime"
	"github.com/parlance-ai/parlance/pkg/sms"
	"github.com/parlance-ai/parlance/pkg/telephony"
)

// Providers holds the AI providers the app runs on. Populated by main from
// the provider registry, typically wrapped in resilience fallbacks.
type Providers struct {
	// Realtime is the combined speech-to-speech provider. Required.
	Realtime realtime.Provider

	// Speech is the streaming TTS provider for hybrid agents. Optional.
	Speech realtime.SpeechProvider

	// Classifier refines campaign reply intents. Optional; without it only
	// keyword classification runs.
	Classifier llm.Provider
}

// App owns every long-lived component of the Parlance server.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	store    *store.Store
	rdb      *redis.Client
	registry *registry.Registry[*session.Session]
	bridge   *bridge.Bridge
	disp     *campaign.Dispatcher
	calls    *telephony.Client

	srv      *http.Server
	stopOnce sync.Once
}

// Option customises an [App] during construction.
type Option func(*App)

// WithMetrics overrides the default metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New connects the store, builds the dispatcher and bridge, and assembles
// the HTTP server. The returned App is ready for [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.Realtime == nil {
		return nil, errors.New("app: realtime provider is required")
	}

	a := &App{
		cfg:      cfg,
		registry: registry.New[*session.Session](),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	st, err := store.NewStore(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	a.store = st

	var optOuts *campaign.OptOutCache
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		optOuts = campaign.NewOptOutCache(a.rdb)
	}

	a.calls = telephony.New(cfg.Carrier.BaseURL, cfg.Carrier.APIKey)
	messenger := sms.New(cfg.Carrier.BaseURL, cfg.Carrier.APIKey)

	var cal tools.Calendar
	if cfg.Calendar.APIKey != "" {
		cal = calendar.New(cfg.Calendar.BaseURL, cfg.Calendar.APIKey)
	}

	disp, err := campaign.New(campaign.Config{
		Backend:    campaign.NewStoreBackend(st),
		Messenger:  messenger,
		Dialer:     a.calls,
		OptOuts:    optOuts,
		Classifier: campaign.NewClassifier(providers.Classifier, 0),
		Bandit: bandit.New(bandit.Config{
			MinSamples:             cfg.Bandit.MinSamples,
			Draws:                  cfg.Bandit.Draws,
			WinnerProbability:      cfg.Bandit.WinnerProbability,
			EliminationProbability: cfg.Bandit.EliminationProbability,
		}),
		WebhookBaseURL: cfg.Server.PublicURL,
		PollInterval:   time.Duration(cfg.Campaign.PollIntervalSeconds) * time.Second,
		ClaimLimit:     cfg.Campaign.BatchSize,
		WarmupLadder:   cfg.Campaign.WarmupDailyCaps,
		Metrics:        a.metrics,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.disp = disp

	br, err := bridge.New(bridge.Config{
		Directory: bridge.NewStoreDirectory(st),
		Registry:  a.registry,
		Realtime:  providers.Realtime,
		Speech:    providers.Speech,
		Calendar:  cal,
		DTMF:      a.calls,
		Outcomes:  st.Anchors,
		Resolver:  disp,
		IVR: ivr.Config{
			ConsecutiveClassifications: cfg.IVR.ConsecutiveClassifications,
			LoopThreshold:              cfg.IVR.LoopThreshold,
			HistorySize:                cfg.IVR.HistorySize,
			UseJaccard:                 cfg.IVR.UseJaccard,
		},
		ConnectTimeout:  time.Duration(cfg.Session.ConnectTimeoutSeconds) * time.Second,
		CloseGrace:      time.Duration(cfg.Session.ShutdownGraceSeconds) * time.Second,
		ToolTimeout:     time.Duration(cfg.Session.ToolTimeoutSeconds) * time.Second,
		DTMFCooldown:    time.Duration(cfg.Session.DTMFCooldownMs) * time.Millisecond,
		SpeechFlushIdle: time.Duration(cfg.Session.SpeechFlushIdleMs) * time.Millisecond,
		Metrics:         a.metrics,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.bridge = br

	router := &WebhookRouter{
		Calls:          a.calls,
		Anchors:        st.Anchors,
		Registry:       a.registry,
		Replies:        disp,
		PublicURL:      cfg.Server.PublicURL,
		InboundAgentID: cfg.Carrier.InboundAgentID,
	}

	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "postgres", Check: st.Ping},
		health.Checker{Name: "redis", Check: a.checkRedis},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /voice/stream/{call_id}", br)
	mux.Handle("POST /webhooks/telephony", http.HandlerFunc(router.HandleTelephony))
	mux.Handle("POST /webhooks/sms", http.HandlerFunc(router.HandleSMS))

	a.srv = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
	return a, nil
}

// SeedAgents upserts every agent from a seed YAML file. Used by deployments
// that declare agents in configuration instead of the API.
func (a *App) SeedAgents(ctx context.Context, path string) error {
	af, err := domain.LoadAgentsFile(path)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	for _, agent := range af.Agents {
		if err := a.store.Agents.Upsert(ctx, agent); err != nil {
			return fmt.Errorf("app: seed agent %s: %w", agent.ID, err)
		}
		slog.Info("agent seeded", "agent_id", agent.ID, "display_name", agent.DisplayName)
	}
	return nil
}

// Run serves HTTP and drives the campaign dispatcher until ctx is cancelled,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.disp.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("server listening", "addr", a.srv.Addr, "tls", true)
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("server listening", "addr", a.srv.Addr, "tls", false)
			err = a.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown stops the HTTP server, drains active sessions within the
// configured grace period, and closes the store connections. Safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		grace := time.Duration(a.cfg.Session.ShutdownGraceSeconds) * time.Second
		ctx, cancel := context.WithTimeout(ctx, grace)
		defer cancel()

		slog.Info("shutting down", "active_sessions", a.registry.Len(), "grace", grace)

		if err := a.srv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		a.drainSessions(ctx)
		a.closeStores()
	})
	return nil
}

// drainSessions closes every registered session and waits for teardown until
// ctx expires.
func (a *App) drainSessions(ctx context.Context) {
	a.registry.Range(func(_ string, s *session.Session) bool {
		s.Close()
		return true
	})
	a.registry.Range(func(callID string, s *session.Session) bool {
		select {
		case <-s.Done():
			return true
		case <-ctx.Done():
			slog.Warn("session drain timed out", "call_id", callID)
			return false
		}
	})
}

func (a *App) closeStores() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			slog.Warn("redis close", "error", err)
		}
	}
	a.store.Close()
}

func (a *App) checkRedis(ctx context.Context) error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Ping(ctx).Err()
}
