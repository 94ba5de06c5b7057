package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aridosvaldez/aridos/internal/backend"
	"github.com/aridosvaldez/aridos/internal/config"
	"github.com/aridosvaldez/aridos/internal/connectivity"
	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/identity"
	"github.com/aridosvaldez/aridos/internal/notifications"
	"github.com/aridosvaldez/aridos/internal/notifications/email"
	"github.com/aridosvaldez/aridos/internal/notifications/mattermost"
	"github.com/aridosvaldez/aridos/internal/notifications/telegram"
	"github.com/go-chi/chi/v5"
)

// Agent runs on a terminal at the quarry: it owns the operator session,
// queues movements while the backend is unreachable and serves a local API.
type Agent struct {
	config     *config.Config
	logger     *slog.Logger
	sessions   *identity.SessionManager
	prober     *connectivity.Prober
	tracker    *connectivity.Tracker
	dispatcher *notifications.Dispatcher
	feed       *notifications.Feed
	worker     *notifications.Worker

	server        *http.Server
	metricsServer *http.Server
	cancel        context.CancelFunc
}

// NewAgent creates the agent. ctx bounds the initial reachability check.
func NewAgent(ctx context.Context, cfg *config.Config) (*Agent, error) {
	logger := initLogger(cfg.Log)

	policy, err := connectivity.ParseSyncPolicy(cfg.Agent.SyncPolicy)
	if err != nil {
		return nil, err
	}

	routes, err := buildRoutes(cfg.Notifications)
	if err != nil {
		return nil, fmt.Errorf("configure notifications: %w", err)
	}

	renderer, err := notifications.NewRenderer(cfg.Notifications.Site)
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	var worker *notifications.Worker
	if len(routes) > 0 {
		w := cfg.Notifications.Worker
		worker = notifications.NewWorker(notifications.WorkerConfig{
			QueueSize:         w.QueueSize,
			NumWorkers:        w.NumWorkers,
			MaxAttempts:       w.MaxAttempts,
			InitialBackoff:    w.InitialBackoff,
			MaxBackoff:        w.MaxBackoff,
			BackoffMultiplier: w.BackoffMultiplier,
			SendTimeout:       w.SendTimeout,
		}, renderer, logger)
	}
	feed := notifications.NewFeed(cfg.Notifications.FeedSize)
	dispatcher := notifications.NewDispatcher(feed, worker, routes...)

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.Agent.BackendURL,
		Timeout: cfg.Agent.RequestTimeout,
	}, backend.NewFileStore(cfg.Agent.TokenFile), logger)

	prober := connectivity.NewProber(connectivity.ProberConfig{
		URL:              strings.TrimRight(cfg.Agent.BackendURL, "/") + cfg.Agent.Probe.Path,
		Interval:         cfg.Agent.Probe.Interval,
		Timeout:          cfg.Agent.Probe.Timeout,
		FailureThreshold: cfg.Agent.Probe.FailureThreshold,
	}, logger)
	online := prober.Check(ctx)

	tracker := connectivity.NewTracker(online, client, dispatcher.Source("connectivity"),
		connectivity.WithSyncPolicy(policy),
		connectivity.WithLogger(logger),
	)

	a := &Agent{
		config:     cfg,
		logger:     logger,
		sessions:   identity.NewSessionManager(client, identity.WithLogger(logger)),
		prober:     prober,
		tracker:    tracker,
		dispatcher: dispatcher,
		feed:       feed,
		worker:     worker,
	}

	a.server = &http.Server{
		Addr:              cfg.Agent.Listen,
		Handler:           a.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	a.metricsServer = newMetricsServer(cfg.Agent.MetricsListen)

	logger.Info("agent configured",
		"backend", cfg.Agent.BackendURL,
		"online", online,
		"sync_policy", policy,
		"notification_routes", dispatcher.Routes(),
	)
	return a, nil
}

// Run starts background work and the local API, blocking until the API stops.
func (a *Agent) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.worker != nil {
		a.worker.Start(runCtx)
	}

	if err := a.sessions.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start session manager: %w", err)
	}
	if err := a.tracker.Watch(a.prober); err != nil {
		cancel()
		return fmt.Errorf("watch connectivity: %w", err)
	}
	go a.prober.Run(runCtx)

	go func() {
		a.logger.Info("starting metrics server", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting agent", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("agent server error: %w", err)
	}
	return nil
}

// Shutdown stops the API, then background work. Pending operations that
// were never synced are logged since the queue lives only in memory.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down agent")

	err := shutdownServers(ctx, a.server, a.metricsServer)

	if a.cancel != nil {
		a.cancel()
	}
	a.tracker.Close()
	a.sessions.Close()
	if a.worker != nil {
		a.worker.Stop()
	}

	if pending := a.tracker.PendingOperations(); len(pending) > 0 {
		a.logger.Warn("discarding unsynced operations", "count", len(pending))
	}
	return err
}

// Router returns the local API handler for testing.
func (a *Agent) Router() http.Handler {
	return a.server.Handler
}

func (a *Agent) setupRouter() *chi.Mux {
	r := newRouter(a.logger, a.config.CORS.AllowedOrigins)

	r.Get("/healthz", healthzHandler)
	r.Get("/version", versionHandler)

	sessionHandler := identity.NewHandler(a.sessions, identity.DefaultMenu, a.config.Agent.SignInTimeout)
	connectivityHandler := connectivity.NewHandler(a.tracker, func(perm domain.Permission) func(http.Handler) http.Handler {
		return identity.RequirePermission(a.sessions, perm)
	})
	notificationsHandler := notifications.NewHandler(a.feed)

	r.Route("/api/v1", func(r chi.Router) {
		sessionHandler.RegisterRoutes(r)
		connectivityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireSession(a.sessions))
			notificationsHandler.RegisterRoutes(r)
		})
	})

	return r
}

// buildRoutes turns the enabled channels into dispatcher routes.
func buildRoutes(cfg config.NotificationsConfig) ([]notifications.Route, error) {
	var routes []notifications.Route

	if cfg.Mattermost.Enabled {
		minSeverity, err := notifications.ParseSeverity(cfg.Mattermost.MinSeverity)
		if err != nil {
			return nil, fmt.Errorf("mattermost: %w", err)
		}
		routes = append(routes, notifications.Route{
			Sender: mattermost.NewSender(mattermost.Config{
				WebhookURL: cfg.Mattermost.WebhookURL,
				Channel:    cfg.Mattermost.Channel,
				Username:   cfg.Mattermost.Username,
				IconURL:    cfg.Mattermost.IconURL,
			}),
			Format:      notifications.FormatMarkdown,
			MinSeverity: minSeverity,
		})
	}

	if cfg.Telegram.Enabled {
		minSeverity, err := notifications.ParseSeverity(cfg.Telegram.MinSeverity)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender, err := telegram.NewSender(telegram.Config{
			BotToken:  cfg.Telegram.BotToken,
			ChatID:    cfg.Telegram.ChatID,
			RateLimit: cfg.Telegram.RateLimit,
		})
		if err != nil {
			return nil, err
		}
		routes = append(routes, notifications.Route{
			Sender:      sender,
			Format:      notifications.FormatHTML,
			MinSeverity: minSeverity,
		})
	}

	if cfg.Email.Enabled {
		minSeverity, err := notifications.ParseSeverity(cfg.Email.MinSeverity)
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
		sender, err := email.NewSender(email.Config{
			Host:       cfg.Email.SMTPHost,
			Port:       cfg.Email.SMTPPort,
			Username:   cfg.Email.SMTPUser,
			Password:   cfg.Email.SMTPPassword,
			From:       cfg.Email.FromAddress,
			Recipients: cfg.Email.Recipients,
			TLSMode:    cfg.Email.TLSMode,
		})
		if err != nil {
			return nil, err
		}
		routes = append(routes, notifications.Route{
			Sender:      sender,
			Format:      notifications.FormatPlain,
			MinSeverity: minSeverity,
		})
	}

	return routes, nil
}
