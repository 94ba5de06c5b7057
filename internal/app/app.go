// Package app wires the central server and the terminal agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aridosvaldez/aridos/internal/accounts"
	"github.com/aridosvaldez/aridos/internal/accounts/jwt"
	accountspostgres "github.com/aridosvaldez/aridos/internal/accounts/postgres"
	accountsredis "github.com/aridosvaldez/aridos/internal/accounts/redis"
	"github.com/aridosvaldez/aridos/internal/catalog"
	catalogpostgres "github.com/aridosvaldez/aridos/internal/catalog/postgres"
	"github.com/aridosvaldez/aridos/internal/config"
	"github.com/aridosvaldez/aridos/internal/identity"
	"github.com/aridosvaldez/aridos/internal/movements"
	movementspostgres "github.com/aridosvaldez/aridos/internal/movements/postgres"
	"github.com/aridosvaldez/aridos/internal/pkg/ctxlog"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	"github.com/aridosvaldez/aridos/internal/pkg/metrics"
	"github.com/aridosvaldez/aridos/internal/pkg/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const metricsInterval = 15 * time.Second

// App is the central server: accounts and movements over PostgreSQL,
// token sessions in Redis.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates the server application.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(connectCtx).Err(); err != nil {
		db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		redis:         rdb,
		metricsCancel: metricsCancel,
	}

	go metrics.Poll(metricsCtx, metricsInterval, func() { metrics.RecordDBPoolMetrics(db) })
	go metrics.Poll(metricsCtx, metricsInterval, func() { metrics.RecordRedisPoolMetrics(rdb) })

	router, err := app.setupRouter()
	if err != nil {
		metricsCancel()
		db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	app.metricsServer = newMetricsServer(fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort))

	return app, nil
}

// Run starts the HTTP servers and blocks until the main one stops.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()
	err := shutdownServers(ctx, a.server, a.metricsServer)

	a.db.Close()
	if cerr := a.redis.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close redis: %w", cerr))
	}
	return err
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := newRouter(a.logger, a.config.CORS.AllowedOrigins)

	r.Get("/healthz", healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", versionHandler)
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	authenticator, err := jwt.NewAuthenticator(jwt.Config{
		Secret:   a.config.JWT.Secret,
		TokenTTL: a.config.JWT.TokenTTL,
	}, accountsredis.NewSessionStore(a.redis))
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	authz := identity.DefaultPermissions

	accountsService := accounts.NewService(accountspostgres.NewRepository(a.db), authenticator)
	accountsHandler := accounts.NewHandler(accountsService, authenticator, authz)

	movementsService := movements.NewService(movementspostgres.NewRepository(a.db))
	movementsHandler := movements.NewHandler(movementsService, authz)

	catalogHandler := catalog.NewHandler(catalog.NewService(catalogpostgres.NewRepository(a.db)), authz)

	r.Route("/api/v1", func(r chi.Router) {
		accountsHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authenticator))

			accountsHandler.RegisterProtectedRoutes(r)
			movementsHandler.RegisterProtectedRoutes(r)
			catalogHandler.RegisterProtectedRoutes(r)
		})
	})

	return r, nil
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

// newRouter returns a chi router with the common middleware stack.
func newRouter(logger *slog.Logger, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(allowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(logger, "/healthz", "/readyz"))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	return r
}

// shutdownServers shuts the servers down in parallel.
func shutdownServers(ctx context.Context, servers ...*http.Server) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, srv := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}
