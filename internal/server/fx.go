// Package server builds the source API from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/api"
	"github.com/notaspider/comick-source-api/internal/botwall"
	rediscache "github.com/notaspider/comick-source-api/internal/cache/redis"
	"github.com/notaspider/comick-source-api/internal/clock/system"
	"github.com/notaspider/comick-source-api/internal/config"
	collyfetcher "github.com/notaspider/comick-source-api/internal/fetcher/colly"
	headlessfetcher "github.com/notaspider/comick-source-api/internal/fetcher/headless"
	proxyfetcher "github.com/notaspider/comick-source-api/internal/fetcher/proxy"
	"github.com/notaspider/comick-source-api/internal/health"
	"github.com/notaspider/comick-source-api/internal/id/uuid"
	"github.com/notaspider/comick-source-api/internal/metrics"
	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/search"
	"github.com/notaspider/comick-source-api/internal/sources/builtin"
	pgstore "github.com/notaspider/comick-source-api/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *scraper.Registry
	client    *retrieval.Client
	health    *health.Service
	search    *search.Aggregator
	apiServer *api.Server
	redis     *goredis.Client
	history   *pgstore.HealthStore
	headless  *headlessfetcher.Fetcher
}

// Registry returns the populated adapter registry.
func (a *App) Registry() *scraper.Registry { return a.registry }

// Health returns the health service.
func (a *App) Health() *health.Service { return a.health }

// Search returns the search aggregator.
func (a *App) Search() *search.Aggregator { return a.search }

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Build creates the application's dependencies. Stores that cannot be
// reached fail the build rather than degrading silently.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("proxy_mode", cfg.Proxy.Mode),
		zap.String("health_cache", cfg.Health.Cache),
		zap.Bool("health_history", cfg.Health.History),
	)

	direct := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     config.Seconds(cfg.Fetch.DirectTimeoutSeconds),
		MaxBodySize: cfg.Fetch.MaxBodyBytes,
	})

	proxy, err := app.setupProxy(direct)
	if err != nil {
		return nil, err
	}

	app.client = retrieval.NewClient(direct, proxy,
		retrieval.WithClassifier(botwall.Default),
		retrieval.WithDirectTimeout(config.Seconds(cfg.Fetch.DirectTimeoutSeconds)),
		retrieval.WithProxyTimeout(config.Seconds(cfg.Fetch.ProxyTimeoutSeconds)),
		retrieval.WithLogger(logger.Named("retrieval")),
	)

	if err := app.setupRegistry(); err != nil {
		app.Close(ctx)
		return nil, err
	}

	cache, err := app.setupCache(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupHistory(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}

	clock := system.New()
	prober := health.NewProber(health.ProberConfig{
		Fetcher:    direct,
		Classifier: botwall.Default,
		Timeout:    config.Seconds(cfg.Health.ProbeTimeoutSeconds),
		Clock:      clock,
		Logger:     logger.Named("prober"),
	})
	svcCfg := health.ServiceConfig{
		Adapters:     app.registry,
		Prober:       prober,
		Cache:        cache,
		Clock:        clock,
		Logger:       logger.Named("health"),
		SingleFlight: cfg.Health.SingleFlight,
	}
	deps := api.Dependencies{
		Registry: app.registry,
		Proxy:    direct,
		Ready:    app.ready,
	}
	if app.history != nil {
		svcCfg.History = app.history
		deps.History = app.history
	}
	app.health = health.NewService(svcCfg)
	app.search = search.New(app.registry, logger.Named("search"))

	deps.Health = app.health
	deps.Search = app.search
	app.apiServer = api.NewServer(deps, cfg, logger)

	return app, nil
}

func (a *App) setupProxy(direct retrieval.Fetcher) (retrieval.Fetcher, error) {
	switch a.cfg.Proxy.Mode {
	case config.ProxyModeHTTP:
		f, err := proxyfetcher.New(a.cfg.Proxy.Endpoint, direct)
		if err != nil {
			return nil, fmt.Errorf("proxy fetcher init failed: %w", err)
		}
		a.logger.Info("using http proxy stage", zap.String("endpoint", a.cfg.Proxy.Endpoint))
		return f, nil
	case config.ProxyModeHeadless:
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: config.Seconds(a.cfg.Headless.NavTimeoutSeconds),
			ChallengeWait:     config.Seconds(a.cfg.Headless.ChallengeWaitSeconds),
			Classifier:        botwall.Default,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = f
		a.logger.Info("using headless proxy stage", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		return f, nil
	default:
		a.logger.Warn("no proxy stage configured, fallbacks will fail at the proxy stage")
		return nil, nil
	}
}

func (a *App) setupRegistry() error {
	overrides := make(map[string]builtin.Override, len(a.cfg.Sources))
	for id, src := range a.cfg.Sources {
		o := builtin.Override{Disabled: src.Disabled, BaseURL: src.BaseURL}
		if src.Strategy != "" {
			strategy, err := retrieval.ParseStrategy(src.Strategy)
			if err != nil {
				return fmt.Errorf("sources.%s: %w", id, err)
			}
			o.Strategy = strategy
		}
		overrides[id] = o
	}
	a.registry = scraper.NewRegistry()
	if err := builtin.Register(a.registry, a.client, overrides, a.logger.Named("sources")); err != nil {
		return fmt.Errorf("source registration failed: %w", err)
	}
	a.logger.Info("sources registered", zap.Strings("sources", a.registry.Names()))
	return nil
}

func (a *App) setupCache(ctx context.Context) (health.Cache, error) {
	if a.cfg.Health.Cache != config.CacheRedis {
		a.logger.Info("using in-memory health cache", zap.Duration("ttl", a.cfg.HealthTTL()))
		return health.NewMemoryCache(a.cfg.HealthTTL()), nil
	}
	cache, client, err := rediscache.New(ctx, rediscache.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		Key:      a.cfg.Redis.Key,
		TTL:      a.cfg.HealthTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("redis health cache init failed: %w", err)
	}
	a.redis = client
	a.logger.Info("using redis health cache", zap.String("addr", a.cfg.Redis.Addr))
	return cache, nil
}

func (a *App) setupHistory(ctx context.Context) error {
	if !a.cfg.Health.History {
		return nil
	}
	store, err := pgstore.NewHealthStore(ctx, pgstore.HealthStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	}, uuid.New())
	if err != nil {
		return fmt.Errorf("health history store init failed: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return err
	}
	a.history = store
	a.logger.Info("health history enabled", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Run serves HTTP until ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}
	a.logger.Info("shutdown initiated")

	timeout := config.Seconds(a.cfg.Server.ShutdownTimeoutSeconds)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close(shutdownCtx)
	return runErr
}

// Close releases external resources. It is safe to call on a partially
// built App.
func (a *App) Close(_ context.Context) {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.history != nil {
		a.history.Close()
	}
	a.logger.Info("shutdown complete")
}
