package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/doxen-app/doxen/pkg/api/v1"
	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/clients"
	"github.com/doxen-app/doxen/pkg/common"
	"github.com/doxen-app/doxen/pkg/metrics"
	"github.com/doxen-app/doxen/pkg/oauth"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/sources"
	providerclients "github.com/doxen-app/doxen/pkg/sources/clients"
	"github.com/doxen-app/doxen/pkg/types"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 60 * time.Second
)

type Gateway struct {
	Config      types.AppConfig
	RedisClient *common.RedisClient
	BackendRepo repository.BackendRepository
	httpServer  *http.Server
	echo        *echo.Echo
	ctx         context.Context
	cancelFunc  context.CancelFunc

	baseRouteGroup *echo.Group
	rootRouteGroup *echo.Group

	metricsRegistry *prometheus.Registry
	metrics         *metrics.Collector

	registry  *oauth.Registry
	refresher *oauth.Refresher
	handshake *oauth.Handshake
	archive   *clients.DocumentArchive
	sources   *sources.Service
}

// NewGateway loads configuration from the default locations and builds a gateway.
func NewGateway() (*Gateway, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return nil, err
	}
	return New(configManager.GetConfig())
}

// New builds a gateway from an already loaded config.
func New(config types.AppConfig) (*Gateway, error) {
	SetupLogging(config)

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		Config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
		registry:   oauth.NewRegistry(),
	}

	if err := g.initBackend(); err != nil {
		cancel()
		return nil, err
	}

	return g, nil
}

// SetupLogging switches the global logger to console output at debug level
// when pretty logs are enabled.
func SetupLogging(config types.AppConfig) {
	if config.PrettyLogs {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

func (g *Gateway) initBackend() error {
	// Local mode: skip Redis and Postgres
	if g.Config.IsLocalMode() {
		log.Info().Msg("running in local mode - redis and postgres disabled")
		g.BackendRepo = repository.NewMemoryBackend()
		return nil
	}

	redisClient, err := common.NewRedisClient(g.Config.Database.Redis, common.WithClientName("DoxenGateway"))
	if err != nil {
		return err
	}
	g.RedisClient = redisClient

	backend, err := repository.NewPostgresBackend(g.Config.Database.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	g.BackendRepo = backend

	unlock, err := g.initLock("migrations")
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer unlock()

	if err := backend.RunMigrations(g.ctx); err != nil {
		return fmt.Errorf("failed to run postgres migrations: %w", err)
	}
	return nil
}

func (g *Gateway) initLock(name string) (func(), error) {
	// Skip locking in local mode (no Redis)
	if g.RedisClient == nil {
		return func() {}, nil
	}

	lockKey := common.Keys.GatewayInitLock(name)
	lock := common.NewRedisLock(g.RedisClient)

	if err := lock.Acquire(g.ctx, lockKey, common.RedisLockOptions{TtlS: 30, Retries: 30}); err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Release(lockKey); err != nil {
			log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release init lock")
		}
	}, nil
}

func (g *Gateway) initMetrics() {
	g.metricsRegistry = prometheus.NewRegistry()
	g.metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	g.metrics = metrics.NewCollector(g.metricsRegistry)
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: g.Config.Gateway.HTTP.CORS.AllowedOrigins,
		AllowHeaders: g.Config.Gateway.HTTP.CORS.AllowedHeaders,
		AllowMethods: g.Config.Gateway.HTTP.CORS.AllowedMethods,
	}))

	e.Use(middleware.Recover())

	timeout := g.Config.Gateway.HTTP.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{Timeout: timeout}))

	if g.Config.Auth.JWTSecret == "" {
		log.Warn().Msg("auth.jwtSecret is empty - every authenticated request will be rejected")
	}
	e.Use(auth.HTTPMiddleware(auth.NewJWTValidator(g.Config.Auth)))

	g.echo = e
	g.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute)
	g.rootRouteGroup = e.Group(apiv1.HttpServerRootRoute)

	checks := map[string]apiv1.Pinger{"database": g.BackendRepo}
	if g.RedisClient != nil {
		checks["redis"] = redisPinger{g.RedisClient}
	}
	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), checks)
	g.rootRouteGroup.GET("/metrics", echo.WrapHandler(metrics.Handler(g.metricsRegistry)))

	return nil
}

// registerServices builds the token, provider and import layers and mounts
// their routes.
func (g *Gateway) registerServices() error {
	cfg := g.Config

	httpClient := &http.Client{Timeout: cfg.Providers.HTTPTimeout}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 30 * time.Second
	}

	// OAuth providers
	if cfg.OAuth.Google.IsConfigured() {
		g.registry.Register(oauth.NewGoogleProvider(cfg.OAuth.Google, oauth.WithHTTPClient(httpClient)))
	}
	if cfg.OAuth.Slack.IsConfigured() {
		g.registry.Register(oauth.NewSlackProvider(cfg.OAuth.Slack, oauth.WithHTTPClient(httpClient)))
	}
	log.Info().Strs("providers", g.registry.ListConfiguredProviders()).Msg("oauth providers registered")

	var lock *common.RedisLock
	if g.RedisClient != nil {
		lock = common.NewRedisLock(g.RedisClient)
	}

	g.refresher = oauth.NewRefresher(g.registry, g.BackendRepo, lock, g.metrics, oauth.RefresherConfig{
		Margin:          cfg.Providers.RefreshMargin,
		DefaultLifetime: cfg.Providers.DefaultTokenLifetime,
	})
	g.handshake = oauth.NewHandshake(g.registry, oauth.NewStateCodec(stateSecret(cfg), cfg.OAuth.StateTTL), g.BackendRepo)

	// Provider API clients share one limiter and one HTTP client
	clientOpts := providerclients.Options{
		HTTPClient:  httpClient,
		Limiter:     providerclients.NewRateLimiter(providerclients.RateLimitConfig{RequestsPerSecond: cfg.Providers.RequestsPerSecond}),
		Metrics:     g.metrics,
		Concurrency: cfg.Providers.FanoutConcurrency,
	}

	// Document archive (optional)
	var archive sources.DocumentArchive
	if cfg.Storage.S3.IsConfigured() {
		docs, err := clients.NewDocumentArchive(g.ctx, cfg.Storage.S3)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create document archive - imports will not be archived")
		} else if err := docs.EnsureBucket(g.ctx); err != nil {
			log.Warn().Err(err).Str("bucket", docs.Bucket()).Msg("document archive bucket unavailable - imports will not be archived")
		} else {
			g.archive = docs
			archive = docs
		}
	}

	g.sources = sources.NewService(sources.ServiceOpts{
		Store:   g.BackendRepo,
		Tokens:  g.refresher,
		Gmail:   providerclients.NewGmailClient(clientOpts, ""),
		Slack:   providerclients.NewSlackClient(clientOpts, ""),
		Archive: archive,
		Lock:    lock,
		Metrics: g.metrics,
		Config: sources.Config{
			GmailListMax:      cfg.Providers.GmailListMax,
			SlackMessageLimit: cfg.Providers.SlackMessageLimit,
			DedupPolicy:       types.ParseDedupPolicy(cfg.Imports.DedupPolicy),
		},
	})

	apiv1.NewGmailGroup(g.baseRouteGroup.Group("/gmail"), g.handshake, g.sources)
	apiv1.NewSlackGroup(g.baseRouteGroup.Group("/slack"), g.handshake, g.sources)
	apiv1.NewConnectionsGroup(g.baseRouteGroup.Group("/connections"), g.BackendRepo)
	apiv1.NewProjectsGroup(g.baseRouteGroup.Group("/projects"), g.BackendRepo)
	apiv1.NewSourcesGroup(g.baseRouteGroup.Group("/projects/:project_id/sources"), g.sources)

	log.Info().
		Str("dedup_policy", string(types.ParseDedupPolicy(cfg.Imports.DedupPolicy))).
		Bool("archive", g.archive != nil).
		Msg("import service registered")

	return nil
}

// stateSecret falls back to the identity secret, then to a per-process
// random secret which invalidates in-flight handshakes on restart.
func stateSecret(cfg types.AppConfig) string {
	if cfg.OAuth.StateSecret != "" {
		return cfg.OAuth.StateSecret
	}
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	log.Warn().Msg("oauth.stateSecret is empty - using a random per-process secret")
	return uuid.NewString()
}

// Handler returns the gateway's HTTP handler after wiring every route.
func (g *Gateway) Handler() (http.Handler, error) {
	if g.echo != nil {
		return g.echo, nil
	}

	g.initMetrics()

	if err := g.initHTTP(); err != nil {
		return nil, fmt.Errorf("failed to initialize http server: %w", err)
	}

	if err := g.registerServices(); err != nil {
		return nil, fmt.Errorf("failed to register services: %w", err)
	}

	return g.echo, nil
}

// StartAsync starts the gateway server without blocking.
func (g *Gateway) StartAsync() error {
	if _, err := g.Handler(); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http: %w", err)
	}

	go func() {
		if err := g.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Str("mode", g.Config.Mode).
		Msg("gateway http server running")

	return nil
}

// Start is the gateway entry point. It blocks until SIGINT or SIGTERM.
func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	g.Shutdown()

	return nil
}

// Shutdown gracefully shuts down the gateway
func (g *Gateway) Shutdown() {
	timeout := g.Config.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Drain in-flight requests before closing the stores they use.
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown http server gracefully")
		}
	}

	eg, _ := errgroup.WithContext(ctx)

	if g.BackendRepo != nil {
		eg.Go(func() error {
			return g.BackendRepo.Close()
		})
	}

	if g.RedisClient != nil {
		eg.Go(func() error {
			return g.RedisClient.Close()
		})
	}

	g.cancelFunc()

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to shutdown gateway gracefully")
	}

	log.Info().Msg("gateway stopped")
}

type redisPinger struct {
	rdb *common.RedisClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
