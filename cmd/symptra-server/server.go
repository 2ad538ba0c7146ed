package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/symptra/symptra/internal/config"
	"github.com/symptra/symptra/internal/domain/request"
	"github.com/symptra/symptra/internal/platform/apierror"
	"github.com/symptra/symptra/internal/platform/auth"
	"github.com/symptra/symptra/internal/platform/db"
	"github.com/symptra/symptra/internal/platform/events"
	"github.com/symptra/symptra/internal/platform/logging"
	"github.com/symptra/symptra/internal/platform/middleware"
	"github.com/symptra/symptra/internal/platform/telemetry"
	"github.com/symptra/symptra/migrations"
)

const (
	serviceName  = "symptra"
	maxBodySize  = "1M"
	drainTimeout = 10 * time.Second
)

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.IsDev(),
		SamplingRatio:  cfg.OTelSamplingRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer provider", tp.Shutdown)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.MigrationsAuto {
		count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Int("applied", count).Msg("schema up to date")
	}

	metrics := telemetry.NewMetrics()
	metrics.RegisterPoolGauges(func() (int32, int32, int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	})

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	publisher, err := buildPublisher(cfg, redisClient, metrics, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	authMW, err := authMiddleware(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := newServer(serverDeps{
		cfg:       cfg,
		logger:    logger,
		store:     request.NewStorePG(pool),
		publisher: publisher,
		metrics:   metrics,
		auth:      authMW,
		redis:     redisClient,
		dbHealth:  db.HealthHandler(pool),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	// Let in-flight decision listeners finish publishing before the sinks close.
	srv.engine.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

func shutdownWithTimeout(logger zerolog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error().Err(err).Str("component", name).Msg("shutdown failed")
	}
}

// authMiddleware picks the identity adapter: a bearer token verifier when
// one is configured, the header-driven dev principal otherwise.
func authMiddleware(ctx context.Context, cfg *config.Config) (echo.MiddlewareFunc, error) {
	resolver, err := auth.NewCapabilityResolver(auth.DefaultPolicies())
	if err != nil {
		return nil, fmt.Errorf("build capability resolver: %w", err)
	}

	if cfg.AuthSigningKey == "" && cfg.AuthIssuer == "" {
		return auth.DevAuthMiddleware(resolver), nil
	}

	jwksURL := cfg.AuthJWKSURL
	if cfg.AuthSigningKey == "" && jwksURL == "" {
		jwksURL, err = auth.DiscoverJWKSURL(ctx, cfg.AuthIssuer)
		if err != nil {
			return nil, fmt.Errorf("discover JWKS for %s: %w", cfg.AuthIssuer, err)
		}
	}
	jwtMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    jwksURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}, resolver)

	if cfg.IsDev() {
		// Tokens win; header identities still work for local multi-actor testing.
		dev := auth.DevAuthMiddleware(resolver)
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return jwtMW(dev(next))
		}, nil
	}
	return jwtMW, nil
}

type serverDeps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     request.Store
	publisher events.Publisher
	metrics   *telemetry.Metrics
	auth      echo.MiddlewareFunc
	redis     *redis.Client
	dbHealth  echo.HandlerFunc
}

type server struct {
	echo   *echo.Echo
	engine *request.ReviewEngine
}

func newServer(d serverDeps) (*server, error) {
	loc, err := d.cfg.Location()
	if err != nil {
		return nil, err
	}
	payloads, err := request.NewPayloadValidator(loc, time.Now)
	if err != nil {
		return nil, fmt.Errorf("load payload schemas: %w", err)
	}

	factory := request.NewFactory(d.store, payloads)
	factory.SetMetrics(d.metrics)
	engine := request.NewReviewEngine(d.store, d.logger)
	engine.SetMetrics(d.metrics)
	engine.Subscribe(request.NewEventForwarder(d.publisher, d.logger))
	engine.Subscribe(request.OnApproved(func(_ context.Context, r *request.Request) {
		if r.Type == request.TypeUserRegistration {
			d.logger.Info().Str("request_id", r.ID.String()).Msg("user registration approved; awaiting account provisioning")
		}
	}))
	views := request.NewViews(d.store)
	views.SetMetrics(d.metrics)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(d.logger)

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Tracing(serviceName))
	e.Use(d.metrics.Middleware())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders(!d.cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  d.cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, auth.DevUserHeader, auth.DevRolesHeader},
		ExposeHeaders: []string{request.ReplayHeader, echo.HeaderXRequestID, echo.HeaderLocation},
	}))
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(d.auth)
	e.Use(middleware.Audit(d.logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		d.metrics.RecordWorkflowChange(entry.Action, entry.StatusCode)
		return nil
	})))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.dbHealth != nil {
		e.GET("/health/db", d.dbHealth)
	}
	e.GET("/metrics", d.metrics.Handler())

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.RateLimitRPS,
		BurstSize:         d.cfg.RateLimitBurst,
		Redis:             d.redis,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
		rateLimitCfg.Redis = d.redis
	}
	limit := middleware.RateLimit(rateLimitCfg, d.logger)
	timeout := middleware.RequestTimeout(d.cfg.RequestTimeout)

	handler := request.NewHandler(factory, engine, views)
	// /api/requests is the path the booking widget was built against.
	for _, prefix := range []string{"/api/v1", "/api"} {
		handler.RegisterRoutes(e.Group(prefix, limit, timeout))
	}

	return &server{echo: e, engine: engine}, nil
}
