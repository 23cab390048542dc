package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/bondtab/internal/adapter/http"
	"github.com/iho/bondtab/internal/adapter/http/handler"
	"github.com/iho/bondtab/internal/adapter/http/middleware"
	memoryRepo "github.com/iho/bondtab/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/bondtab/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/bondtab/internal/adapter/repository/redis"
	"github.com/iho/bondtab/internal/infrastructure/auth"
	"github.com/iho/bondtab/internal/infrastructure/clock"
	"github.com/iho/bondtab/internal/infrastructure/config"
	"github.com/iho/bondtab/internal/infrastructure/eventpublisher"
	"github.com/iho/bondtab/internal/infrastructure/idgen"
	"github.com/iho/bondtab/internal/infrastructure/logger"
	"github.com/iho/bondtab/internal/infrastructure/metrics"
	"github.com/iho/bondtab/internal/infrastructure/postgres"
	"github.com/iho/bondtab/internal/infrastructure/redis"
	"github.com/iho/bondtab/internal/usecase"
)

const (
	limiterCleanupInterval = time.Minute
	limiterMaxIdle         = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// app is the wired service: the HTTP handler plus its background workers.
type app struct {
	handler     http.Handler
	publisher   *eventpublisher.EventPublisher
	rateLimiter *middleware.RateLimiter
	closers     []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.publisher.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event publisher: %w", err)
		}
		return nil
	})

	if a.rateLimiter != nil {
		g.Go(func() error {
			a.rateLimiter.RunCleanup(gctx, limiterCleanupInterval, limiterMaxIdle)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newApp wires storage, use cases and the router from cfg.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	m := metrics.New(reg)

	var (
		stores usecase.Stores
		vault  usecase.Vault
		checks []handler.HealthCheck
	)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		log.Info().Msg("connected to postgres")

		if cfg.RunMigrations {
			if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
				a.Close()
				return nil, err
			}
		}

		stores = postgresRepo.NewStores(pool, postgresRepo.NewRetrier(log))
		vault = postgresRepo.NewVault(pool)
		checks = append(checks, handler.HealthCheck{Name: "postgres", Ping: pool.Ping})
	default:
		store := memoryRepo.NewStore()
		stores = memoryRepo.NewStores(store)
		vault = memoryRepo.NewVault(store)
		log.Warn().Msg("using in-memory storage, state is lost on restart")
	}

	var (
		redisClient      *goredis.Client
		idempotencyStore usecase.IdempotencyStore
	)
	if cfg.RedisEnabled {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		log.Info().Msg("connected to redis")

		redisClient = client
		idempotencyStore = redisRepo.NewIdempotencyStore(client)
		checks = append(checks, handler.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	} else {
		log.Info().Msg("redis disabled, idempotency keys are ignored")
	}

	clk := clock.System{}
	deps := usecase.Dependencies{
		Stores:   stores,
		Custody:  vault,
		Clock:    clk,
		IDGen:    idgen.NewULIDGenerator(),
		Logger:   log,
		Recorder: m,
	}

	registry := usecase.NewReputationRegistry(cfg.RegistryAdminAddress(), deps)
	if err := registry.Bootstrap(ctx, cfg.FactoryAddr()); err != nil {
		a.Close()
		return nil, fmt.Errorf("bootstrap registry: %w", err)
	}
	factory := usecase.NewGroupFactory(cfg.FactoryAddr(), deps, registry)

	var sink eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
	if cfg.EventSink == config.SinkRedis {
		sink = eventpublisher.NewStreamPublisher(redisClient, cfg.EventStream, 0)
	}
	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: stores.Outbox,
		Publisher:  sink,
		Observer:   m,
		Clock:      clk,
		Logger:     log,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
		Retention:  cfg.OutboxRetention,
	})

	var jwt *auth.JWTManager
	if cfg.AuthEnabled {
		jwt = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}
	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	}

	a.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		GroupHandler:          handler.NewGroupHandler(factory),
		LedgerHandler:         handler.NewLedgerHandler(factory),
		ExpenseHandler:        handler.NewExpenseHandler(factory),
		DisputeHandler:        handler.NewDisputeHandler(factory),
		ReputationHandler:     handler.NewReputationHandler(registry),
		VaultHandler:          handler.NewVaultHandler(usecase.NewVaultUseCase(vault, deps, cfg.VaultMintEnabled)),
		EventHandler:          handler.NewEventHandler(stores.Outbox, factory),
		ReconciliationHandler: handler.NewReconciliationHandler(usecase.NewReconciliationUseCase(factory, clk)),
		HealthHandler:         handler.NewHealthHandler(checks...),
		Authenticator:         middleware.NewAuthenticator(jwt, m),
		IdempotencyStore:      idempotencyStore,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		RateLimiter:           a.rateLimiter,
		Metrics:               m,
		MetricsHandler:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:                log,
	})

	return a, nil
}
