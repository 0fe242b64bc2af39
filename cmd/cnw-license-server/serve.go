package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense"
	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense/licensestore"
	"github.com/CloudNativeWorks/cnw-license-server/internal/config"
	"github.com/CloudNativeWorks/cnw-license-server/internal/httpserver"
	"github.com/CloudNativeWorks/cnw-license-server/internal/logging"
	"github.com/CloudNativeWorks/cnw-license-server/internal/ratelimit"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the activation HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Warn("serving without full configuration; /activate will fail", slog.String("error", err.Error()))
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var issuer *cnwlicense.Issuer
	if cfg.Signing.Secret != "" {
		issuer, err = cnwlicense.NewIssuer([]byte(cfg.Signing.Secret))
		if err != nil {
			return err
		}
	}

	svc := cnwlicense.NewService(store, issuer, cnwlicense.WithLogger(logger))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []httpserver.Option{
		httpserver.WithLogger(logger),
		httpserver.WithRegistry(reg),
		httpserver.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Server.TrustProxy {
		opts = append(opts, httpserver.WithTrustProxy())
	}
	if cfg.Logging.Requests {
		opts = append(opts, httpserver.WithRequestLogging(cfg.Logging.Format == "json"))
	}
	if cfg.RateLimit.Enabled {
		limiter, closeLimiter, err := openLimiter(ctx, cfg.RateLimit)
		if err != nil {
			return err
		}
		defer closeLimiter()
		opts = append(opts, httpserver.WithLimiter(limiter))
	}

	return httpserver.New(svc, opts...).ListenAndServe(ctx, cfg.Addr(), cfg.Server)
}

// openStore connects to the configured database. It returns a nil store when
// no database URL is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (licensestore.Store, func(), error) {
	noop := func() {}
	driver, err := cfg.StoreDriver()
	if err != nil {
		return nil, noop, err
	}

	switch driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		store, err := licensestore.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		logger.Info("using postgres license store")
		return store, pool.Close, nil

	case config.DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Store.DatabaseURL))
		if err != nil {
			return nil, noop, fmt.Errorf("connect mongo: %w", err)
		}
		closeClient := func() { _ = client.Disconnect(context.Background()) }
		store, err := licensestore.NewMongoStore(ctx, client.Database(cfg.Store.MongoDatabase))
		if err != nil {
			closeClient()
			return nil, noop, err
		}
		logger.Info("using mongo license store", slog.String("database", cfg.Store.MongoDatabase))
		return store, closeClient, nil

	default:
		return nil, noop, nil
	}
}

func openLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		return ratelimit.NewMemory(cfg.RPS, cfg.Burst), func() {}, nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return ratelimit.NewRedis(client, cfg.Requests, cfg.Window), func() { _ = client.Close() }, nil
}
