package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/careatlas-systems/pulse/common/cache"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/retry"
	"github.com/careatlas-systems/pulse/query/internal/config"
	"github.com/careatlas-systems/pulse/query/internal/handlers"
	"github.com/careatlas-systems/pulse/query/internal/index"
	"github.com/careatlas-systems/pulse/query/internal/server"
	"github.com/careatlas-systems/pulse/query/internal/service"
	"github.com/careatlas-systems/pulse/query/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("query"))
	logging.SetDefault(logger)

	slog.Info("starting query service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level))

	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	startupCtx, startupCancel := context.WithCancel(context.Background())
	defer startupCancel()

	policy := retry.DefaultPolicy()
	logAttempt := func(dep string) retry.OnAttemptFailure {
		return func(attempt int, err error, nextDelay time.Duration) {
			slog.Warn("dependency not ready, retrying",
				slog.String("dependency", dep),
				slog.Int("attempt", attempt),
				slog.Duration("next_delay", nextDelay),
				logging.Error(err))
		}
	}

	var cacheClient *cache.Cache
	err = retry.Do(startupCtx, policy, func(ctx context.Context) error {
		var connErr error
		cacheClient, connErr = cache.New(ctx, cfg.Redis.URL)
		return connErr
	}, logAttempt("redis"))
	if err != nil {
		slog.Error("failed to connect to Redis", logging.Error(err))
		os.Exit(1)
	}
	defer cacheClient.Close()
	slog.Info("cache connected", slog.String("url", cfg.Redis.URL))

	if cfg.Database.URL == "" {
		slog.Error("database.url is required")
		os.Exit(1)
	}

	slog.Info("running database migrations")
	err = retry.Do(startupCtx, policy, func(ctx context.Context) error {
		m, err := migrate.New("file://"+cfg.Database.MigrationsDir, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	}, logAttempt("migrations"))
	if err != nil {
		slog.Error("failed to run migrations", logging.Error(err))
		os.Exit(1)
	}

	var facilityStore *store.PostgresStore
	err = retry.Do(startupCtx, policy, func(ctx context.Context) error {
		var connErr error
		facilityStore, connErr = store.NewPostgresStore(ctx, cfg.Database.URL)
		return connErr
	}, logAttempt("postgres"))
	if err != nil {
		slog.Error("failed to connect to Postgres", logging.Error(err))
		os.Exit(1)
	}
	defer facilityStore.Close()
	slog.Info("store connected")

	var searchIndex service.SearchIndex
	if cfg.OpenSearch.Enabled {
		var osClient *index.Client
		err = retry.Do(startupCtx, policy, func(ctx context.Context) error {
			var connErr error
			osClient, connErr = index.NewClient(index.Config{
				URL:      cfg.OpenSearch.URL,
				Username: cfg.OpenSearch.Username,
				Password: cfg.OpenSearch.Password,
				Insecure: cfg.OpenSearch.Insecure,
				Index:    cfg.OpenSearch.Index,
			})
			return connErr
		}, logAttempt("opensearch"))
		if err != nil {
			// The store answers searches in degraded mode; the index is
			// an optimization, not a requirement.
			slog.Warn("search index unavailable at startup, continuing degraded",
				logging.Error(err))
		} else {
			searchIndex = osClient
			slog.Info("search index connected", slog.String("url", cfg.OpenSearch.URL))
		}
	}

	svc := service.New(cacheClient, searchIndex, facilityStore, service.TTLConfig{
		Facility: cfg.Cache.FacilityTTL(),
		Search:   cfg.Cache.SearchTTL(),
		Negative: cfg.Cache.NegativeTTL(),
	}, slog.Default())
	h := handlers.New(svc, slog.Default())

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("query service listening", slog.String("addr", listenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("graceful shutdown failed", logging.Error(err))
	}
}
