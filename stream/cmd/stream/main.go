package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careatlas-systems/pulse/common/cache"
	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/messaging"
	"github.com/careatlas-systems/pulse/common/messaging/memory"
	natsclient "github.com/careatlas-systems/pulse/common/messaging/nats"
	"github.com/careatlas-systems/pulse/common/middleware"
	"github.com/careatlas-systems/pulse/common/retry"
	"github.com/careatlas-systems/pulse/stream/internal/bus"
	"github.com/careatlas-systems/pulse/stream/internal/config"
	"github.com/careatlas-systems/pulse/stream/internal/handlers"
	"github.com/careatlas-systems/pulse/stream/internal/invalidator"
	"github.com/careatlas-systems/pulse/stream/internal/notify"
	"github.com/careatlas-systems/pulse/stream/internal/server"
	"github.com/careatlas-systems/pulse/stream/internal/sse"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "override listen address")
	dev := flag.Bool("dev", false, "run with the in-process message bus (no NATS required)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("stream"))
	logging.SetDefault(logger)

	slog.Info("starting stream service",
		slog.Int("port", cfg.Server.Port),
		slog.Bool("dev", *dev),
		slog.String("log_level", cfg.Logging.Level))

	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	if *addr != "" {
		listenAddr = *addr
	}

	startupCtx, startupCancel := context.WithCancel(context.Background())
	defer startupCancel()

	// Dependencies may report healthy before they accept connections;
	// absorb the race instead of crash-looping.
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

	var msgClient messaging.Client
	if *dev {
		msgClient = memory.NewClient()
	} else {
		err = retry.Do(startupCtx, policy, func(ctx context.Context) error {
			var connErr error
			msgClient, connErr = natsclient.NewClient(natsclient.Config{
				URL:           cfg.NATS.URL,
				Name:          "pulse-stream",
				MaxReconnects: cfg.NATS.MaxReconnects,
				ReconnectWait: cfg.NATS.ReconnectWaitDuration(),
				Timeout:       5 * time.Second,
			})
			return connErr
		}, logAttempt("nats"))
		if err != nil {
			slog.Error("failed to connect to NATS", logging.Error(err))
			os.Exit(1)
		}
	}
	defer msgClient.Close()
	slog.Info("message bus connected", slog.String("url", cfg.NATS.URL))

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

	eventBus := bus.New(msgClient, slog.Default())
	notifier := notify.New(eventBus, slog.Default())
	manager := sse.NewManager(eventBus, sse.Config{
		HeartbeatInterval: cfg.Stream.HeartbeatInterval(),
		QueueSize:         cfg.Stream.QueueSize,
	}, slog.Default())

	invCtx, invCancel := context.WithCancel(context.Background())
	defer invCancel()
	inv := invalidator.New(eventBus, cacheClient, slog.Default())
	go func() {
		if err := inv.Run(invCtx); err != nil {
			slog.Error("cache invalidator exited", logging.Error(err))
		}
	}()

	h := handlers.New(manager, notifier, msgClient, slog.Default())
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Stream.AllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.Stream.AllowedOrigins
	}

	srv := &http.Server{
		Addr:        listenAddr,
		Handler:     server.NewRouter(h, corsCfg),
		ReadTimeout: cfg.Server.ReadTimeout(),
		IdleTimeout: cfg.Server.IdleTimeout(),
		// No WriteTimeout: SSE responses are open-ended.
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("stream service listening", slog.String("addr", listenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
	defer cancel()

	// Broadcast the shutdown notice and drain connections before the HTTP
	// server closes their transports.
	if err := manager.Shutdown(ctx); err != nil {
		slog.Warn("streaming connections did not drain cleanly", logging.Error(err))
	}
	invCancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("graceful shutdown failed", logging.Error(err))
	}
}
