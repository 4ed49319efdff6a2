package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/api"
	"github.com/hackgods/appointment-notifications/internal/auth"
	"github.com/hackgods/appointment-notifications/internal/config"
	"github.com/hackgods/appointment-notifications/internal/db"
	"github.com/hackgods/appointment-notifications/internal/logging"
	"github.com/hackgods/appointment-notifications/internal/notification"
	"github.com/hackgods/appointment-notifications/internal/realtime"
	redisclient "github.com/hackgods/appointment-notifications/internal/redis"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notification-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("notification-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.NotificationHTTPPort),
		zap.String("event_channel", cfg.EventChannel),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresMaxConns,
		MinConns: cfg.PostgresMinConns,
	})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	store := notification.NewPgRepository(pgPool)
	if err := store.EnsureSchema(rootCtx); err != nil {
		return err
	}

	// The subscriber keeps retrying, so an unreachable Redis is not fatal here
	rdb := redisclient.NewClient(redisclient.Options{
		Addr:       cfg.RedisAddr,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
		ClientName: "notification-server",
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	if err := redisclient.Ping(rootCtx, rdb); err != nil {
		logger.Warn("redis unreachable at startup, subscriber will retry", zap.Error(err))
	}

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, logger)
	materializer := notification.NewMaterializer(store, dispatcher, logger)
	consumer := notification.NewConsumer(materializer, logger)
	subscriber := redisclient.NewSubscriber(rdb, redisclient.SubscriberConfig{
		Channel:    cfg.EventChannel,
		BackoffMin: cfg.BusBackoffMin,
		BackoffMax: cfg.BusBackoffMax,
	}, logger)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	channels := realtime.NewHandler(verifier, registry, realtime.HandlerConfig{
		SendBuffer:     cfg.ChannelSendBuffer,
		PingInterval:   cfg.ChannelPingInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	health := api.NewHealthHandler(
		pgPool.Ping,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		cfg.Env,
		version,
	)

	router := api.NewNotificationRouter(api.NotificationRouterConfig{
		History:        materializer,
		Verifier:       verifier,
		Channels:       channels,
		Health:         health,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	events := make(chan []byte, 256)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(events)
		if err := subscriber.Run(workCtx, events); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber exited", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		consumer.Run(workCtx, events)
	}()

	// No write timeout: live channels are long-lived hijacked connections
	srv := &http.Server{
		Addr:              ":" + cfg.NotificationHTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down notification-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	cancelWork()
	wg.Wait()

	users, open := registry.Stats()
	logger.Info("notification-server stopped", zap.Int("users", users), zap.Int("channels", open))
	return serveErr
}
