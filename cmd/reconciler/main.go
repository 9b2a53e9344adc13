package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/chat"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/config"
	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/internal/metrics"
	"github.com/hackgods/hospital-scheduling/internal/realtime"
	"github.com/hackgods/hospital-scheduling/internal/reconcile"
	redisclient "github.com/hackgods/hospital-scheduling/internal/redis"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("reconciler stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("reconciler starting up",
		zap.Duration("complete_interval", cfg.CompleteInterval),
		zap.Duration("prepare_interval", cfg.PrepareInterval),
		zap.Duration("purge_interval", cfg.PurgeInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PgMaxConns})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection error: %w", err)
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("redis connection error: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	clk := clock.New(cfg.Location)
	m := metrics.New(prometheus.DefaultRegisterer)

	// Sockets live in the api-server processes. Only the redis relay can
	// reach them from here.
	var notifier chat.Notifier
	if cfg.ChatRelay == "redis" {
		notifier = realtime.NewRedisRelay(rdb, nil, logger)
	} else {
		logger.Warn("chat relay is local, purged sessions will not disconnect live sockets")
	}

	appointments := appointment.NewService(appointment.NewPgRepository(pgPool), clk, m, logger)
	chats := chat.NewService(chat.NewPgRepository(pgPool), notifier, clk, chat.Config{
		PrepareHorizon: cfg.ChatPrepareHorizon,
		ExpiryFactor:   cfg.ChatExpiryFactor,
		BacklogMaxPage: cfg.ChatBacklogMaxPage,
	}, logger)

	sched := reconcile.NewScheduler(redisclient.NewLocker(rdb, cfg.LockTTL), reconcile.Options{
		Timeout:     cfg.SweepTimeout,
		MaxAttempts: cfg.SweepMaxAttempts,
	}, m, logger)
	sched.Add(
		reconcile.CompleteAppointments(appointments, cfg.CompleteInterval),
		reconcile.PrepareChats(chats, cfg.PrepareInterval),
		reconcile.PurgeChats(chats, cfg.PurgeInterval),
	)

	sched.Start(ctx)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	sched.Stop()

	logger.Info("reconciler stopped")
	return nil
}
