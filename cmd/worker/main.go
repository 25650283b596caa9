// Worker processes background jobs from Redis: sign-in push alerts and, when QR sessions live in Postgres,
// the periodic sweep of expired sessions. REDIS_ADDR is required.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"workforce-auth/internal/config"
	"workforce-auth/internal/db"
	employeerepo "workforce-auth/internal/employee/repository"
	"workforce-auth/internal/jobs"
	"workforce-auth/internal/notify/push"
	"workforce-auth/internal/platform/logging"
	"workforce-auth/internal/qr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer database.Close()

	var pusher jobs.Pusher = &push.LogSender{Logger: logger}
	if cfg.FirebaseCredentialsFile != "" {
		client, err := push.NewFirebaseMessaging(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			return err
		}
		pusher = push.NewFCMSender(client, employeerepo.NewPostgresRepository(database), logger)
	} else {
		logger.Warn("FIREBASE_CREDENTIALS_FILE not set: sign-in alerts are only logged")
	}

	var sweep *jobs.QRSweepHandler
	if cfg.QRStore == "postgres" {
		sweep = jobs.NewQRSweepHandler(qr.NewPostgresStore(database), nil, logger)
		scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logger.Sugar()})
		task, opts := jobs.NewQRSweepTask()
		if _, err := scheduler.Register(jobs.QRSweepSpec, task, opts...); err != nil {
			return fmt.Errorf("schedule %s: %w", jobs.TypeQRSweep, err)
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer scheduler.Shutdown()
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			jobs.QueueNotifications: 6,
			jobs.QueueMaintenance:   1,
		},
		Logger: logger.Sugar(),
	})
	if err := srv.Start(jobs.NewServeMux(jobs.NewSignInAlertHandler(pusher, logger), sweep)); err != nil {
		return fmt.Errorf("asynq: %w", err)
	}
	logger.Info("worker started", zap.Int("concurrency", cfg.AsynqConcurrency), zap.Bool("qr_sweep", sweep != nil))

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown()
	return nil
}
