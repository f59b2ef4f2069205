// The worker binary consumes queued notification tasks: emergency alerts and
// booking confirmations. It shares the API's config and database but runs as
// a separate process so slow delivery never competes with call handling.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callintake_backend/internal/email"
	"callintake_backend/internal/notification/sms"
	"callintake_backend/internal/scheduler"
	"callintake_backend/platform/config"
	"callintake_backend/platform/db"
	"callintake_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting notification worker", "env", cfg.Env, "queue", cfg.AsynqQueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	pool, err := db.NewPool(connectCtx, cfg)
	cancel()
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	smsClient := sms.NewClient(cfg, log)
	if smsClient == nil {
		log.Warn("SMS gateway not configured; text alerts disabled")
	}
	alertSender := email.NewAlertSender(cfg)
	if alertSender == nil {
		log.Warn("SMTP not configured; email alerts disabled")
	}

	worker, err := scheduler.NewWorker(cfg, pool, smsClient, alertSender, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("worker error", "error", err)
		panic("worker error: " + err.Error())
	}
	log.Info("worker stopped")
}
