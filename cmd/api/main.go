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

	"callintake_backend/internal/archive"
	"callintake_backend/internal/calls"
	"callintake_backend/internal/companies"
	"callintake_backend/internal/events"
	apphttp "callintake_backend/internal/http"
	"callintake_backend/internal/http/router"
	"callintake_backend/internal/intent"
	"callintake_backend/internal/notification"
	"callintake_backend/internal/scheduler"
	"callintake_backend/internal/scheduling"
	"callintake_backend/internal/webhook"
	"callintake_backend/platform/config"
	"callintake_backend/platform/db"
	"callintake_backend/platform/logger"
	"callintake_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	rdb := initRedis(cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	taskClient, closeTaskClient := initTaskClient(cfg, log)
	if closeTaskClient != nil {
		defer closeTaskClient()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	classifier, err := loadClassifier(cfg)
	if err != nil {
		log.Error("failed to load intent ruleset", "error", err, "path", cfg.RulesetPath)
		panic("failed to load intent ruleset: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	companyDir := companies.New(pool)

	schedulingModule := scheduling.NewModule(pool, val, eventBus, log)
	callsModule := calls.NewModule(pool, classifier, eventBus, log)
	defer callsModule.Close()

	dedupeTTL := time.Duration(cfg.DedupeTTLHours) * time.Hour
	webhookModule := webhook.NewModule(
		pool,
		rdb,
		callsModule.Service,
		schedulingModule.Service,
		companyDir,
		callsModule.Service,
		classifier,
		eventBus,
		val,
		log,
		dedupeTTL,
	)

	// Notification subscribers turn domain events into queued tasks.
	notification.NewModule(taskClient, eventBus, log)

	archiver, err := archive.New(cfg, eventBus, log)
	if err != nil {
		log.Error("failed to initialize call archive", "error", err)
		panic("failed to initialize call archive: " + err.Error())
	}
	if archiver != nil {
		if err := withRetry(ctx, log, "ensure archive bucket", 5, 2*time.Second, func() error {
			return archiver.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure archive bucket exists", "error", err)
			panic("failed to ensure archive bucket exists: " + err.Error())
		}
		log.Info("call archive initialized", "bucket", cfg.MinioBucketCallArchives)
	}

	// Duration tick loop for the live dashboard.
	callsModule.Start(ctx)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			callsModule,
			schedulingModule,
			webhookModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		<-srvErr
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func loadClassifier(cfg config.IntakeConfig) (*intent.Classifier, error) {
	path := cfg.GetRulesetPath()
	if path == "" {
		return intent.NewClassifier(intent.DefaultRuleset()), nil
	}
	rules, err := intent.LoadRuleset(path)
	if err != nil {
		return nil, err
	}
	return intent.NewClassifier(rules), nil
}

func initRedis(cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not configured; webhook dedupe disabled")
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid REDIS_URL; webhook dedupe disabled", "error", err)
		return nil
	}
	return redis.NewClient(opt)
}

func initTaskClient(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; emergency alerts and confirmations disabled")
		return nil, nil
	}

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		return nil, nil
	}

	return taskClient, func() {
		_ = taskClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
