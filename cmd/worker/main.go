package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/signalhouse/notify/internal/callback"
	"github.com/signalhouse/notify/internal/config"
	"github.com/signalhouse/notify/internal/dispatch"
	"github.com/signalhouse/notify/internal/queue"
	"github.com/signalhouse/notify/internal/repository"
	"github.com/signalhouse/notify/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	// Connect to the database. Schema migration is owned by the API
	// binary; the worker assumes the schema is already in place.
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Connect to the broker. Topology declaration is idempotent, so the
	// worker declares it too and can start ahead of the API.
	broker, err := queue.Dial(cfg.AMQP.URL(), logger)
	if err != nil {
		logger.Fatalf("Failed to connect to broker: %v", err)
	}
	defer broker.Close()

	if err := broker.DeclareTopology(cfg.Worker.RetryDelay); err != nil {
		logger.Fatalf("Failed to declare broker topology: %v", err)
	}

	// Wire the dispatch engine to the provider registry
	store := repository.NewStore(db)
	emitter := callback.NewEmitter(broker, cfg.Callback.WebhookTimeout, logger)
	engine := dispatch.NewEngine(store, nil, emitter, logger)

	w := worker.New(engine, broker, cfg.Worker, logger)

	// Run until interrupted. Start returns nil on a clean shutdown and an
	// error when the delivery stream breaks, so the process exits non-zero
	// and the orchestrator restarts it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		logger.Fatalf("Dispatch worker failed: %v", err)
	}

	logger.Info("Worker exited")
}

// newLogger builds the service logger from configuration.
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.App.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// initDatabase opens the database connection
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{}
	if cfg.App.Environment == "production" {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	} else {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), gormConfig)
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}
