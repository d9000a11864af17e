package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/signalhouse/notify/internal/callback"
	"github.com/signalhouse/notify/internal/config"
	"github.com/signalhouse/notify/internal/dispatch"
	"github.com/signalhouse/notify/internal/handlers"
	"github.com/signalhouse/notify/internal/middleware"
	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/queue"
	"github.com/signalhouse/notify/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate database schema
	if err := migrateDatabase(db, logger); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed reference rows (states, notification types)
	if err := repository.Seed(db); err != nil {
		logger.Fatalf("Failed to seed reference data: %v", err)
	}

	// Connect to the broker and declare the dispatch topology
	broker, err := queue.Dial(cfg.AMQP.URL(), logger)
	if err != nil {
		logger.Fatalf("Failed to connect to broker: %v", err)
	}
	defer broker.Close()

	if err := broker.DeclareTopology(cfg.Worker.RetryDelay); err != nil {
		logger.Fatalf("Failed to declare broker topology: %v", err)
	}

	// Initialize repositories and the dispatch engine. The API binary only
	// uses the engine for delivery report reconciliation; sending runs in
	// the worker binary.
	store := repository.NewStore(db)
	emitter := callback.NewEmitter(broker, cfg.Callback.WebhookTimeout, logger)
	engine := dispatch.NewEngine(store, nil, emitter, logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, broker)
	notifHandler := handlers.NewNotificationHandler(broker, engine, logger)

	// Setup router
	router := setupRouter(cfg, logger, healthHandler, notifHandler)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Notification API listening on %s (environment: %s)", addr, cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
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

// migrateDatabase runs database migrations
func migrateDatabase(db *gorm.DB, logger *logrus.Logger) error {
	// Run AutoMigrate for all models
	// GORM AutoMigrate safely handles existing tables:
	// - Creates tables if they don't exist
	// - Adds missing columns to existing tables
	// - Creates missing indexes
	// - Does NOT drop columns, change types, or delete data
	modelsToMigrate := []interface{}{
		&models.State{},
		&models.NotificationType{},
		&models.Organisation{},
		&models.System{},
		&models.Template{},
		&models.Provider{},
		&models.Notification{},
	}

	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	logger.Info("Database migration completed successfully")
	return nil
}

// setupRouter configures the HTTP routes and middleware.
func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	notifHandler *handlers.NotificationHandler,
) *gin.Engine {
	// Set Gin mode
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Setup middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// Health check endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/livez", healthHandler.Livez)
	router.GET("/readyz", healthHandler.Readyz)

	// Admission and delivery report endpoints
	router.POST("/send-notification/", notifHandler.Send)
	router.POST("/belio-sms-callback/", notifHandler.BelioDeliveryReport)

	return router
}
