package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/plantops/valve-ledger-api/docs" // Swagger docs
	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/config"
	"github.com/plantops/valve-ledger-api/internal/database"
	"github.com/plantops/valve-ledger-api/internal/handlers"
	"github.com/plantops/valve-ledger-api/internal/jobs"
	"github.com/plantops/valve-ledger-api/internal/metrics"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/internal/storage"
	"github.com/plantops/valve-ledger-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

// @title Valve Ledger API
// @version 1.0
// @description Valve and instrument datasheet records with draft, review and approval workflow
// @description grouped into ledgers, with spreadsheet import/export and PDF datasheets.

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment)

	// Initialize Sentry (GlitchTip) when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
			Release:          "valve-ledger-api@" + version,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	if err := database.Migrate(db); err != nil {
		logger.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized storage", "driver", cfg.StorageDriver)

	settingsCache := newCache(ctx, cfg)

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, store, settingsCache, cfg)

	if err := database.Seed(ctx, repos, svcs.Setting, cfg.SeedDemoUsers); err != nil {
		logger.Error("Seeding failed", "error", err)
		os.Exit(1)
	}

	// Schedule recurring jobs
	svcs.Job.Schedule()
	logger.Info("Scheduled recurring jobs")

	if err := handlers.RegisterValidators(); err != nil {
		logger.Error("Failed to register validators", "error", err)
		os.Exit(1)
	}

	limiter := middleware.NewPerMinuteLimiter(cfg.RateLimitPerMinute)
	go limiter.Cleanup(ctx)

	router := setupRouter(handlers.NewHandlers(svcs, version), cfg, limiter)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // uploads
		WriteTimeout:      60 * time.Second, // exports
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Pending notifications drain before the pool closes
	worker.Shutdown()
	logger.Info("Background worker stopped")

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func newStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	if cfg.StorageDriver == "s3" {
		return storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	}
	return storage.NewLocalStorage(cfg.StoragePath)
}

// newCache uses Redis when REDIS_URL is set and reachable, otherwise an in-process cache
func newCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache()
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process settings cache", "error", err)
		return cache.NewMemoryCache()
	}
	logger.Info("Connected to Redis")
	return cache.NewRedisCache(client, "valve-ledger:settings:")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Redirect root to swagger
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	h.Register(router.Group("/api/v1"), middleware.Auth(cfg.JWTSecret), limiter.Middleware())

	return router
}
