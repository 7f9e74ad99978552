package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/cache"
	"classtrack/internal/config"
	"classtrack/internal/httpmiddleware"
	"classtrack/internal/queue"
	"classtrack/internal/roster"
	"classtrack/internal/storage/memory"
	"classtrack/internal/storage/postgres"
	"classtrack/internal/storage/sqlite"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx := context.Background()

	var (
		academicRepo   academic.Repository
		attendanceRepo attendance.Repository
		rosterRepo     roster.Repository
		dbHealthy      func(context.Context) bool
	)
	switch cfg.StoreBackend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		store := postgres.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		academicRepo, attendanceRepo, rosterRepo = store, store, store
		dbHealthy = func(ctx context.Context) bool { return db.PingContext(ctx) == nil }
	case "memory":
		store := memory.NewStore()
		academicRepo, attendanceRepo, rosterRepo = store, store, store
		dbHealthy = func(context.Context) bool { return true }
	default:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		academicRepo, attendanceRepo, rosterRepo = store, store, store
		dbHealthy = func(context.Context) bool { return true }
	}
	logger.Info("storage ready", zap.String("backend", cfg.StoreBackend))

	cov := cache.NewCoverage(cfg.RedisAddr, cfg.CoverageTTL)

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(cov.Client(), "classtrack:events")
	} else {
		q = queue.NewInMemory(64)
	}

	academics := academic.NewService(academicRepo)
	accounts := roster.NewService(rosterRepo, academics, cfg.OwnerEmail)
	ledger := attendance.NewService(attendanceRepo, academics, accounts)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisOK := cov.Healthy(c.Request.Context())
		dbOK := dbHealthy(c.Request.Context())
		status := http.StatusOK
		if !dbOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbOK, "redis": redisOK})
	})

	registerRoutes(r, &app{
		cfg:      cfg,
		logger:   logger,
		academic: academics,
		roster:   accounts,
		ledger:   ledger,
		coverage: cov,
		queue:    q,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// requestLogger is a zap-backed access log, skipping probe endpoints.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
