package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/cache"
	"classtrack/internal/config"
	"classtrack/internal/queue"
	"classtrack/internal/roster"
	"classtrack/internal/storage/postgres"
	"classtrack/internal/storage/sqlite"
)

// Worker consumes attendance-change events and keeps the Redis coverage
// cache warm so dashboard reads stay cheap. It shares the storage backend
// with the API; the in-memory backend has no cross-process story, so the
// worker only runs against postgres or sqlite.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	var (
		academicRepo   academic.Repository
		attendanceRepo attendance.Repository
		rosterRepo     roster.Repository
	)
	switch cfg.StoreBackend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect failed", zap.Error(err))
		}
		defer db.Close()
		store := postgres.NewStore(db)
		academicRepo, attendanceRepo, rosterRepo = store, store, store
	default:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite open failed", zap.Error(err))
		}
		defer store.Close()
		academicRepo, attendanceRepo, rosterRepo = store, store, store
	}

	cov := cache.NewCoverage(cfg.RedisAddr, cfg.CoverageTTL)
	q := queue.NewRedisQueue(cov.Client(), "classtrack:events")

	academics := academic.NewService(academicRepo)
	accounts := roster.NewService(rosterRepo, academics, cfg.OwnerEmail)
	ledger := attendance.NewService(attendanceRepo, academics, accounts)

	events, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started")
	for evt := range events {
		switch evt.Type {
		case queue.TypeMark, queue.TypeUnmark:
			report, err := ledger.ComputeCoverage(ctx, evt.StudentID)
			if err != nil {
				logger.Warn("coverage recompute failed",
					zap.String("student", evt.StudentID), zap.Error(err))
				continue
			}
			cov.Set(ctx, evt.StudentID, report)
			logger.Info("coverage warmed",
				zap.String("student", evt.StudentID),
				zap.Float64("percent", report.Percent))
		case queue.TypeSessionDeleted:
			// deletion changes totals for every student of the semester
			cov.InvalidateAll(ctx)
			logger.Info("session deleted, coverage cache flushed",
				zap.String("session", evt.SessionID))
		}
	}
	logger.Info("worker stopped")
}
