package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Weekly timetable assignment and publication engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if version, err := database.Version(ctx, db); err == nil {
		logr.Info("database schema ready", zap.Int64("version", version))
	}

	grid, err := service.LoadTimeGrid(ctx, repository.NewTimeBlockRepository(db))
	if err != nil {
		logr.Fatal("failed to load time grid", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Timetable.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Timetable.CacheTTL, logr, redisClient != nil)

	assignmentRepo := repository.NewAssignmentRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	entityRepo := repository.NewEntityRepository(db)
	tx := database.NewTransactor(db)
	lock := service.NewBookLock(cfg.Timetable.AdvisoryLockKey, database.AdvisoryLock)

	deps := dependencies{
		cfg:          cfg,
		logger:       logr,
		db:           db,
		grid:         grid,
		metrics:      metrics,
		verifier:     service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer),
		availability: service.NewAvailabilityService(grid, availabilityRepo, entityRepo, nil, logr),
		assignments:  service.NewAssignmentService(grid, assignmentRepo, availabilityRepo, entityRepo, tx, lock, metrics, nil, logr),
		publications: service.NewPublicationService(grid, repository.NewPublicationRepository(db), assignmentRepo, tx, lock, cacheSvc, metrics,
			service.PublicationConfig{CacheTTL: cfg.Timetable.CacheTTL, ExportTitle: cfg.Timetable.ExportTitle}, logr),
	}
	if cfg.Timetable.AuditMutations {
		deps.audit = repository.NewAuditRepository(db)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "blocks", len(grid.Blocks()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logr.Sugar().Fatalw("server failed", "error", err)
	case <-ctx.Done():
		logr.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("could not stop server gracefully", zap.Error(err))
		_ = srv.Close()
	}
}
