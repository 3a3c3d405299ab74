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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-archive-api/api/swagger"
	"github.com/noah-isme/attendance-archive-api/internal/handler"
	"github.com/noah-isme/attendance-archive-api/internal/middleware"
	"github.com/noah-isme/attendance-archive-api/internal/repository"
	"github.com/noah-isme/attendance-archive-api/internal/retention"
	"github.com/noah-isme/attendance-archive-api/internal/service"
	"github.com/noah-isme/attendance-archive-api/pkg/cache"
	"github.com/noah-isme/attendance-archive-api/pkg/config"
	"github.com/noah-isme/attendance-archive-api/pkg/database"
	"github.com/noah-isme/attendance-archive-api/pkg/export"
	"github.com/noah-isme/attendance-archive-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-archive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-archive-api/pkg/middleware/requestid"
	"github.com/noah-isme/attendance-archive-api/pkg/storage"
)

// @title Attendance Archive API
// @version 1.0.0
// @description Monthly archive lifecycle, exports and data retention for attendance records
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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	photos, err := storage.NewPhotoStore(ctx, cfg.Photos, logger.Component(logr, "photos"))
	if err != nil {
		return fmt.Errorf("photo storage: %w", err)
	}

	loc := cfg.Archive.Location()
	clock := retention.SystemClock{Location: loc}
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logger.Component(logr, "cache"))
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Archive.SummaryCacheTTL, logger.Component(logr, "cache"), redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logger.Component(logr, "auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, cacheSvc, logger.Component(logr, "users"))
	archiveSvc := service.NewArchiveService(archiveRepo, attendanceRepo, assessmentRepo, photos, cacheSvc, metrics, userRepo, clock,
		logger.Component(logr, "archive"), service.ArchiveServiceConfig{
			Policy: retention.Policy{
				ReminderThresholdDays: cfg.Archive.ReminderThresholdDays,
				CleanupWindowDays:     cfg.Archive.CleanupWindowDays,
			},
			ClearAllPhrase: cfg.Archive.ClearAllPhrase,
			Location:       loc,
			SummaryTTL:     cfg.Archive.SummaryCacheTTL,
		})
	exportSvc := service.NewExportService(attendanceRepo, assessmentRepo, photos, archiveRepo,
		export.NewCSVExporter(), export.NewPDFExporter(), metrics, userRepo, clock,
		logger.Component(logr, "export"), service.ExportServiceConfig{Location: loc})

	if cfg.Archive.AutoCleanupEnabled {
		scheduler := service.NewCleanupScheduler(archiveSvc, service.CleanupSchedulerConfig{
			Schedule: cfg.Archive.CleanupSchedule,
			Location: loc,
		}, logger.Component(logr, "cleanup-scheduler"))
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	router := newRouter(cfg, logr, routerDeps{
		auth:      handler.NewAuthHandler(authSvc),
		users:     handler.NewUserHandler(userSvc),
		archive:   handler.NewArchiveHandler(archiveSvc, exportSvc, validate),
		metrics:   handler.NewMetricsHandler(metrics),
		validator: authSvc,
		metricSvc: metrics,
		limiter:   middleware.NewRateLimiter(cfg.RateLimit.DestructivePerMinute, cfg.RateLimit.Burst),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routerDeps struct {
	auth      *handler.AuthHandler
	users     *handler.UserHandler
	archive   *handler.ArchiveHandler
	metrics   *handler.MetricsHandler
	validator middleware.TokenValidator
	metricSvc *service.MetricsService
	limiter   *middleware.RateLimiter
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metricSvc))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Health)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", deps.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.validator))
	secured.GET("/auth/me", deps.auth.Me)

	admin := secured.Group("")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/metrics/system", deps.metrics.System)
	admin.GET("/users/professors", deps.users.Professors)

	archive := admin.Group("/archive")
	archive.GET("/summary", deps.archive.Summary)
	archive.GET("/export/attendance", deps.archive.ExportAttendance)
	archive.GET("/export/assessments", deps.archive.ExportAssessments)
	archive.GET("/export/monthly", deps.archive.ExportMonthly)

	destructive := archive.Group("")
	destructive.Use(middleware.RateLimit(deps.limiter))
	destructive.POST("/mark-complete", deps.archive.MarkComplete)
	destructive.POST("/cleanup", deps.archive.Cleanup)
	destructive.POST("/clear-all", deps.archive.ClearAll)

	return r
}
