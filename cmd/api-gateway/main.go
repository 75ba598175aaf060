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

	_ "github.com/noah-isme/sma-originality-api/api/swagger"
	"github.com/noah-isme/sma-originality-api/internal/handler"
	"github.com/noah-isme/sma-originality-api/internal/middleware"
	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/repository"
	"github.com/noah-isme/sma-originality-api/internal/service"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
	"github.com/noah-isme/sma-originality-api/pkg/cache"
	"github.com/noah-isme/sma-originality-api/pkg/config"
	"github.com/noah-isme/sma-originality-api/pkg/database"
	"github.com/noah-isme/sma-originality-api/pkg/export"
	"github.com/noah-isme/sma-originality-api/pkg/jobs"
	"github.com/noah-isme/sma-originality-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-originality-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-originality-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-originality-api/pkg/storage"
)

// @title SMA Originality API
// @version 1.0.0
// @description Background document verification service for course submissions
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The policy cache is an optimization; run without it.
		logr.Sugar().Warnw("redis unavailable, policy cache disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	docRepo := repository.NewDocumentRepository(db)
	actionRepo := repository.NewActionLogRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	policyRepo := repository.NewCachedPolicyRepository(repository.NewPolicyRepository(db), cacheRepo, cfg.Policy.TTL, logr)
	resolvers := repository.NewResolverRegistry(db)

	verifierClient := verifier.NewHTTPClient(verifier.Config{
		BaseURL: cfg.Verifier.BaseURL,
		Token:   cfg.Verifier.Token,
		Timeout: cfg.Verifier.RequestTimeout,
	}, logr)

	validate := validator.New()
	metrics := service.NewMetricsService()

	actionLog := service.NewActionLogService(actionRepo, policyRepo, logr)
	indexSvc := service.NewIndexService(docRepo, verifierClient, actionLog, metrics, logr, service.IndexServiceConfig{
		PollInterval: cfg.Index.PollInterval,
		PollBudget:   cfg.Index.PollBudget,
	})
	authSvc := service.NewAuthService(accountRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	admissionSvc := service.NewAdmissionService(docRepo, policyRepo, resolvers, indexSvc, actionLog, metrics, logr, service.AdmissionConfig{
		MinWords:          cfg.Admission.MinWords,
		AllowedExtensions: cfg.Admission.AllowedExtensions,
	})
	verificationSvc := service.NewVerificationService(docRepo, policyRepo, resolvers, verifierClient, indexSvc, actionLog, metrics, logr, service.VerificationConfig{
		ManualPollDelay: cfg.Verifier.ManualPollDelay,
		Attributes:      cfg.Attributes,
	})
	sweepSvc := service.NewSweepService(docRepo, policyRepo, verificationSvc, indexSvc, actionLog, metrics, logr, service.SweepServiceConfig{
		BatchSize:       cfg.Sweep.BatchSize,
		RetentionMonths: cfg.Retention.ActionLogMonths,
	})
	queueSvc := service.NewQueueService(docRepo, actionRepo, logr)
	eventSvc := service.NewEventService(admissionSvc, validate, logr, service.EventConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		Retries:    cfg.Events.Retries,
	})
	eventSvc.Start(ctx)
	defer eventSvc.Stop()

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("export storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.JWT.Secret, 24*time.Hour)
		exportSvc = service.NewExportService(docRepo, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			Workers:   cfg.Exports.Workers,
			Retries:   cfg.Exports.Retries,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	scheduler := jobs.NewScheduler(logr)
	if cfg.Sweep.Enabled {
		scheduler.Register("upload-sweep", cfg.Sweep.UploadInterval, func(ctx context.Context) error {
			_, err := sweepSvc.UploadAndCheckSweep(ctx)
			return err
		})
		scheduler.Register("status-sweep", cfg.Sweep.StatusInterval, func(ctx context.Context) error {
			_, err := sweepSvc.StatusControlSweep(ctx)
			return err
		})
	}
	scheduler.Register("action-log-cleanup", cfg.Retention.CleanupInterval, func(ctx context.Context) error {
		_, err := sweepSvc.CleanupActionLog(ctx)
		return err
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	authHandler := handler.NewAuthHandler(authSvc)
	checkHandler := handler.NewCheckHandler(verificationSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	queueHandler := handler.NewQueueHandler(queueSvc, sweepSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/token", authHandler.Token)

	protected := api.Group("", middleware.JWT(authSvc))
	protected.POST("/check", checkHandler.CheckNow)
	protected.POST("/events/submissions",
		middleware.RequireRoles(models.RoleService, models.RoleAdmin), eventHandler.Submit)

	admin := protected.Group("", middleware.RequireRoles(models.RoleService, models.RoleAdmin))
	admin.GET("/queue/modules/:cmid", queueHandler.ListModule)
	admin.GET("/queue/modules/:cmid/log", queueHandler.ModuleActionLog)
	admin.GET("/queue/documents/:id", queueHandler.GetDocument)
	admin.POST("/queue/sweeps/upload", queueHandler.RunUploadSweep)
	admin.POST("/queue/sweeps/status", queueHandler.RunStatusSweep)
	admin.GET("/metrics/snapshot", metricsHandler.Snapshot)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		admin.POST("/exports", exportHandler.Schedule)
		admin.GET("/exports/:id", exportHandler.Status)
		api.GET("/exports/download/:token", exportHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
