package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/student-registry-api/api/swagger"
	"github.com/noah-isme/student-registry-api/internal/handler"
	internalmiddleware "github.com/noah-isme/student-registry-api/internal/middleware"
	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/repository"
	"github.com/noah-isme/student-registry-api/internal/service"
	"github.com/noah-isme/student-registry-api/migrations"
	"github.com/noah-isme/student-registry-api/pkg/cache"
	"github.com/noah-isme/student-registry-api/pkg/config"
	"github.com/noah-isme/student-registry-api/pkg/database"
	"github.com/noah-isme/student-registry-api/pkg/jobs"
	"github.com/noah-isme/student-registry-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-registry-api/pkg/middleware/requestid"
	"github.com/noah-isme/student-registry-api/pkg/storage"
)

// @title Student Registry API
// @version 1.0.0
// @description Student roster with spreadsheet bulk import and export
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := migrateUp(cfg.Database, logr); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// the roster stays usable without stats caching
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "students", logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, redisClient != nil)

	studentRepo := repository.NewStudentRepository(db)
	studentSvc := service.NewStudentService(studentRepo, cacheSvc, nil, logr, service.StudentServiceConfig{
		RegistrationPrefix: cfg.Registration.Prefix,
		StatsTTL:           cfg.Stats.CacheTTL,
	})
	importSvc := service.NewImportService(studentRepo, studentSvc, metrics, logr, service.ImportServiceConfig{
		MaxFileSize:        cfg.Import.MaxFileSizeBytes,
		Timeout:            cfg.Import.Timeout,
		AllowedMIMEs:       cfg.Import.AllowedMIMEs,
		RegistrationPrefix: cfg.Registration.Prefix,
	})

	exportCfg := service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}
	exportSvc := service.NewExportService(studentRepo, nil, nil, metrics, exportCfg, logr)
	exportHandler := handler.NewExportHandler(exportSvc, nil)

	var queue *jobs.Queue
	if cfg.Exports.Enabled {
		fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			return err
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(studentRepo, fileStore, signer, metrics, exportCfg, logr)

		jobRepo := repository.NewExportJobRepository(db)
		worker := service.NewExportWorker(jobRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
		queue = jobs.NewQueue("roster-exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			RetryDelay: 5 * time.Second,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		jobSvc := service.NewExportJobService(jobRepo, queue, exportSvc, logr, service.ExportJobServiceConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		})
		jobSvc.RecoverPendingJobs(ctx)
		jobSvc.StartCleanup(ctx)
		exportHandler = handler.NewExportHandler(exportSvc, jobSvc)
	}

	checks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if queue != nil {
		checks["export_queue"] = func(context.Context) error {
			if queue.Pending() >= cfg.Exports.WorkerConcurrency*4 {
				return errors.New("queue saturated")
			}
			return nil
		}
	}

	r := newRouter(cfg, logr, metrics, routeHandlers{
		students: handler.NewStudentHandler(studentSvc),
		imports:  handler.NewImportHandler(importSvc, cfg.Import.MaxFileSizeBytes),
		exports:  exportHandler,
		metrics:  handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeHandlers struct {
	students *handler.StudentHandler
	imports  *handler.ImportHandler
	exports  *handler.ExportHandler
	metrics  *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.WithResponseMeta())
	api.GET("/exports/:token", h.exports.Download)

	// reads are open; writes need staff credentials when auth is on
	write := []gin.HandlerFunc{}
	if cfg.JWT.Enabled {
		tokens := service.NewTokenService(cfg.JWT.Secret)
		api.Use(internalmiddleware.OptionalJWT(tokens))
		write = append(write,
			internalmiddleware.JWT(tokens),
			internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleStaff),
		)
	}

	students := api.Group("/students")
	students.GET("", h.students.List)
	students.GET("/stats", h.students.Stats)
	students.GET("/template", h.exports.Template)
	students.GET("/export", h.exports.Export)
	students.GET("/registration/:code", h.students.GetByRegistrationCode)
	students.GET("/export/jobs/:id", h.exports.JobStatus)
	students.GET("/:id", h.students.Get)

	mutating := students.Group("", write...)
	mutating.POST("", h.students.Create)
	mutating.PUT("/:id", h.students.Update)
	mutating.DELETE("/:id", h.students.Delete)
	mutating.POST("/import", h.imports.Import)
	mutating.POST("/export/jobs", h.exports.CreateJob)

	return r
}

func migrateUp(cfg config.DatabaseConfig, logr *zap.Logger) error {
	m, err := database.NewMigrator(cfg, migrations.FS)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck
	if err := m.Up(); err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	logr.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
