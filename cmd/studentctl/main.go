// Command studentctl runs roster maintenance tasks against the registry database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/student-registry-api/internal/repository"
	"github.com/noah-isme/student-registry-api/internal/service"
	"github.com/noah-isme/student-registry-api/pkg/cache"
	"github.com/noah-isme/student-registry-api/pkg/config"
	"github.com/noah-isme/student-registry-api/pkg/database"
	"github.com/noah-isme/student-registry-api/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studentctl",
		Short:         "Student registry maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newImportCmd(), newExportCmd(), newTemplateCmd())
	return root
}

// env bundles what every database-backed command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	cache  *repository.CacheRepository
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	// imports drop the API's cached stats when Redis is shared
	var client *redis.Client
	if cfg.Redis.Enabled {
		if client, err = cache.NewRedis(ctx, cfg.Redis); err != nil {
			logr.Warn("redis unavailable, cached stats not invalidated", zap.Error(err))
			client = nil
		}
	}
	return &env{cfg: cfg, logger: logr, db: db, cache: repository.NewCacheRepository(client, "students", logr)}, nil
}

func (e *env) Close() {
	_ = e.cache.Close()
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func (e *env) students() (*repository.StudentRepository, *service.StudentService) {
	repo := repository.NewStudentRepository(e.db)
	cacheSvc := service.NewCacheService(e.cache, nil, e.cfg.Stats.CacheTTL, e.logger, e.cfg.Redis.Enabled)
	svc := service.NewStudentService(repo, cacheSvc, nil, e.logger, service.StudentServiceConfig{
		RegistrationPrefix: e.cfg.Registration.Prefix,
	})
	return repo, svc
}
