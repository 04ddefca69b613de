package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/report-revision-api/api/swagger"
	"github.com/noah-isme/report-revision-api/internal/handler"
	"github.com/noah-isme/report-revision-api/internal/middleware"
	"github.com/noah-isme/report-revision-api/internal/repository"
	"github.com/noah-isme/report-revision-api/internal/service"
	"github.com/noah-isme/report-revision-api/pkg/cache"
	"github.com/noah-isme/report-revision-api/pkg/config"
	"github.com/noah-isme/report-revision-api/pkg/database"
	"github.com/noah-isme/report-revision-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/report-revision-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/report-revision-api/pkg/middleware/requestid"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := service.NewMetricsService()
		checks := make(map[string]handler.ReadinessCheck)

		stores, db, err := openStores(ctx)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			checks["postgres"] = db.PingContext
		}

		var sectionCache *service.CacheService
		if cfg.Cache.Enabled {
			client, err := cache.NewRedis(ctx, cfg.Redis)
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			defer client.Close()
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			sectionCache = newSectionCache(client, metrics)
		}

		svcs := service.NewServices(stores, cfg, sectionCache, metrics, logr)
		router := newRouter(svcs, metrics, checks)

		port := servePort
		if port == 0 {
			port = cfg.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			logr.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logr.Info("server starting",
			zap.Int("port", port),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.Storage.Driver),
			zap.Bool("section_cache", sectionCache.Enabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving (postgres only)")
	rootCmd.AddCommand(serveCmd)
}

func openStores(ctx context.Context) (service.Stores, *sqlx.DB, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logr.Warn("using in-memory storage; data is lost on restart")
		store := repository.NewMemoryStore()
		return service.Stores{
			Instances:   store.Instances(),
			Sections:    store.Sections(),
			Suggestions: store.Suggestions(),
			Threads:     store.Threads(),
		}, nil, nil
	case config.StorageDriverPostgres, "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return service.Stores{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if serveMigrate {
			if _, err := repository.ApplyMigrations(ctx, db, cfg.Migrations.Dir, logr.Named("migrate")); err != nil {
				_ = db.Close()
				return service.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		return service.Stores{
			Instances:   repository.NewInstanceRepository(db),
			Sections:    repository.NewSectionRepository(db),
			Suggestions: repository.NewSuggestionRepository(db),
			Threads:     repository.NewThreadRepository(db),
		}, db, nil
	default:
		return service.Stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newSectionCache(client *redis.Client, metrics *service.MetricsService) *service.CacheService {
	repo := repository.NewCacheRepository(client, logr.Named("cache"))
	return service.NewCacheService(repo, metrics, cfg.Cache.TTL, logr.Named("cache"), true)
}

func newRouter(svcs *service.Services, metrics *service.MetricsService, checks map[string]handler.ReadinessCheck) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterSystemRoutes(r, handler.NewMetricsHandler(metrics, checks), cfg.Metrics.Enabled)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	identity := service.NewIdentityService(cfg.Auth.JWTSecret)
	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta(), middleware.Actor(identity, cfg.Auth.TrustActorHeader))
	handler.RegisterRoutes(api, handler.Handlers{
		Instances:   handler.NewInstanceHandler(svcs.Instances),
		Sections:    handler.NewSectionHandler(svcs.Sections, svcs.Versions, svcs.Exports),
		Suggestions: handler.NewSuggestionHandler(svcs.Suggestions),
		Threads:     handler.NewThreadHandler(svcs.Threads),
		Workflow:    handler.NewWorkflowHandler(svcs.Workflow, svcs.Exports),
	})
	return r
}
