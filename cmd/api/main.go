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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/edupanel/edupanel-api/api/swagger"
	"github.com/edupanel/edupanel-api/internal/handler"
	"github.com/edupanel/edupanel-api/internal/middleware"
	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/repository"
	"github.com/edupanel/edupanel-api/internal/service"
	"github.com/edupanel/edupanel-api/pkg/cache"
	"github.com/edupanel/edupanel-api/pkg/config"
	"github.com/edupanel/edupanel-api/pkg/database"
	"github.com/edupanel/edupanel-api/pkg/logger"
	corsmiddleware "github.com/edupanel/edupanel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupanel/edupanel-api/pkg/middleware/requestid"
)

// @title EduPanel API
// @version 1.0.0
// @description Authentication and user management service for the EduPanel school platform
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// Redis is optional. Without it the denylist degrades gracefully and
	// revocation relies on session deletion alone.
	var denylist *repository.DenylistRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, denylist disabled", zap.Error(err))
		} else {
			defer client.Close()
			denylist = repository.NewDenylistRepository(client, logr)
		}
	}
	if denylist == nil {
		denylist = repository.NewDenylistRepository(nil, logr)
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	tokenSvc := service.NewTokenService(service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        cfg.JWT.Issuer,
	})
	authSvc := service.NewAuthService(userRepo, sessionRepo, denylist, tokenSvc, validate, logr, metricsSvc)
	userSvc := service.NewUserService(userRepo, authSvc, validate, logr)
	auditSvc := service.NewAuditService(userRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh-token", authHandler.Refresh)
		// logout stays outside Auth: revocation must work with an
		// expired access token
		auth.POST("/logout", authHandler.Logout)

		protected := auth.Group("")
		protected.Use(middleware.Auth(authSvc))
		protected.GET("/me", authHandler.Me)
		protected.POST("/change-password", authHandler.ChangePassword)
	}

	users := api.Group("/users")
	users.Use(middleware.Auth(authSvc))
	{
		users.GET("", middleware.RequireRoles(metricsSvc, models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RequireRoles(metricsSvc, models.RoleAdmin), userHandler.Get)
		users.POST("", middleware.RequirePermission(metricsSvc, models.PermCreateUsers), userHandler.Create)
		users.PUT("/:id", middleware.RequirePermission(metricsSvc, models.PermUpdateUsers), userHandler.Update)
		users.DELETE("/:id", middleware.RequirePermission(metricsSvc, models.PermDeleteUsers), userHandler.Delete)
		users.PUT("/:id/permissions", middleware.RequirePermission(metricsSvc, models.PermDelegateAccess), userHandler.UpdatePermissions)
		users.POST("/:id/reset-password", middleware.RequirePermission(metricsSvc, models.PermUpdateUsers), userHandler.ResetPassword)
	}

	if cfg.Audit.Enabled {
		audit := api.Group("/audit-logs")
		audit.Use(middleware.Auth(authSvc))
		audit.Use(middleware.RequirePermission(metricsSvc, models.PermViewAuditLogs))
		audit.GET("", auditHandler.List)
		audit.GET("/export", middleware.Audit(userRepo, models.AuditActionAuditExport, "audit_logs"), auditHandler.Export)
	}

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweepSessions(sweeperCtx, sessionRepo, cfg.Sessions.CleanupInterval, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// sweepSessions periodically deletes expired session rows. Expired sessions
// are already rejected at refresh time, so the sweep is hygiene, not a
// correctness requirement.
func sweepSessions(ctx context.Context, sessions *repository.SessionRepository, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logr.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logr.Info("session sweep", zap.Int64("deleted", deleted))
			}
		}
	}
}
