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

	_ "github.com/campusbooks/registrar-api/api/swagger"
	"github.com/campusbooks/registrar-api/internal/handler"
	"github.com/campusbooks/registrar-api/internal/middleware"
	"github.com/campusbooks/registrar-api/internal/models"
	"github.com/campusbooks/registrar-api/internal/repository"
	"github.com/campusbooks/registrar-api/internal/service"
	"github.com/campusbooks/registrar-api/pkg/cache"
	"github.com/campusbooks/registrar-api/pkg/config"
	"github.com/campusbooks/registrar-api/pkg/database"
	"github.com/campusbooks/registrar-api/pkg/jobs"
	"github.com/campusbooks/registrar-api/pkg/logger"
	corsmiddleware "github.com/campusbooks/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusbooks/registrar-api/pkg/middleware/requestid"
)

// @title Registrar API
// @version 0.1.0
// @description Course registration and tuition settlement service
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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The service degrades without Redis: lookups go to the database and
		// deposit replays fall back to the unique constraint.
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	termRepo := repository.NewTermRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	tuitionRepo := repository.NewTuitionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	settlementStore := repository.NewSettlementStore(db, cfg.Billing.TxMaxRetries, cfg.Billing.TxRetryBackoff, logr)
	settlementStore.OnRetry(metrics.ObserveSettlementRetry)

	termReader := service.NewCachedTermReader(termRepo, cacheRepo, cfg.Billing.LookupCacheTTL, logr)
	courseReader := service.NewCachedCourseReader(courseRepo, cacheRepo, cfg.Billing.LookupCacheTTL, logr)

	notifications := service.NewNotificationService(
		service.LogSender{Logger: logr},
		jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: cfg.Notifications.BufferSize,
			MaxRetries: cfg.Notifications.MaxRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr,
		},
		logr,
	)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	registrationService := service.NewRegistrationService(
		settlementStore,
		userRepo,
		studentRepo,
		termReader,
		courseReader,
		sectionRepo,
		enrollmentRepo,
		notifications,
		metrics,
		service.RegistrationConfig{DefaultAmountPerCredit: cfg.Billing.DefaultAmountPerCredit},
		logr,
	)
	walletService := service.NewWalletService(settlementStore, walletRepo, studentRepo, cacheRepo, 24*time.Hour, logr)
	tuitionService := service.NewTuitionService(tuitionRepo, enrollmentRepo, studentRepo, logr)

	authHandler := handler.NewAuthHandler(authService)
	registrationHandler := handler.NewRegistrationHandler(registrationService)
	walletHandler := handler.NewWalletHandler(walletService)
	tuitionHandler := handler.NewTuitionHandler(tuitionService)
	paymentHandler := handler.NewPaymentHandler(walletService, cfg.Payments.WebhookSecret)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/payments/callback", paymentHandler.Callback)

		authed := api.Group("")
		authed.Use(middleware.JWT(authService))
		{
			authed.GET("/auth/me", authHandler.Me)

			students := authed.Group("")
			students.Use(middleware.RequireRoles(models.RoleStudent))
			{
				students.POST("/registrations", registrationHandler.Register)
				students.GET("/wallet", walletHandler.Get)
				students.GET("/wallet/transactions", walletHandler.Transactions)
				students.GET("/wallet/statement", walletHandler.Statement)
				students.GET("/tuition/:termId", tuitionHandler.GetForTerm)
			}

			authed.GET("/registrations", registrationHandler.List)

			admins := authed.Group("")
			admins.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admins.POST("/registrations/:id/approve", registrationHandler.Approve)
				admins.POST("/registrations/:id/reject", registrationHandler.Reject)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifications.Start(ctx)
	defer notifications.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
