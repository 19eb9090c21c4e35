package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/shs-registrar-api/api/swagger"
	"github.com/noah-isme/shs-registrar-api/internal/handler"
	"github.com/noah-isme/shs-registrar-api/internal/middleware"
	"github.com/noah-isme/shs-registrar-api/internal/models"
	"github.com/noah-isme/shs-registrar-api/internal/repository"
	"github.com/noah-isme/shs-registrar-api/internal/service"
	"github.com/noah-isme/shs-registrar-api/pkg/cache"
	"github.com/noah-isme/shs-registrar-api/pkg/config"
	"github.com/noah-isme/shs-registrar-api/pkg/database"
	"github.com/noah-isme/shs-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/shs-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/shs-registrar-api/pkg/middleware/requestid"
)

// @title SHS Registrar API
// @version 1.0.0
// @description Senior high school enrollment and registration workflow service
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.NewMigrator(db).Migrate(context.Background()); err != nil {
		logr.Sugar().Fatalw("failed to apply migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, school year cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	schoolYearRepo := repository.NewSchoolYearRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	classEnrollmentRepo := repository.NewClassEnrollmentRepository(db)
	rosterRepo := repository.NewSectionRosterRepository(db)
	creditRepo := repository.NewTransfereeCreditRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	schoolYearSvc := service.NewSchoolYearService(schoolYearRepo, cacheRepo, auditRepo, metricsSvc, validate, logr,
		service.SchoolYearServiceConfig{CacheTTL: cfg.SchoolYear.CacheTTL})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, schoolYearSvc, auditRepo, validate, logr)
	registrationSvc := service.NewRegistrationService(
		registrationRepo, classEnrollmentRepo, rosterRepo, creditRepo, enrollmentRepo,
		schoolYearSvc, auditRepo, db, metricsSvc, logr,
		service.RegistrationConfig{NumberMaxRetries: cfg.Registration.NumberMaxRetries})
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	schoolYearHandler := handler.NewSchoolYearHandler(schoolYearSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	schoolYears := api.Group("/school-years")
	{
		schoolYears.GET("", schoolYearHandler.List)
		schoolYears.GET("/active", schoolYearHandler.GetActive)
		schoolYears.GET("/:id", schoolYearHandler.Get)
		schoolYears.POST("", middleware.RequireRoles(models.RoleAdmin), schoolYearHandler.Create)
		schoolYears.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), schoolYearHandler.Update)
		schoolYears.POST("/:id/activate", middleware.RequireRoles(models.RoleAdmin), schoolYearHandler.Activate)
		schoolYears.POST("/deactivate-all", middleware.RequireRoles(models.RoleAdmin), schoolYearHandler.DeactivateAll)
	}

	enrollments := api.Group("/enrollments")
	{
		enrollments.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar), enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.GET("/:id/preferences", enrollmentHandler.GetPreferences)
		enrollments.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleStudent), enrollmentHandler.Submit)
		enrollments.POST("/:id/review", middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar), enrollmentHandler.Review)
		enrollments.POST("/:id/resubmit", middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleStudent), enrollmentHandler.Resubmit)
		enrollments.POST("/:id/cor", middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar), registrationHandler.Generate)
		enrollments.GET("/:id/cor", registrationHandler.GetByEnrollment)
	}

	registrations := api.Group("/registrations")
	{
		registrations.GET("/:id", registrationHandler.Get)
		registrations.GET("/:id/subjects", registrationHandler.GetSubjects)
		registrations.POST("/:id/regenerate", middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar), registrationHandler.Regenerate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
