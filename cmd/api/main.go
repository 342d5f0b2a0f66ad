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

	_ "github.com/edugestion/asistencia-api/api/swagger"
	"github.com/edugestion/asistencia-api/internal/handler"
	"github.com/edugestion/asistencia-api/internal/middleware"
	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/repository"
	"github.com/edugestion/asistencia-api/internal/service"
	"github.com/edugestion/asistencia-api/pkg/cache"
	"github.com/edugestion/asistencia-api/pkg/config"
	"github.com/edugestion/asistencia-api/pkg/database"
	"github.com/edugestion/asistencia-api/pkg/jobs"
	"github.com/edugestion/asistencia-api/pkg/logger"
	corsmiddleware "github.com/edugestion/asistencia-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edugestion/asistencia-api/pkg/middleware/requestid"
	"github.com/edugestion/asistencia-api/pkg/storage"
)

// @title Asistencia IE API
// @version 1.0.0
// @description API de control de asistencia escolar
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Summaries fall back to the database when the cache is down.
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init report storage", zap.Error(err))
	}
	documentStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Fatal("failed to init document storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	justificationRepo := repository.NewJustificationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, guardianRepo, validate, logr)

	notificationService := service.NewNotificationService(notificationRepo, guardianRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})

	attendanceDefaults := service.AttendanceSettings{
		DefaultToleranceMin: cfg.Attendance.DefaultToleranceMin,
		EntryWindowStart:    cfg.Attendance.EntryWindowStart,
		EntryWindowEnd:      cfg.Attendance.EntryWindowEnd,
		SummaryCacheTTL:     cfg.Attendance.SummaryCacheTTL,
	}
	attendanceService := service.NewAttendanceService(
		attendanceRepo, studentRepo, scheduleRepo, settingsRepo, calendarRepo,
		cacheRepo, notificationService, metricsService, validate, logr, attendanceDefaults)
	sweepService := service.NewSweepService(
		attendanceRepo, justificationRepo, calendarRepo, notificationService, metricsService, logr)
	withdrawalService := service.NewWithdrawalService(
		withdrawalRepo, guardianRepo, attendanceRepo, studentRepo, notificationService, validate, logr)
	justificationService := service.NewJustificationService(
		justificationRepo, attendanceRepo, documentStore, notificationService, validate, logr,
		service.JustificationConfig{
			MaxFileSizeBytes: cfg.Documents.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Documents.AllowedMIMEs,
		})
	toleranceService := service.NewToleranceService(settingsRepo, scheduleRepo, validate, logr, attendanceDefaults)
	scheduleService := service.NewScheduleService(scheduleRepo, calendarRepo, validate, logr)
	reportService := service.NewReportService(attendanceRepo, reportStore, signer, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationService.Start(ctx)
	defer notificationService.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	studentHandler := handler.NewStudentHandler(studentService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	cronHandler := handler.NewCronHandler(sweepService)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalService)
	justificationHandler := handler.NewJustificationHandler(justificationService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	toleranceHandler := handler.NewToleranceHandler(toleranceService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	reportHandler := handler.NewReportHandler(reportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public routes.
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/reportes/descargar", reportHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleAuxiliary)
	staffOrTeacher := middleware.RequireRoles(models.RoleAdmin, models.RoleAuxiliary, models.RoleTeacher)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/usuarios", adminOnly, userHandler.List)
	authed.POST("/usuarios", adminOnly, userHandler.Create)
	authed.GET("/usuarios/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	authed.PUT("/usuarios/:id", adminOnly, userHandler.Update)
	authed.DELETE("/usuarios/:id", adminOnly, userHandler.Deactivate)

	authed.GET("/estudiantes", staffOrTeacher, studentHandler.List)
	authed.POST("/estudiantes", adminOnly, studentHandler.Enroll)
	authed.GET("/estudiantes/:id", studentHandler.Get)
	authed.PUT("/estudiantes/:id/aula", adminOnly, studentHandler.Transfer)
	authed.POST("/estudiantes/:id/qr", staff, studentHandler.RegenerateQR)
	authed.GET("/estudiantes/:id/apoderados", staffOrTeacher, studentHandler.Guardians)
	authed.POST("/estudiantes/:id/apoderados", staff, studentHandler.LinkGuardian)
	authed.DELETE("/estudiantes/:id/apoderados/:guardianId", staff, studentHandler.UnlinkGuardian)
	authed.GET("/aulas", studentHandler.Classrooms)
	authed.GET("/apoderados/estudiantes", middleware.RequireRoles(models.RoleGuardian), studentHandler.MyStudents)

	authed.POST("/asistencias/entrada", staffOrTeacher, attendanceHandler.RegisterEntry)
	authed.POST("/asistencias/salida", staffOrTeacher, attendanceHandler.RegisterExit)
	authed.GET("/asistencias", staffOrTeacher, attendanceHandler.List)
	authed.GET("/asistencias/resumen/:id", attendanceHandler.Summary)

	authed.POST("/cron/marcar-faltas", adminOnly, cronHandler.MarkAbsentees)
	authed.POST("/cron/marcar-faltas/todas", adminOnly, cronHandler.MarkAbsenteesAll)
	authed.GET("/cron/marcar-faltas/estadisticas", staff, cronHandler.Stats)

	withdrawalDeciders := middleware.RequireRoles(models.RoleAdmin, models.RoleAuxiliary, models.RoleGuardian)
	authed.POST("/retiros", withdrawalDeciders, withdrawalHandler.Create)
	authed.GET("/retiros", withdrawalDeciders, withdrawalHandler.List)
	authed.GET("/retiros/:id", withdrawalHandler.Get)
	authed.PUT("/retiros/:id/revisar", staff, withdrawalHandler.Review)
	authed.PUT("/retiros/:id/aprobar", withdrawalDeciders, withdrawalHandler.Approve)
	authed.PUT("/retiros/:id/rechazar", withdrawalDeciders, withdrawalHandler.Reject)
	authed.PUT("/retiros/:id/iniciar", staff, withdrawalHandler.Start)
	authed.PUT("/retiros/:id/completar", staff, withdrawalHandler.Complete)
	authed.PUT("/retiros/:id/cancelar", withdrawalDeciders, withdrawalHandler.Cancel)

	submitters := middleware.RequireRoles(models.RoleAdmin, models.RoleAuxiliary, models.RoleGuardian)
	authed.POST("/justificaciones", submitters, justificationHandler.Create)
	authed.GET("/justificaciones", justificationHandler.List)
	authed.GET("/justificaciones/tipos", justificationHandler.Types)
	authed.GET("/justificaciones/:id", justificationHandler.Get)
	authed.DELETE("/justificaciones/:id", submitters, justificationHandler.Delete)
	authed.POST("/justificaciones/:id/documentos", submitters, justificationHandler.UploadDocument)
	authed.GET("/justificaciones/:id/documentos/:documentId", justificationHandler.DownloadDocument)
	authed.PUT("/justificaciones/:id/revisar", staff, justificationHandler.StartReview)
	authed.PUT("/justificaciones/:id/aprobar", staff, justificationHandler.Approve)
	authed.PUT("/justificaciones/:id/rechazar", staff, justificationHandler.Reject)
	authed.PUT("/justificaciones/:id/solicitar-documentacion", staff, justificationHandler.RequestDocumentation)
	authed.POST("/justificaciones/:id/reenviar", submitters, justificationHandler.Resubmit)

	authed.GET("/notificaciones", notificationHandler.List)
	authed.GET("/notificaciones/contar", notificationHandler.CountUnread)
	authed.POST("/notificaciones/:id/leer", notificationHandler.MarkRead)
	authed.POST("/notificaciones/leer-todas", notificationHandler.MarkAllRead)
	authed.DELETE("/notificaciones/:id", notificationHandler.Delete)

	authed.GET("/tolerancia", staffOrTeacher, toleranceHandler.Get)
	authed.PUT("/tolerancia/global", adminOnly, toleranceHandler.SetGlobal)
	authed.PUT("/tolerancia/individual/:id", adminOnly, toleranceHandler.SetForBlock)
	authed.PUT("/tolerancia/seleccionadas", adminOnly, toleranceHandler.SetForSelected)

	authed.GET("/horarios", scheduleHandler.List)
	authed.POST("/horarios", adminOnly, scheduleHandler.Create)
	authed.PUT("/horarios/:id", adminOnly, scheduleHandler.Update)
	authed.DELETE("/horarios/:id", adminOnly, scheduleHandler.Delete)
	authed.GET("/calendario", scheduleHandler.Calendar)
	authed.POST("/calendario", adminOnly, scheduleHandler.AddCalendarEntry)
	authed.DELETE("/calendario/:id", adminOnly, scheduleHandler.RemoveCalendarEntry)

	authed.POST("/reportes", staffOrTeacher, reportHandler.Generate)
	authed.GET("/metricas", adminOnly, metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
