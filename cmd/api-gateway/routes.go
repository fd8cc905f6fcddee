package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

type dependencies struct {
	cfg          *config.Config
	logger       *zap.Logger
	db           *sqlx.DB
	grid         *service.TimeGrid
	metrics      *service.MetricsService
	verifier     *service.TokenVerifier
	audit        *repository.AuditRepository
	availability *service.AvailabilityService
	assignments  *service.AssignmentService
	publications *service.PublicationService
}

func newRouter(d dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	metricsHandler := handler.NewMetricsHandler(d.metrics, d.db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource string) gin.HandlerFunc {
		if d.audit == nil {
			return middleware.Audit(nil, d.logger, action, resource)
		}
		return middleware.Audit(d.audit, d.logger, action, resource)
	}
	managers := middleware.RequireRoles(middleware.TimetableManagers...)

	gridHandler := handler.NewGridHandler(d.grid)
	availabilityHandler := handler.NewAvailabilityHandler(d.availability)
	assignmentHandler := handler.NewAssignmentHandler(d.assignments)
	publicationHandler := handler.NewPublicationHandler(d.publications)

	api := r.Group(d.cfg.APIPrefix)
	timetable := api.Group("/timetable", middleware.JWT(d.verifier))

	timetable.GET("/grid", gridHandler.Grid)

	teachers := timetable.Group("/teachers/:teacher_id")
	teachers.GET("/availability", availabilityHandler.List)
	teachers.PUT("/availability",
		middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleCoordinator), middleware.RoleSelf),
		audit(models.AuditActionAvailabilitySet, "teacher_availability"),
		availabilityHandler.Set)
	teachers.GET("/assignments", assignmentHandler.ForTeacher)

	timetable.GET("/groups/:group_id/assignments", assignmentHandler.ForGroup)
	timetable.GET("/entities/:kind/:id/usage", assignmentHandler.Usage)

	assignments := timetable.Group("/assignments")
	assignments.POST("", managers, audit(models.AuditActionAssignmentCreate, "timetable_assignment"), assignmentHandler.Propose)
	assignments.GET("/:id", assignmentHandler.Get)
	assignments.PATCH("/:id", managers, audit(models.AuditActionAssignmentUpdate, "timetable_assignment"), assignmentHandler.Update)
	assignments.DELETE("/:id", managers, audit(models.AuditActionAssignmentDelete, "timetable_assignment"), assignmentHandler.Remove)

	publications := timetable.Group("/publications")
	publications.POST("", managers, audit(models.AuditActionTimetablePublish, "published_version"), publicationHandler.Publish)
	publications.GET("", publicationHandler.History)
	publications.GET("/active", publicationHandler.Active)
	publications.GET("/:id", publicationHandler.Version)
	publications.GET("/:id/export", publicationHandler.Export)

	return r
}
