// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"quickcheck-service/internal/config"
	"quickcheck-service/internal/database"
	"quickcheck-service/internal/handler"
	"quickcheck-service/internal/metrics"
	"quickcheck-service/internal/middleware"
	"quickcheck-service/internal/service"
	"quickcheck-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	db             *database.DB
	registry       *prometheus.Registry
	eventBus       *handler.EventBus
	deviceService  *service.DeviceService
	harvestService *service.HarvestService
	reportService  *service.ReportService
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	registry *prometheus.Registry,
	eventBus *handler.EventBus,
	deviceService *service.DeviceService,
	harvestService *service.HarvestService,
	reportService *service.ReportService,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		db:             db,
		registry:       registry,
		eventBus:       eventBus,
		deviceService:  deviceService,
		harvestService: harvestService,
		reportService:  reportService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.deviceService, r.logger)
	harvestHandler := handler.NewHarvestHandler(r.harvestService, r.logger)
	reportHandler := handler.NewReportHandler(r.reportService, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.deviceService, r.harvestService, r.eventBus, r.logger)

	healthHandler.RegisterRoutes(router.Group(""))

	apiV1 := router.Group("/api/v1")
	deviceHandler.RegisterRoutes(apiV1)
	harvestHandler.RegisterRoutes(apiV1)
	reportHandler.RegisterRoutes(apiV1)

	wsHandler.RegisterRoutes(router.Group("/ws"))

	router.GET("/metrics", gin.WrapH(metrics.Handler(r.registry)))

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
