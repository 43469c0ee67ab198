package handlers

import (
	"roomheat/internal/logger"
	"roomheat/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// WebSocket room-state and valve-health stream, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerRoomRoutes(api)
		h.registerTRVRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerRoomRoutes(api *gin.RouterGroup) {
	rooms := api.Group("/rooms")
	{
		rooms.GET("/", h.listRooms)
		rooms.POST("/", h.ingestRooms)
		rooms.GET("/:id", h.getRoom)
		rooms.GET("/:id/bookings", h.getRoomBookings)
		// Body example: {"temperature":21.5}
		rooms.POST("/:id/temperature", h.forceTemperature)
		rooms.POST("/:id/auto-mode", h.setAutoMode)
		rooms.POST("/:id/sync", h.syncValves)
		rooms.POST("/:id/refresh", h.refreshRoom)
	}
	api.POST("/bookings", h.ingestBookings)
}

func (h *Handler) registerTRVRoutes(api *gin.RouterGroup) {
	trvs := api.Group("/trvs")
	{
		trvs.GET("/health", h.trvHealthSummary)
		trvs.GET("/:id", h.trvHealth)
		trvs.POST("/retry", h.retryUnresponsive)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
