package routes

import (
	"net/http"
	"time"

	_ "task-notify/docs"
	"task-notify/internal/api/handlers"
	"task-notify/internal/api/middleware"
	"task-notify/internal/auth"
	"task-notify/internal/services"
	"task-notify/internal/websocket"
	"task-notify/pkg/logger"
	"task-notify/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Dependencies struct {
	UserService    *services.UserService
	TaskService    *services.TaskService
	Authenticator  auth.Authenticator
	RateLimiter    *services.RateLimiter // nil disables rate limiting
	Metrics        *metrics.Metrics      // nil disables /metrics
	HealthChecks   map[string]handlers.Pinger
	AllowedOrigins []string
	Logger         *logger.Logger
}

type Router struct {
	engine        *gin.Engine
	deps          Dependencies
	authHandler   *handlers.AuthHandler
	taskHandler   *handlers.TaskHandler
	healthHandler *handlers.HealthHandler
	authMW        *middleware.AuthMiddleware
	rateLimitMW   *middleware.RateLimitMiddleware
}

func NewRouter(deps Dependencies) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.RequestLogger(deps.Logger.Named("http")))
	if deps.Metrics != nil {
		engine.Use(deps.Metrics.Middleware())
	}

	r := &Router{
		engine:        engine,
		deps:          deps,
		authHandler:   handlers.NewAuthHandler(deps.UserService, deps.Logger),
		taskHandler:   handlers.NewTaskHandler(deps.TaskService, deps.Logger),
		healthHandler: handlers.NewHealthHandler(deps.HealthChecks),
		authMW:        middleware.NewAuthMiddleware(deps.Authenticator),
	}
	if deps.RateLimiter != nil {
		r.rateLimitMW = middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.Logger)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", r.healthHandler.Health)
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if r.deps.Metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.deps.Metrics.Handler()))
	}

	api := r.engine.Group("/api")

	// Public routes
	public := api.Group("/")
	if r.rateLimitMW != nil {
		public.Use(r.rateLimitMW.RateLimitIP(50, time.Minute))
	}
	{
		public.POST("/register", r.authHandler.Register)
		public.POST("/login", r.authHandler.Login)
	}

	// Authenticated routes
	tasks := api.Group("/tasks")
	tasks.Use(r.authMW.RequireAuth())
	if r.rateLimitMW != nil {
		tasks.Use(r.rateLimitMW.RateLimit(200, time.Minute))
	}
	{
		tasks.GET("", r.taskHandler.ListTasks)
		tasks.POST("", r.taskHandler.CreateTask)
		tasks.PUT("/:id", r.taskHandler.UpdateTask)
		tasks.DELETE("/:id", r.taskHandler.DeleteTask)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// NewWSEngine serves the realtime listener. Clients may connect on "/" or "/ws".
func NewWSEngine(hub *websocket.Hub, m *metrics.Metrics) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	ws := handlers.NewWSHandler(hub)
	engine.GET("/", ws.HandleWebSocket)
	engine.GET("/ws", ws.HandleWebSocket)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"connections":   hub.Registry().Count(),
			"subscriptions": hub.Subscriptions().Count(),
		})
	})
	if m != nil {
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	return engine
}
