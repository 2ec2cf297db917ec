package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/taskpulse/internal/http/handler"
	"github.com/stellarlinkco/taskpulse/internal/http/middleware"
)

// Services are the collaborators behind the REST surface.
type Services struct {
	Users     handler.UserService
	Tasks     handler.TaskService
	Nudger    handler.Nudger
	Responder handler.Responder
	// Health reports store reachability for /health. Optional.
	Health func(ctx context.Context) error
}

type RouterConfig struct {
	APIKey      string
	CORSOrigins []string
}

// New builds the engine: recovery, request logging, optional CORS, routes.
func New(services Services, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.APIKeyHeader},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	SetupRoutes(r, services, cfg)
	return r
}

func SetupRoutes(r *gin.Engine, services Services, cfg RouterConfig) {
	r.GET("/health", func(c *gin.Context) {
		if services.Health != nil {
			if err := services.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middleware.RequireAPIKey(cfg.APIKey))
	{
		UserRouter(api.Group("/users"), handler.NewUserHandler(services.Users))
		TaskRouter(api.Group("/tasks"),
			handler.NewTaskHandler(services.Tasks),
			handler.NewPollHandler(services.Nudger, services.Responder),
		)
	}
}

func UserRouter(rg *gin.RouterGroup, h *handler.UserHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
}

func TaskRouter(rg *gin.RouterGroup, h *handler.TaskHandler, ph *handler.PollHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)

	rg.POST("/:id/nudge", ph.Nudge)
	rg.POST("/:id/poll-response", ph.SubmitResponse)
}
