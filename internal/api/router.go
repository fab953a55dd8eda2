package api

import (
	"net/http"

	"github.com/celerix-dev/key-switcher/internal/logging"
	"github.com/celerix-dev/key-switcher/internal/metrics"
	"github.com/celerix-dev/key-switcher/internal/ratelimit"
	"github.com/celerix-dev/key-switcher/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterConfig wires the HTTP surface. Limiter and Metrics are optional.
type RouterConfig struct {
	Service *service.Service
	Logger  zerolog.Logger
	Limiter *ratelimit.Store
	Metrics *metrics.Recorder
}

// NewRouter builds the gin engine with logging, recovery, rate limiting and all routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	h := &Handler{Service: cfg.Service}

	r := gin.New()
	r.Use(logging.Middleware(cfg.Logger), gin.Recovery())

	r.POST("/health", h.Health)

	mutating := r.Group("/")
	if cfg.Limiter != nil {
		mutating.Use(ratelimit.Middleware(cfg.Limiter))
	}
	{
		mutating.POST("/add_user", h.AddUser)
		mutating.POST("/temp_key", h.TempKey)
	}

	r.GET("/users/:pid/usage", h.Usage)
	r.GET("/schedule", h.Schedule)

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
	})
	return r
}
