package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonnyWalker81/healthlytics/internal/middleware"
	"github.com/JonnyWalker81/healthlytics/internal/service"
)

// RouterConfig wires the trigger service routes.
type RouterConfig struct {
	Env        string
	TriggerKey string
	Pipeline   service.PipelineService
	Gatherer   prometheus.Gatherer
}

// NewRouter builds the gin engine for the trigger service.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.SecurityHeaders(cfg.Env))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"env":    cfg.Env,
		})
	})

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	trigger := NewTriggerHandler(cfg.Pipeline)
	router.POST("/run", middleware.TriggerAuth(cfg.TriggerKey), trigger.Run)

	return router
}
