package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telegram-forwarder/internal/command"
	"telegram-forwarder/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	processor *command.Processor
	scheduler *scheduler.Scheduler
	gatherer  prometheus.Gatherer
}

// NewHandlers creates new HTTP handlers
func NewHandlers(processor *command.Processor, scheduler *scheduler.Scheduler, gatherer prometheus.Gatherer) *Handlers {
	return &Handlers{
		processor: processor,
		scheduler: scheduler,
		gatherer:  gatherer,
	}
}

// SetupRoutes sets up all HTTP routes. auth guards everything under /api/v1.
func (h *Handlers) SetupRoutes(router *gin.Engine, auth ...gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1", auth...)
	{
		api.GET("/rules", h.GetRules)
		api.POST("/rules", h.CreateRule)
		api.POST("/rules/:name/sources", h.AddSources)
		api.DELETE("/rules/:name", h.DeleteRule)

		api.GET("/status", h.GetStatus)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}
