package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetStatus returns rule counts and the forwarder state
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.processor.Status(c.Request.Context())
	if err != nil {
		writeCommandError(c, err, "Failed to read status")
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Rules:     status.Rules,
		Sources:   status.Sources,
		Version:   status.Version,
		LoggedIn:  status.LoggedIn,
		Forwarder: status.Forwarder,
		Timestamp: time.Now(),
	})
}

// HealthCheck reports whether the rule store is readable and what the
// scheduler and forwarder are doing
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Storage:   "ok",
		Details:   make(map[string]string),
	}

	status, err := h.processor.Status(c.Request.Context())
	if err != nil {
		response.Status = "error"
		response.Storage = "error"
		logrus.Errorf("Storage health check failed: %v", err)
	} else {
		response.Details["forwarder"] = status.Forwarder
	}

	if h.scheduler.IsRunning() {
		response.Details["scheduler"] = "running"
		response.Details["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Details["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}
