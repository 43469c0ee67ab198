package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomheat"
)

// @Summary      Valve health summary
// @Description  Per-state counts plus a snapshot of every tracked actuator.
// @Tags         trvs
// @Produce      json
// @Success      200  {object}  roomheat.HealthSummary
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/trvs/health [get]
// @Security     BearerAuth
func (h *Handler) trvHealthSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.HealthSummary())
}

// @Summary      Single valve health
// @Tags         trvs
// @Produce      json
// @Param        id  path  string  true  "Actuator ID"
// @Success      200  {object}  roomheat.HealthSnapshot
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/trvs/{id} [get]
// @Security     BearerAuth
func (h *Handler) trvHealth(c *gin.Context) {
	id := roomheat.ActuatorID(c.Param("id"))
	snap, ok := h.services.Monitoring.ActuatorHealth(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown actuator"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Retry unresponsive valves
// @Description  Re-drives every degraded/poor/unresponsive actuator toward its intended target. Delivery runs in the background.
// @Tags         trvs
// @Produce      json
// @Success      202  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/trvs/retry [post]
// @Security     BearerAuth
func (h *Handler) retryUnresponsive(c *gin.Context) {
	ids := h.services.Heating.RetryUnresponsive(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{
		"status":    statusAccepted,
		"actuators": ids,
	})
}
