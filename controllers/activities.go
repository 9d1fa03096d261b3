package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wp-fleet-manager/utils"
)

func (h *Handler) GetActivities(c *gin.Context) {
	activities, err := h.Store.ListActivities(c.Request.Context(), currentUser(c), 100)
	if err != nil {
		respondStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, activities)
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context(), 2*time.Second); err != nil {
		utils.LogWarn("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
