package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"wp-fleet-manager/models"
	"wp-fleet-manager/remote"
)

// RunUpdates applies the requested core, plugin, and theme updates inside
// a maintenance window. Only one run per website may be in flight, and a
// started run is not cancelled by the client disconnecting.
func (h *Handler) RunUpdates(c *gin.Context) {
	var req models.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	rc, ok := h.remoteClient(c, w)
	if !ok {
		return
	}

	release, ok := h.Locks.TryLock(w.ID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "An update is already running for this website."})
		return
	}
	defer release()

	ctx, cancel := h.detached(c)
	defer cancel()
	result := h.Orchestrator.Run(ctx, rc, req)
	h.Sync.Record(ctx, w, runError(result))

	if _, err := h.Store.InsertUpdateLog(ctx, w.ID, currentUser(c), result); err != nil {
		result.Warn("The update log could not be saved.")
		h.logActivity(c, &w.ID, "error", fmt.Sprintf("Failed to save update log for '%s': %v", w.Name, err))
	}

	level, msg := "info", fmt.Sprintf("Updated %d item(s) on '%s'.", len(result.Items()), w.Name)
	if !result.Success {
		level = "error"
		msg = fmt.Sprintf("Update on '%s' finished with %s.", w.Name, result.ErrorKind)
	}
	h.logActivity(c, &w.ID, level, msg)
	c.JSON(http.StatusOK, result)
}

// runError reduces a run to the error that best describes the site's
// reachability: nil if any item went through.
func runError(result *models.UpdateResult) error {
	if result.Success || result.ErrorKind == "" {
		return nil
	}
	for _, item := range result.Items() {
		if item.Outcome != models.OutcomeFailed {
			return nil
		}
	}
	return remote.NewError(remote.Kind(result.ErrorKind), "update", "", nil)
}

func (h *Handler) ListUpdateLogs(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	logs, err := h.Store.ListUpdateLogs(c.Request.Context(), w.ID, limitParam(c, 50))
	if err != nil {
		respondStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, logs)
}
