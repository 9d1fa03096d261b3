package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wp-fleet-manager/models"
	"wp-fleet-manager/remote"
	"wp-fleet-manager/services"
	"wp-fleet-manager/store"
	"wp-fleet-manager/utils"
)

const userIDKey = "userID"

// Handler carries the dependencies shared by every route.
type Handler struct {
	Store        *store.Store
	Clients      services.ClientFactory
	Sync         *services.SyncService
	Orchestrator *services.UpdateOrchestrator
	Locks        *services.SiteLocks
	Provisioner  *services.Provisioner
	JWTSecret    []byte
	TokenTTL     time.Duration
	// RunTimeout bounds remote work started by a request. Zero means 30m.
	RunTimeout time.Duration
}

// detached returns a context for remote work and the writes that record
// it. It outlives the dashboard request: once started, a call runs to
// completion and its outcome is persisted even if the client goes away.
func (h *Handler) detached(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := h.RunTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + "."})
		return 0, false
	}
	return id, true
}

// loadWebsite resolves :id to a website the caller owns, responding 404
// otherwise.
func (h *Handler) loadWebsite(c *gin.Context) (*models.Website, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}
	w, err := h.Store.GetWebsite(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondStoreError(c, err, "Website not found.")
		return nil, false
	}
	return w, true
}

// remoteClient builds the client for a website. A malformed stored
// credential is recorded and reported before any network I/O.
func (h *Handler) remoteClient(c *gin.Context, w *models.Website) (*remote.Client, bool) {
	rc, err := h.Clients(w)
	if err != nil {
		h.Sync.Record(context.WithoutCancel(c.Request.Context()), w, err)
		respondRemoteError(c, err)
		return nil, false
	}
	return rc, true
}

func respondStoreError(c *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return
	}
	utils.LogError("Store error on %s: %v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
}

// respondRemoteError maps a classified remote failure onto an HTTP answer
// carrying the kind and its remediation.
func respondRemoteError(c *gin.Context, err error) {
	kind := remote.KindOf(err)
	if kind == "" {
		utils.LogError("Unclassified error on %s: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
		return
	}
	c.JSON(kind.HTTPStatus(), gin.H{
		"error":       err.Error(),
		"kind":        kind,
		"remediation": kind.Remediation(),
	})
}

func (h *Handler) logActivity(c *gin.Context, websiteID *int64, level, message string) {
	h.Store.LogActivity(context.WithoutCancel(c.Request.Context()), currentUser(c), websiteID, level, message)
}
