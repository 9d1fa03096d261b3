package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"wp-fleet-manager/models"
	"wp-fleet-manager/remote"
)

// ListWebsites returns the caller's websites, optionally filtered by
// ?clientId=.
func (h *Handler) ListWebsites(c *gin.Context) {
	var clientID int64
	if raw := c.Query("clientId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid clientId."})
			return
		}
		clientID = id
	}
	websites, err := h.Store.ListWebsites(c.Request.Context(), currentUser(c), clientID)
	if err != nil {
		respondStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, websites)
}

func (h *Handler) CreateWebsite(c *gin.Context) {
	var in models.WebsiteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := remote.ParseSiteURL(in.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w := &models.Website{
		ClientID:    in.ClientID,
		Name:        strings.TrimSpace(in.Name),
		URL:         u.String(),
		APIKey:      strings.TrimSpace(in.APIKey),
		SSHHost:     in.SSHHost,
		SSHUser:     in.SSHUser,
		SSHPassword: in.SSHPassword,
		WPPath:      in.WPPath,
	}
	if w.Name == "" {
		w.Name = u.Host
	}
	if err := h.Store.CreateWebsite(c.Request.Context(), currentUser(c), w); err != nil {
		respondStoreError(c, err, "Client not found.")
		return
	}
	h.logActivity(c, &w.ID, "info", fmt.Sprintf("Website '%s' added.", w.Name))
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWebsite(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWebsite(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteWebsite(c.Request.Context(), currentUser(c), w.ID); err != nil {
		respondStoreError(c, err, "Website not found.")
		return
	}
	h.logActivity(c, nil, "info", fmt.Sprintf("Website '%s' deleted.", w.Name))
	c.JSON(http.StatusOK, gin.H{"message": "Website deleted."})
}

// SyncWebsite refreshes one website's status and pending updates and
// stores a scan.
func (h *Handler) SyncWebsite(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	ctx, cancel := h.detached(c)
	defer cancel()
	scan, err := h.Sync.SyncWebsite(ctx, w)
	if err != nil {
		h.logActivity(c, &w.ID, "error", fmt.Sprintf("Sync of '%s' failed: %v", w.Name, err))
		respondRemoteError(c, err)
		return
	}
	h.logActivity(c, &w.ID, "info", fmt.Sprintf("Website '%s' synced.", w.Name))
	c.JSON(http.StatusOK, gin.H{"connectionStatus": w.ConnectionStatus, "scan": scan})
}

// SyncAll syncs every website the caller owns.
func (h *Handler) SyncAll(c *gin.Context) {
	websites, err := h.Store.ListWebsites(c.Request.Context(), currentUser(c), 0)
	if err != nil {
		respondStoreError(c, err, "")
		return
	}
	ctx, cancel := h.detached(c)
	defer cancel()
	outcomes := h.Sync.SyncAll(ctx, currentUser(c), websites)
	c.JSON(http.StatusOK, gin.H{"results": outcomes})
}

func (h *Handler) ListScans(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	scans, err := h.Store.ListScans(c.Request.Context(), w.ID, limitParam(c, 50))
	if err != nil {
		respondStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, scans)
}

func limitParam(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}
