package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"wp-fleet-manager/remote"
	"wp-fleet-manager/services"
)

// withRemote loads the website, runs fn against its client, and records
// the connection status implied by fn's error.
func (h *Handler) withRemote(c *gin.Context, fn func(ctx context.Context, rc *remote.Client) (any, error)) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	rc, ok := h.remoteClient(c, w)
	if !ok {
		return
	}
	ctx, cancel := h.detached(c)
	defer cancel()
	body, err := fn(ctx, rc)
	h.Sync.Record(ctx, w, err)
	if err != nil {
		respondRemoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) GetStatus(c *gin.Context) {
	h.withRemote(c, func(ctx context.Context, rc *remote.Client) (any, error) {
		return rc.FetchStatus(ctx)
	})
}

func (h *Handler) GetUpdates(c *gin.Context) {
	h.withRemote(c, func(ctx context.Context, rc *remote.Client) (any, error) {
		u, err := rc.FetchUpdates(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"updates": u, "total": u.Total()}, nil
	})
}

func (h *Handler) GetPlugins(c *gin.Context) {
	h.withRemote(c, func(ctx context.Context, rc *remote.Client) (any, error) {
		return rc.FetchPlugins(ctx)
	})
}

func (h *Handler) GetThemes(c *gin.Context) {
	h.withRemote(c, func(ctx context.Context, rc *remote.Client) (any, error) {
		return rc.FetchThemes(ctx)
	})
}

func (h *Handler) GetUsers(c *gin.Context) {
	h.withRemote(c, func(ctx context.Context, rc *remote.Client) (any, error) {
		return rc.FetchUsers(ctx)
	})
}

// ValidateKey runs the pre-flight key check and returns the tri-state with
// a remediation message.
func (h *Handler) ValidateKey(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	rc, ok := h.remoteClient(c, w)
	if !ok {
		return
	}
	ctx, cancel := h.detached(c)
	defer cancel()
	status, err := rc.ValidateAPIKey(ctx)
	if err != nil {
		h.Sync.Record(ctx, w, err)
		respondRemoteError(c, err)
		return
	}

	var kind remote.Kind
	switch status {
	case remote.KeyInvalid:
		kind = remote.KindInvalidAPIKey
	case remote.KeyPluginMissing:
		kind = remote.KindPluginNotInstalled
	}
	var callErr error
	if kind != "" {
		callErr = remote.NewError(kind, "validate", "", nil)
	}
	h.Sync.Record(ctx, w, callErr)

	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"connectionStatus": w.ConnectionStatus,
		"remediation":      kind.Remediation(),
	})
}

func (h *Handler) GetMaintenance(c *gin.Context) {
	h.withRemote(c, func(ctx context.Context, rc *remote.Client) (any, error) {
		enabled, err := rc.Maintenance(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"enabled": enabled}, nil
	})
}

type maintenanceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetMaintenance(c *gin.Context) {
	var req maintenanceRequest
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
	ctx, cancel := h.detached(c)
	defer cancel()
	err := rc.SetMaintenance(ctx, *req.Enabled)
	h.Sync.Record(ctx, w, err)
	if err != nil {
		respondRemoteError(c, err)
		return
	}
	h.logActivity(c, &w.ID, "info", fmt.Sprintf("Maintenance mode set to %t on '%s'.", *req.Enabled, w.Name))
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

// Provision installs the companion plugin over SSH and re-validates the
// key.
func (h *Handler) Provision(c *gin.Context) {
	w, ok := h.loadWebsite(c)
	if !ok {
		return
	}
	ctx, cancel := h.detached(c)
	defer cancel()
	res, err := h.Provisioner.Provision(ctx, w)
	if err != nil {
		h.logActivity(c, &w.ID, "error", fmt.Sprintf("Provisioning '%s' failed: %v", w.Name, err))
		body := gin.H{"error": err.Error()}
		if res != nil {
			body["steps"] = res.Steps
		}
		status := http.StatusBadGateway
		if errors.Is(err, services.ErrNoSSHDetails) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, body)
		return
	}
	h.logActivity(c, &w.ID, "info", fmt.Sprintf("Companion plugin provisioned on '%s'.", w.Name))

	body := gin.H{"steps": res.Steps}
	if rc, err := h.Clients(w); err == nil {
		status, verr := rc.ValidateAPIKey(ctx)
		if verr != nil {
			h.Sync.Record(ctx, w, verr)
			body["validationError"] = remote.Describe(verr)
		} else {
			body["status"] = status
			if status == remote.KeyValid {
				h.Sync.Record(ctx, w, nil)
			}
		}
	}
	body["connectionStatus"] = w.ConnectionStatus
	c.JSON(http.StatusOK, body)
}
