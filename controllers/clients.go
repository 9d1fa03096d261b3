package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"wp-fleet-manager/models"
)

func (h *Handler) ListClients(c *gin.Context) {
	clients, err := h.Store.ListClients(c.Request.Context(), currentUser(c))
	if err != nil {
		respondStoreError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, clients)
}

func (h *Handler) CreateClient(c *gin.Context) {
	var client models.Client
	if err := c.ShouldBindJSON(&client); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	client.UserID = currentUser(c)
	if err := h.Store.CreateClient(c.Request.Context(), &client); err != nil {
		respondStoreError(c, err, "")
		return
	}
	h.logActivity(c, nil, "info", fmt.Sprintf("Client '%s' created.", client.Name))
	c.JSON(http.StatusCreated, client)
}

// DeleteClient removes a client together with its websites.
func (h *Handler) DeleteClient(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Store.DeleteClient(c.Request.Context(), currentUser(c), id); err != nil {
		respondStoreError(c, err, "Client not found.")
		return
	}
	h.logActivity(c, nil, "info", fmt.Sprintf("Client %d deleted with its websites.", id))
	c.JSON(http.StatusOK, gin.H{"message": "Client deleted."})
}
