package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vaultrouter/internal/registry"
)

type HealthHandler struct {
	Registry *registry.Registry
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.Registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "registry_missing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ready",
		"active_vaults": h.Registry.ActiveCount(),
	})
}
