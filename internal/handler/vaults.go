package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vaultrouter/internal/models"
	"vaultrouter/internal/registry"
	"vaultrouter/internal/routing"
)

// VaultHandler is the administrative and observability surface over the vault
// registry. Caller authentication is enforced upstream by the platform
// gateway.
type VaultHandler struct {
	Registry *registry.Registry
	Engine   *routing.Engine
	Logger   *zap.Logger
}

func (h *VaultHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/vaults")
	group.POST("", h.registerVault)
	group.GET("", h.listVaults)
	group.GET("/:id", h.getVault)
	group.DELETE("/:id", h.deregisterVault)
	group.PUT("/:id/priority", h.updatePriority)
	group.PUT("/:id/risk", h.updateRiskScore)
}

type registerVaultRequest struct {
	ID        string `json:"id" binding:"required"`
	Priority  uint64 `json:"priority"`
	RiskScore int    `json:"risk_score" binding:"required"`
}

func (h *VaultHandler) registerVault(c *gin.Context) {
	var req registerVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Engine.RegisterVault(c.Request.Context(), strings.TrimSpace(req.ID), req.Priority, req.RiskScore); err != nil {
		Fail(c, err)
		return
	}
	snap, _ := h.snapshot(req.ID)
	Ok(c, snap)
}

func (h *VaultHandler) deregisterVault(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "id required")
		return
	}
	if err := h.Registry.Deregister(id); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil)
}

type priorityRequest struct {
	Priority uint64 `json:"priority"`
}

func (h *VaultHandler) updatePriority(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Registry.SetPriority(id, req.Priority); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil)
}

type riskScoreRequest struct {
	RiskScore int `json:"risk_score" binding:"required"`
}

func (h *VaultHandler) updateRiskScore(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req riskScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Registry.SetRiskScore(id, req.RiskScore); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil)
}

// listVaults enumerates active vaults, optionally narrowed to one resource
// type with ?resource_type=.
func (h *VaultHandler) listVaults(c *gin.Context) {
	resourceType := strings.TrimSpace(c.Query("resource_type"))
	var ids []string
	if resourceType != "" {
		ids = h.Registry.ListByResource(resourceType)
	} else {
		ids = h.Registry.ListActive()
	}
	out := make([]models.VaultSnapshot, 0, len(ids))
	for _, id := range ids {
		if rec, ok := h.Registry.Get(id); ok {
			out = append(out, rec.Snapshot())
		}
	}
	Ok(c, out)
}

func (h *VaultHandler) getVault(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	snap, ok := h.snapshot(id)
	if !ok {
		Error(c, http.StatusNotFound, "vault not found")
		return
	}
	Ok(c, snap)
}

func (h *VaultHandler) snapshot(id string) (models.VaultSnapshot, bool) {
	rec, ok := h.Registry.Get(id)
	if !ok {
		return models.VaultSnapshot{}, false
	}
	return rec.Snapshot(), true
}
