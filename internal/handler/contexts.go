package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultrouter/internal/models"
	"vaultrouter/internal/routing"
)

// ContextHandler configures routing contexts and triggers event-independent
// deposits.
type ContextHandler struct {
	Engine *routing.Engine
	Logger *zap.Logger
}

func (h *ContextHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/contexts")
	group.GET("", h.listContexts)
	group.GET("/:name", h.getContext)
	group.GET("/:name/preview", h.previewVault)
	group.PUT("/:name/strategy", h.setStrategy)
	group.POST("/:name/members", h.addMembers)
	group.POST("/:name/deposits", h.depositHeld)
}

func (h *ContextHandler) listContexts(c *gin.Context) {
	Ok(c, h.Engine.ListContexts())
}

func (h *ContextHandler) getContext(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	stats, ok := h.Engine.ContextStats(name)
	if !ok {
		Error(c, http.StatusNotFound, "context not found")
		return
	}
	Ok(c, stats)
}

// previewVault answers "where would the next execution route" without
// advancing any state.
func (h *ContextHandler) previewVault(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	resourceType := strings.TrimSpace(c.Query("resource_type"))
	if resourceType == "" {
		Error(c, http.StatusBadRequest, "resource_type required")
		return
	}
	id, err := h.Engine.PreviewVault(c.Request.Context(), name, resourceType)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"vault": id})
}

type strategyRequest struct {
	Strategy string `json:"strategy" binding:"required"`
}

func (h *ContextHandler) setStrategy(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := models.ParseRoutingStrategy(req.Strategy)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	h.Engine.SetStrategy(name, strategy)
	Ok(c, nil)
}

type addMembersRequest struct {
	Vaults []string `json:"vaults" binding:"required"`
}

func (h *ContextHandler) addMembers(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Engine.AddMembers(name, req.Vaults); err != nil {
		Fail(c, err)
		return
	}
	stats, _ := h.Engine.ContextStats(name)
	Ok(c, stats)
}

type depositHeldRequest struct {
	ResourceType string          `json:"resource_type" binding:"required"`
	Receiver     string          `json:"receiver"`
	MinShares    decimal.Decimal `json:"min_shares"`
	Vault        string          `json:"vault"` // forced destination, optional
}

func (h *ContextHandler) depositHeld(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	var req depositHeldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.Engine.DepositHeld(
		c.Request.Context(),
		name,
		strings.TrimSpace(req.ResourceType),
		strings.TrimSpace(req.Receiver),
		req.MinShares,
		strings.TrimSpace(req.Vault),
	)
	if err != nil {
		Fail(c, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("held balance deposited via api",
			zap.String("context", name),
			zap.String("vault", res.Vault),
			zap.String("deposited", res.Deposited.String()),
		)
	}
	Ok(c, res)
}
