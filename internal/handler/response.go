package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vaultrouter/internal/registry"
	"vaultrouter/internal/routing"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func Ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
	})
}

// Fail maps the engine's error taxonomy onto HTTP statuses so API callers can
// tell validation problems, missing records, and execution failures apart.
func Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidVault),
		errors.Is(err, registry.ErrInvalidRiskScore),
		errors.Is(err, routing.ErrResourceMismatch):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotActive):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrAlreadyActive):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, routing.ErrNoVaultsAvailable),
		errors.Is(err, routing.ErrNothingToDeposit),
		errors.Is(err, routing.ErrSlippageExceeded):
		Error(c, http.StatusUnprocessableEntity, err.Error())
	default:
		Error(c, http.StatusBadGateway, err.Error())
	}
}
