package handler

import (
	"context"
	"net/http"

	"arcade-core/internal/adapter/http/dto"
	"arcade-core/internal/core/ports"
	"arcade-core/pkg/apperror"
	"arcade-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// StateController is the slice of the coordinator the admin API drives.
type StateController interface {
	SetMode(ctx context.Context, mode string) error
	AnnounceStep(ctx context.Context, step int, question string, options []string) error
}

// AdminHandler handles the operator-facing endpoints.
type AdminHandler struct {
	controller StateController
	ledger     ports.Ledger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(controller StateController, ledger ports.Ledger) *AdminHandler {
	return &AdminHandler{controller: controller, ledger: ledger}
}

// SetMode handles POST /api/mode.
func (h *AdminHandler) SetMode(c *gin.Context) {
	var req dto.ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.controller.SetMode(c.Request.Context(), req.Mode); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ModeResponse{Mode: req.Mode})
}

// AnnounceStep handles POST /api/night/step.
func (h *AdminHandler) AnnounceStep(c *gin.Context) {
	var req dto.NightStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.controller.AnnounceStep(c.Request.Context(), req.Step, req.Question, req.Options); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"step": req.Step})
}

// ListPayouts handles GET /api/payouts.
func (h *AdminHandler) ListPayouts(c *gin.Context) {
	payouts, err := h.ledger.ListReadyPayouts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PayoutItem, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, dto.PayoutItem{
			PayoutID:    p.ID,
			Source:      p.Source,
			AmountCents: p.AmountCents,
		})
	}
	response.OK(c, dto.PayoutListResponse{Items: items})
}

// HealthCheck verifies connectivity to all registered dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
