// internal/handlers/premium.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/services"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

type PremiumHandler struct {
	premiumService *services.PremiumService
}

type BillingCycleRequest struct {
	BillingCycle models.BillingCycle `json:"billing_cycle" binding:"required"`
}

func NewPremiumHandler(premiumService *services.PremiumService) *PremiumHandler {
	return &PremiumHandler{
		premiumService: premiumService,
	}
}

// GET /policyholders/:id/premium
func (h *PremiumHandler) GetForPolicyholder(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	premium, err := h.premiumService.GetForPolicyholder(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premium": premium,
	})
}

// POST /policyholders/:id/premium/recalculate
func (h *PremiumHandler) Recalculate(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	premium, err := h.premiumService.Recalculate(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premium": premium,
	})
}

// GET /premiums/:id/history
func (h *PremiumHandler) History(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	history, err := h.premiumService.History(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"calculation_history": history,
	})
}

// POST /premiums/:id/pay
func (h *PremiumHandler) Pay(c *gin.Context) {
	h.charge(c, false)
}

// POST /premiums/:id/retry
func (h *PremiumHandler) Retry(c *gin.Context) {
	h.charge(c, true)
}

func (h *PremiumHandler) charge(c *gin.Context, retry bool) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	charge := h.premiumService.Pay
	if retry {
		charge = h.premiumService.RetryPayment
	}

	premium, err := charge(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premium": premium,
	})
}

// PUT /premiums/:id/billing-cycle
func (h *PremiumHandler) ChangeBillingCycle(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req BillingCycleRequest
	if !bindJSON(c, &req) {
		return
	}

	premium, err := h.premiumService.ChangeBillingCycle(c.Request.Context(), actor, id, req.BillingCycle)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premium": premium,
	})
}

// PUT /admin/premiums/:id
func (h *PremiumHandler) Adjust(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.AdjustPremiumRequest
	if !bindJSON(c, &req) {
		return
	}

	premium, err := h.premiumService.AdjustPremium(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premium": premium,
	})
}

// POST /admin/premiums/:id/discount
func (h *PremiumHandler) ApplyDiscount(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.DiscountRequest
	if !bindJSON(c, &req) {
		return
	}

	premium, err := h.premiumService.ApplyDiscount(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premium": premium,
	})
}
