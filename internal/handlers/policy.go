// internal/handlers/policy.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/services"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

type PolicyHandler struct {
	policyService *services.PolicyService
}

func NewPolicyHandler(policyService *services.PolicyService) *PolicyHandler {
	return &PolicyHandler{
		policyService: policyService,
	}
}

// POST /policyholders
func (h *PolicyHandler) Register(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	var req services.RegisterPolicyholderRequest
	if !bindJSON(c, &req) {
		return
	}

	holder, err := h.policyService.Register(c.Request.Context(), actor, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"policyholder": holder,
	})
}

// GET /policyholders/:id
func (h *PolicyHandler) Get(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	holder, err := h.policyService.Get(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"policyholder": holder,
	})
}

// POST /policyholders/:id/apply
func (h *PolicyHandler) Apply(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.ApplyRequest
	if !bindJSON(c, &req) {
		return
	}

	holder, premium, err := h.policyService.Apply(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"policyholder": holder,
		"premium":      premium,
	})
}

// POST /policyholders/:id/platforms
func (h *PolicyHandler) AddPlatform(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.PlatformInput
	if !bindJSON(c, &req) {
		return
	}

	holder, premium, err := h.policyService.AddPlatform(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"policyholder": holder,
		"premium":      premium,
	})
}

// POST /policyholders/:id/surrender
func (h *PolicyHandler) Surrender(c *gin.Context) {
	h.decide(c, h.policyService.Surrender)
}

// POST /admin/policyholders/:id/approve
func (h *PolicyHandler) Approve(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	holder, err := h.policyService.Approve(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"policyholder": holder,
	})
}

// POST /admin/policyholders/:id/reject
func (h *PolicyHandler) Reject(c *gin.Context) {
	h.decide(c, h.policyService.Reject)
}

// decide handles the endpoints that take an optional reason body.
func (h *PolicyHandler) decide(c *gin.Context, op func(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Policyholder, error)) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.DecisionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequestResponse(c, "Validation failed", utils.GetValidationErrors(err))
		return
	}

	holder, err := op(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"policyholder": holder,
	})
}
