// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/creatorshield-backend/internal/services"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

const defaultPremiumWindow = 72 * time.Hour

type AdminHandler struct {
	deadlineService  *services.DeadlineService
	analyticsService *services.AnalyticsService
}

func NewAdminHandler(deadlineService *services.DeadlineService, analyticsService *services.AnalyticsService) *AdminHandler {
	return &AdminHandler{
		deadlineService:  deadlineService,
		analyticsService: analyticsService,
	}
}

// GET /admin/deadlines/claims?window=24h
func (h *AdminHandler) AtRiskClaims(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	window, ok := windowParam(c)
	if !ok {
		return
	}

	claims, err := h.deadlineService.AtRiskClaims(c.Request.Context(), actor, window)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claims": claims,
		"count":  len(claims),
	})
}

// GET /admin/deadlines/claims/overdue
func (h *AdminHandler) OverdueClaims(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	claims, err := h.deadlineService.OverdueClaims(c.Request.Context(), actor)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claims": claims,
		"count":  len(claims),
	})
}

// GET /admin/deadlines/premiums?window=72h
func (h *AdminHandler) UpcomingPremiumDues(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	window, ok := windowParam(c)
	if !ok {
		return
	}
	if window == 0 {
		window = defaultPremiumWindow
	}

	dues, err := h.deadlineService.UpcomingPremiumDues(c.Request.Context(), actor, window)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"premiums": dues,
		"count":    len(dues),
	})
}

// POST /admin/premiums/mark-overdue
func (h *AdminHandler) MarkOverduePremiums(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	marked, err := h.deadlineService.MarkOverduePremiums(c.Request.Context(), actor)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"marked": marked,
	})
}

// GET /admin/analytics/claims
func (h *AdminHandler) ClaimAnalytics(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	analytics, err := h.analyticsService.ClaimAnalytics(c.Request.Context(), actor)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"analytics": analytics,
	})
}
