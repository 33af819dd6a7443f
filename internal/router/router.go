// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/handlers"
	"github.com/javajoker/creatorshield-backend/internal/middleware"
	"github.com/javajoker/creatorshield-backend/internal/services"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

// Services holds the engine components the HTTP surface exposes.
type Services struct {
	Policies  *services.PolicyService
	Premiums  *services.PremiumService
	Claims    *services.ClaimService
	Deadlines *services.DeadlineService
	Analytics *services.AnalyticsService
}

func Initialize(cfg *config.Config, svc Services) *gin.Engine {
	// Initialize handlers
	policyHandler := handlers.NewPolicyHandler(svc.Policies)
	premiumHandler := handlers.NewPremiumHandler(svc.Premiums)
	claimHandler := handlers.NewClaimHandler(svc.Claims)
	adminHandler := handlers.NewAdminHandler(svc.Deadlines, svc.Analytics)

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	utils.SetJWTIssuer(cfg.JWT.Issuer)

	r := gin.New()
	r.MaxMultipartMemory = int64(cfg.Claims.MaxFileSizeMB) << 20

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired(), middleware.GeneralRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	{
		policyholders := v1.Group("/policyholders")
		{
			policyholders.POST("", policyHandler.Register)
			policyholders.GET("/:id", policyHandler.Get)
			policyholders.POST("/:id/apply", policyHandler.Apply)
			policyholders.POST("/:id/platforms", policyHandler.AddPlatform)
			policyholders.POST("/:id/surrender", policyHandler.Surrender)
			policyholders.GET("/:id/premium", premiumHandler.GetForPolicyholder)
			policyholders.POST("/:id/premium/recalculate", premiumHandler.Recalculate)
			policyholders.GET("/:id/claims", claimHandler.ListForPolicyholder)
		}

		premiums := v1.Group("/premiums")
		{
			premiums.GET("/:id/history", premiumHandler.History)
			premiums.POST("/:id/pay", premiumHandler.Pay)
			premiums.POST("/:id/retry", premiumHandler.Retry)
			premiums.PUT("/:id/billing-cycle", premiumHandler.ChangeBillingCycle)
		}

		claims := v1.Group("/claims")
		{
			claims.POST("", middleware.UploadRateLimit(), claimHandler.Submit)
			claims.GET("/:id", claimHandler.Get)
			claims.PUT("/:id/evidence", middleware.UploadRateLimit(), claimHandler.UpdateEvidence)
			claims.DELETE("/:id", claimHandler.Delete)
		}

		// Role checks happen in the services so every caller gets the same
		// guard ordering.
		admin := v1.Group("/admin")
		{
			admin.POST("/policyholders/:id/approve", policyHandler.Approve)
			admin.POST("/policyholders/:id/reject", policyHandler.Reject)

			admin.PUT("/premiums/:id", premiumHandler.Adjust)
			admin.POST("/premiums/:id/discount", premiumHandler.ApplyDiscount)
			admin.POST("/premiums/mark-overdue", adminHandler.MarkOverduePremiums)

			adminClaims := admin.Group("/claims")
			{
				adminClaims.GET("", claimHandler.List)
				adminClaims.POST("/:id/start-review", claimHandler.StartReview)
				adminClaims.POST("/:id/ai-review", claimHandler.EvaluateWithOracle)
				adminClaims.POST("/:id/escalate", claimHandler.Escalate)
				adminClaims.POST("/:id/review", claimHandler.Review)
				adminClaims.POST("/:id/paid", claimHandler.MarkPaid)
			}

			deadlines := admin.Group("/deadlines")
			{
				deadlines.GET("/claims", adminHandler.AtRiskClaims)
				deadlines.GET("/claims/overdue", adminHandler.OverdueClaims)
				deadlines.GET("/premiums", adminHandler.UpcomingPremiumDues)
			}

			admin.GET("/analytics/claims", adminHandler.ClaimAnalytics)
		}
	}

	return r
}
