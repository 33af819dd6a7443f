// internal/services/policy_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

type PolicyService struct {
	clock
	db            *gorm.DB
	premiums      *PremiumService
	notifications *NotificationService
	currency      string
}

type RegisterPolicyholderRequest struct {
	Email           string  `json:"email" validate:"required,email"`
	DisplayName     string  `json:"display_name" validate:"max=100"`
	Currency        string  `json:"currency,omitempty" validate:"omitempty,currency"`
	MonthlyEarnings float64 `json:"monthly_earnings" validate:"gte=0"`
}

type PlatformInput struct {
	Name            string                    `json:"name" validate:"required,platform_name"`
	Handle          string                    `json:"handle" validate:"max=100"`
	AudienceSize    int64                     `json:"audience_size" validate:"gte=0"`
	ContentCategory string                    `json:"content_category" validate:"max=50"`
	RiskHistory     []models.InfractionRecord `json:"risk_history"`
}

type ApplyRequest struct {
	Platforms         []PlatformInput     `json:"platforms" validate:"required,min=1,dive"`
	EstimatedEarnings float64             `json:"estimated_earnings" validate:"gte=0"`
	BillingCycle      models.BillingCycle `json:"billing_cycle,omitempty" validate:"omitempty,oneof=monthly quarterly annually"`
}

type DecisionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func NewPolicyService(db *gorm.DB, premiums *PremiumService, notifications *NotificationService, defaultCurrency string) *PolicyService {
	return &PolicyService{
		db:            db,
		premiums:      premiums,
		notifications: notifications,
		currency:      defaultCurrency,
	}
}

// Register creates the policyholder record for the calling creator. The
// record shares the creator's identity.
func (s *PolicyService) Register(ctx context.Context, actor models.Actor, req *RegisterPolicyholderRequest) (*models.Policyholder, error) {
	if err := creatorGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Policyholder{}).
		Where("id = ? OR email = ?", actor.ID, strings.ToLower(req.Email)).
		Count(&count).Error; err != nil {
		return nil, apperr.Persistence("failed to check existing policyholder", err)
	}
	if count > 0 {
		return nil, apperr.Conflict("policyholder already registered")
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	holder := &models.Policyholder{
		BaseModel:       models.BaseModel{ID: actor.ID},
		Email:           strings.ToLower(req.Email),
		DisplayName:     strings.TrimSpace(req.DisplayName),
		Currency:        currency,
		MonthlyEarnings: req.MonthlyEarnings,
		InsuranceStatus: models.InsuranceStatus{Status: models.InsuranceStatusNotApplied},
		Version:         1,
	}
	if err := db.Create(holder).Error; err != nil {
		return nil, apperr.Persistence("failed to create policyholder", err)
	}
	return holder, nil
}

func (s *PolicyService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Policyholder, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, id); err != nil {
		return nil, err
	}
	return loadPolicyholder(s.db.WithContext(ctx), id)
}

// Apply submits (or resubmits) an application and quotes the premium.
func (s *PolicyService) Apply(ctx context.Context, actor models.Actor, id uuid.UUID, req *ApplyRequest) (*models.Policyholder, *models.Premium, error) {
	if err := ownerGuard.CheckRole(actor); err != nil {
		return nil, nil, err
	}

	db := s.db.WithContext(ctx)
	holder, err := loadPolicyholder(db, id)
	if err != nil {
		return nil, nil, err
	}
	if err := ownerGuard.CheckOwner(actor, holder.ID); err != nil {
		return nil, nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, nil, validationError(err)
	}
	if !PolicyLifecycle.CanTransition(holder.Status(), models.InsuranceStatusPending) {
		return nil, nil, apperr.Conflict(fmt.Sprintf("cannot apply while insurance status is %s", holder.Status()))
	}

	existing, err := findPremiumForHolder(db, holder.ID)
	if err != nil {
		return nil, nil, err
	}

	now := s.Now()
	holder.MonthlyEarnings = req.EstimatedEarnings
	holder.Platforms = buildPlatforms(holder.ID, req.Platforms)
	holder.InsuranceStatus = models.InsuranceStatus{
		Status:    models.InsuranceStatusPending,
		AppliedAt: &now,
	}

	var discount float64
	if existing != nil {
		discount = existing.DiscountAmount()
	}
	// The oracle is consulted before the transaction opens.
	quote := s.premiums.Calculate(ctx, holder, discount)

	var premium *models.Premium
	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := database.SaveVersioned(tx, holder); err != nil {
			return err
		}
		if err := replacePlatforms(tx, holder); err != nil {
			return err
		}
		premium, err = s.premiums.commitQuote(tx, holder, existing, quote, models.CalculationTriggerAI, actor,
			scheduleChange{cycle: req.BillingCycle, reset: true, reapply: true}, now)
		return err
	})
	if err != nil {
		return nil, nil, commitError("failed to submit application", err)
	}

	s.notifications.ApplicationReceived(holder, premium)
	return holder, premium, nil
}

func buildPlatforms(holderID uuid.UUID, inputs []PlatformInput) []models.PlatformProfile {
	platforms := make([]models.PlatformProfile, 0, len(inputs))
	for i, in := range inputs {
		platforms = append(platforms, newPlatform(holderID, i, in))
	}
	return platforms
}

func newPlatform(holderID uuid.UUID, position int, in PlatformInput) models.PlatformProfile {
	return models.PlatformProfile{
		PolicyholderID:  holderID,
		Position:        position,
		Name:            strings.ToLower(in.Name),
		Handle:          in.Handle,
		AudienceSize:    in.AudienceSize,
		ContentCategory: in.ContentCategory,
		RiskHistory:     models.InfractionList(in.RiskHistory),
	}
}

func replacePlatforms(tx *gorm.DB, holder *models.Policyholder) error {
	if err := tx.Unscoped().Where("policyholder_id = ?", holder.ID).Delete(&models.PlatformProfile{}).Error; err != nil {
		return fmt.Errorf("failed to clear platforms: %w", err)
	}
	if len(holder.Platforms) == 0 {
		return nil
	}
	if err := tx.Create(&holder.Platforms).Error; err != nil {
		return fmt.Errorf("failed to save platforms: %w", err)
	}
	return nil
}

// Approve activates a pending application.
func (s *PolicyService) Approve(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Policyholder, error) {
	holder, err := s.decide(ctx, actor, id, models.InsuranceStatusApproved, func(h *models.Policyholder) error {
		now := s.Now()
		h.InsuranceStatus.ApprovedAt = &now
		h.InsuranceStatus.PolicyStartDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.PolicyApproved(holder)
	return holder, nil
}

// Reject declines a pending application. A reason is mandatory.
func (s *PolicyService) Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Policyholder, error) {
	holder, err := s.decide(ctx, actor, id, models.InsuranceStatusRejected, func(h *models.Policyholder) error {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return apperr.Validation("rejection reason is required")
		}
		now := s.Now()
		h.InsuranceStatus.RejectedAt = &now
		h.InsuranceStatus.RejectionReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifications.PolicyRejected(holder)
	return holder, nil
}

func (s *PolicyService) decide(ctx context.Context, actor models.Actor, id uuid.UUID, to models.InsuranceStatusType, apply func(*models.Policyholder) error) (*models.Policyholder, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	holder, err := loadPolicyholder(db, id)
	if err != nil {
		return nil, err
	}
	if !PolicyLifecycle.CanTransition(holder.Status(), to) {
		return nil, apperr.InvalidState(fmt.Sprintf("cannot move insurance status from %s to %s", holder.Status(), to))
	}
	if err := apply(holder); err != nil {
		return nil, err
	}
	holder.InsuranceStatus.Status = to

	if err := database.SaveVersioned(db, holder); err != nil {
		return nil, commitError("failed to update insurance status", err)
	}
	return holder, nil
}

// AddPlatform appends a platform and recalculates the premium atomically.
func (s *PolicyService) AddPlatform(ctx context.Context, actor models.Actor, id uuid.UUID, in *PlatformInput) (*models.Policyholder, *models.Premium, error) {
	if err := ownerGuard.CheckRole(actor); err != nil {
		return nil, nil, err
	}

	db := s.db.WithContext(ctx)
	holder, err := loadPolicyholder(db, id)
	if err != nil {
		return nil, nil, err
	}
	if err := ownerGuard.CheckOwner(actor, holder.ID); err != nil {
		return nil, nil, err
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, nil, validationError(err)
	}
	status := holder.Status()
	if status != models.InsuranceStatusPending && status != models.InsuranceStatusApproved {
		return nil, nil, apperr.NotEligible(fmt.Sprintf("platforms can only be added to a pending or approved policy, status is %s", status))
	}

	existing, err := findPremiumForHolder(db, holder.ID)
	if err != nil {
		return nil, nil, err
	}

	now := s.Now()
	platform := newPlatform(holder.ID, nextPosition(holder.Platforms), *in)
	holder.Platforms = append(holder.Platforms, platform)

	var discount float64
	if existing != nil {
		discount = existing.DiscountAmount()
	}
	quote := s.premiums.Calculate(ctx, holder, discount)

	var premium *models.Premium
	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		// Version bump serializes concurrent platform edits.
		if err := database.SaveVersioned(tx, holder); err != nil {
			return err
		}
		added := &holder.Platforms[len(holder.Platforms)-1]
		if err := tx.Create(added).Error; err != nil {
			return fmt.Errorf("failed to save platform: %w", err)
		}
		premium, err = s.premiums.commitQuote(tx, holder, existing, quote, models.CalculationTriggerAI, actor, scheduleChange{}, now)
		return err
	})
	if err != nil {
		return nil, nil, commitError("failed to add platform", err)
	}
	return holder, premium, nil
}

func nextPosition(platforms []models.PlatformProfile) int {
	next := 0
	for _, p := range platforms {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	return next
}

// Surrender ends an active policy and removes its premium.
func (s *PolicyService) Surrender(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Policyholder, error) {
	if err := ownerGuard.CheckRole(actor); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	holder, err := loadPolicyholder(db, id)
	if err != nil {
		return nil, err
	}
	if err := ownerGuard.CheckOwner(actor, holder.ID); err != nil {
		return nil, err
	}
	if holder.Status() != models.InsuranceStatusApproved {
		return nil, apperr.NoActivePolicy("no active policy to surrender")
	}

	now := s.Now()
	holder.InsuranceStatus.Status = models.InsuranceStatusSurrendered
	holder.InsuranceStatus.SurrenderedAt = &now
	holder.InsuranceStatus.PolicyEndDate = &now
	holder.InsuranceStatus.SurrenderReason = strings.TrimSpace(reason)

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := database.SaveVersioned(tx, holder); err != nil {
			return err
		}
		result := tx.Where("policyholder_id = ?", holder.ID).Delete(&models.Premium{})
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to delete premium: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return nil, commitError("failed to surrender policy", err)
	}

	s.notifications.PolicySurrendered(holder)
	return holder, nil
}
