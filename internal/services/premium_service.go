// internal/services/premium_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/audit"
	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/oracle"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

type PremiumService struct {
	clock
	db            *gorm.DB
	config        *config.Config
	oracle        oracle.RiskOracle
	payments      PaymentGateway
	notifications *NotificationService
}

// PremiumQuote is a computed but not yet persisted premium.
type PremiumQuote struct {
	Factors        models.AdjustmentFactors `json:"adjustment_factors"`
	PlatformCount  int                      `json:"platform_count"`
	BaseAmount     float64                  `json:"base_amount"`
	DiscountAmount float64                  `json:"discount_amount"`
	FinalAmount    float64                  `json:"final_amount"`
	Currency       string                   `json:"currency"`
	OracleFallback bool                     `json:"oracle_fallback"`
}

type AdjustPremiumRequest struct {
	BaseAmount      *float64                  `json:"base_amount,omitempty" validate:"omitempty,gte=0"`
	Factors         *models.AdjustmentFactors `json:"adjustment_factors,omitempty"`
	DiscountAmount  *float64                  `json:"discount_amount,omitempty" validate:"omitempty,gte=0"`
	DiscountReason  string                    `json:"discount_reason,omitempty" validate:"max=500"`
	FinalAmount     *float64                  `json:"final_amount,omitempty" validate:"omitempty,gte=0"`
	AdjustmentNotes string                    `json:"notes,omitempty" validate:"max=1000"`
}

type DiscountRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

type PaymentRequest struct {
	Method string `json:"payment_method" validate:"required,max=255"`
}

func NewPremiumService(db *gorm.DB, cfg *config.Config, riskOracle oracle.RiskOracle, payments PaymentGateway, notifications *NotificationService) *PremiumService {
	return &PremiumService{
		db:            db,
		config:        cfg,
		oracle:        riskOracle,
		payments:      payments,
		notifications: notifications,
	}
}

// Calculate runs the oracle and premium arithmetic for holder without
// touching the store. It never fails.
func (s *PremiumService) Calculate(ctx context.Context, holder *models.Policyholder, discount float64) PremiumQuote {
	assessment := s.oracle.AssessPremium(ctx, oracle.SummarizeHolder(holder))
	if assessment.Fallback {
		logrus.WithField("policyholder_id", holder.ID).Warn("Premium computed with oracle fallback values")
	}

	totalInfractions := holder.TotalInfractions()
	platformsWithInfractions := 0
	for _, p := range holder.Platforms {
		if len(p.RiskHistory) > 0 {
			platformsWithInfractions++
		}
	}

	base := models.RoundMoney(math.Max(0, assessment.SuggestedAmount))
	currency := holder.Currency
	if currency == "" {
		currency = s.config.Billing.DefaultCurrency
	}

	return PremiumQuote{
		Factors: models.AdjustmentFactors{
			Earnings:        holder.MonthlyEarnings,
			AudienceSize:    holder.TotalAudience(),
			ContentRiskTier: assessment.Tier,
			VolatilityScore: math.Min(10, float64(2*totalInfractions+platformsWithInfractions)),
			InfractionCount: totalInfractions,
			RiskExplanation: assessment.Explanation,
		},
		PlatformCount:  len(holder.Platforms),
		BaseAmount:     base,
		DiscountAmount: discount,
		FinalAmount:    finalAmount(base, discount),
		Currency:       currency,
		OracleFallback: assessment.Fallback,
	}
}

func finalAmount(base, discount float64) float64 {
	return models.RoundMoney(math.Max(0, base-discount))
}

// scheduleChange restarts billing. reset moves the due date; reapply also
// reopens payment for a fresh application.
type scheduleChange struct {
	cycle   models.BillingCycle
	reset   bool
	reapply bool
}

// commitQuote creates or updates the holder's premium from quote and appends
// one calculation entry. now is the instant the operation started, so every
// date derived here lines up with the caller's own timestamps. It must run
// inside the caller's transaction.
func (s *PremiumService) commitQuote(tx *gorm.DB, holder *models.Policyholder, existing *models.Premium, quote PremiumQuote, trigger models.CalculationTrigger, actor models.Actor, schedule scheduleChange, now time.Time) (*models.Premium, error) {
	premium := existing

	if premium == nil {
		cycle := schedule.cycle
		if !cycle.Valid() {
			cycle = models.BillingCycleMonthly
		}
		due := now.Add(cycle.Period())
		premium = &models.Premium{
			PolicyholderID:      holder.ID,
			BillingCycle:        cycle,
			NextCalculationDate: due,
			PaymentStatus: models.PaymentStatus{
				Status:  models.PaymentStatusPending,
				DueDate: due,
			},
			Version: 1,
		}
	} else {
		if schedule.cycle.Valid() {
			premium.BillingCycle = schedule.cycle
		}
		next := now.Add(premium.BillingCycle.Period())
		premium.NextCalculationDate = next
		if schedule.reset {
			premium.PaymentStatus.DueDate = next
		}
		if schedule.reapply {
			premium.PaymentStatus.Status = models.PaymentStatusPending
		}
	}

	premium.BaseAmount = quote.BaseAmount
	premium.AdjustmentFactors = quote.Factors
	premium.FinalAmount = quote.FinalAmount
	premium.Currency = quote.Currency

	if existing == nil {
		if err := tx.Omit(clause.Associations).Create(premium).Error; err != nil {
			return nil, commitError("failed to create premium", err)
		}
	} else if err := database.SaveVersioned(tx, premium); err != nil {
		return nil, commitError("failed to update premium", err)
	}

	entry := calculationEntry(premium, quote.PlatformCount, trigger, actor, quote.OracleFallback, now)
	if err := audit.Append(tx, entry); err != nil {
		return nil, commitError("failed to record premium calculation", err)
	}
	premium.Calculations = append(premium.Calculations, *entry)

	return premium, nil
}

func calculationEntry(p *models.Premium, platformCount int, trigger models.CalculationTrigger, actor models.Actor, fallback bool, now time.Time) *models.PremiumCalculation {
	return &models.PremiumCalculation{
		PremiumID:       p.ID,
		Earnings:        p.AdjustmentFactors.Earnings,
		AudienceSize:    p.AdjustmentFactors.AudienceSize,
		PlatformCount:   platformCount,
		InfractionCount: p.AdjustmentFactors.InfractionCount,
		ContentRiskTier: p.AdjustmentFactors.ContentRiskTier,
		VolatilityScore: p.AdjustmentFactors.VolatilityScore,
		RiskExplanation: p.AdjustmentFactors.RiskExplanation,
		BaseAmount:      p.BaseAmount,
		DiscountAmount:  p.DiscountAmount(),
		FinalAmount:     p.FinalAmount,
		Currency:        p.Currency,
		BillingCycle:    p.BillingCycle,
		Trigger:         trigger,
		TriggeredBy:     actor.String(),
		OracleFallback:  fallback,
		CalculatedAt:    now,
	}
}

// Recalculate recomputes the holder's premium, creating it on first request.
func (s *PremiumService) Recalculate(ctx context.Context, actor models.Actor, policyholderID uuid.UUID) (*models.Premium, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	holder, err := loadPolicyholder(db, policyholderID)
	if err != nil {
		return nil, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, holder.ID); err != nil {
		return nil, err
	}

	existing, err := findPremiumForHolder(db, holder.ID)
	if err != nil {
		return nil, err
	}

	return s.recalculate(ctx, actor, holder, existing, scheduleChange{})
}

func (s *PremiumService) recalculate(ctx context.Context, actor models.Actor, holder *models.Policyholder, existing *models.Premium, schedule scheduleChange) (*models.Premium, error) {
	var discount float64
	if existing != nil {
		discount = existing.DiscountAmount()
	}
	now := s.Now()
	quote := s.Calculate(ctx, holder, discount)

	var premium *models.Premium
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		premium, err = s.commitQuote(tx, holder, existing, quote, models.CalculationTriggerAI, actor, schedule, now)
		return err
	})
	if err != nil {
		return nil, commitError("failed to save premium", err)
	}
	return premium, nil
}

// ChangeBillingCycle switches the cycle and restarts the billing schedule.
func (s *PremiumService) ChangeBillingCycle(ctx context.Context, actor models.Actor, premiumID uuid.UUID, cycle models.BillingCycle) (*models.Premium, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if !cycle.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown billing cycle %q", cycle))
	}

	db := s.db.WithContext(ctx)
	premium, err := loadPremium(db, premiumID)
	if err != nil {
		return nil, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, premium.PolicyholderID); err != nil {
		return nil, err
	}
	holder, err := loadPolicyholder(db, premium.PolicyholderID)
	if err != nil {
		return nil, err
	}

	return s.recalculate(ctx, actor, holder, premium, scheduleChange{cycle: cycle, reset: true})
}

// AdjustPremium applies an admin override without consulting the oracle.
func (s *PremiumService) AdjustPremium(ctx context.Context, actor models.Actor, premiumID uuid.UUID, req *AdjustPremiumRequest) (*models.Premium, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}
	if req.Factors != nil && (req.Factors.Earnings < 0 || req.Factors.AudienceSize < 0 || req.Factors.VolatilityScore < 0 || req.Factors.InfractionCount < 0) {
		return nil, apperr.Validation("adjustment factors must not be negative")
	}

	db := s.db.WithContext(ctx)
	premium, err := loadPremium(db, premiumID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if req.BaseAmount != nil {
		premium.BaseAmount = models.RoundMoney(*req.BaseAmount)
	}
	if req.Factors != nil {
		premium.AdjustmentFactors = *req.Factors
	}
	if req.DiscountAmount != nil {
		premium.Discount = models.Discount{
			Amount:    models.RoundMoney(*req.DiscountAmount),
			Reason:    strings.TrimSpace(req.DiscountReason),
			AppliedBy: &actor.ID,
			AppliedAt: &now,
		}
	}
	if req.FinalAmount != nil {
		premium.FinalAmount = models.RoundMoney(*req.FinalAmount)
	} else {
		premium.FinalAmount = finalAmount(premium.BaseAmount, premium.DiscountAmount())
	}

	platformCount := 0
	if n := len(premium.Calculations); n > 0 {
		platformCount = premium.Calculations[n-1].PlatformCount
	}

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := database.SaveVersioned(tx, premium); err != nil {
			return err
		}
		entry := calculationEntry(premium, platformCount, models.CalculationTriggerManual, actor, false, now)
		if req.AdjustmentNotes != "" {
			entry.RiskExplanation = premium.AdjustmentFactors.RiskExplanation + " | manual: " + req.AdjustmentNotes
		}
		if err := audit.Append(tx, entry); err != nil {
			return err
		}
		premium.Calculations = append(premium.Calculations, *entry)
		return nil
	})
	if err != nil {
		return nil, commitError("failed to adjust premium", err)
	}
	return premium, nil
}

// ApplyDiscount records a discount and recalculates the premium.
func (s *PremiumService) ApplyDiscount(ctx context.Context, actor models.Actor, premiumID uuid.UUID, req *DiscountRequest) (*models.Premium, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	db := s.db.WithContext(ctx)
	premium, err := loadPremium(db, premiumID)
	if err != nil {
		return nil, err
	}
	holder, err := loadPolicyholder(db, premium.PolicyholderID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	premium.Discount = models.Discount{
		Amount:    models.RoundMoney(req.Amount),
		Reason:    strings.TrimSpace(req.Reason),
		AppliedBy: &actor.ID,
		AppliedAt: &now,
	}

	return s.recalculate(ctx, actor, holder, premium, scheduleChange{})
}

// Pay charges the current final amount.
func (s *PremiumService) Pay(ctx context.Context, actor models.Actor, premiumID uuid.UUID, req *PaymentRequest) (*models.Premium, error) {
	return s.charge(ctx, actor, premiumID, req, false)
}

// RetryPayment charges again after a failed or overdue payment.
func (s *PremiumService) RetryPayment(ctx context.Context, actor models.Actor, premiumID uuid.UUID, req *PaymentRequest) (*models.Premium, error) {
	return s.charge(ctx, actor, premiumID, req, true)
}

func (s *PremiumService) charge(ctx context.Context, actor models.Actor, premiumID uuid.UUID, req *PaymentRequest, retry bool) (*models.Premium, error) {
	if err := ownerGuard.CheckRole(actor); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	premium, err := loadPremium(db, premiumID)
	if err != nil {
		return nil, err
	}
	if err := ownerGuard.CheckOwner(actor, premium.PolicyholderID); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	status := premium.PaymentStatus.Status
	if retry {
		if status != models.PaymentStatusFailed && status != models.PaymentStatusOverdue {
			return nil, apperr.InvalidState(fmt.Sprintf("cannot retry payment in status %s", status))
		}
		if len(premium.Attempts) == 0 {
			return nil, apperr.InvalidState("no previous payment attempt to retry")
		}
	} else if !premium.Payable() {
		return nil, apperr.InvalidState(fmt.Sprintf("premium is not payable in status %s", status))
	}

	attemptNo := len(premium.Attempts) + 1
	chargeReq := ChargeRequest{
		Amount:         premium.FinalAmount,
		Currency:       premium.Currency,
		Method:         req.Method,
		IdempotencyKey: fmt.Sprintf("premium:%s:attempt:%d", premium.ID, attemptNo),
		Description:    fmt.Sprintf("CreatorShield %s premium", premium.BillingCycle),
		Metadata: map[string]string{
			"premium_id":      premium.ID.String(),
			"policyholder_id": premium.PolicyholderID.String(),
		},
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout())
	var result ChargeResult
	var chargeErr error
	if pending := premium.PendingAttempt(); pending != nil {
		// An unsettled charge is looked up, never repeated.
		chargeReq.IdempotencyKey = pending.IdempotencyKey
		chargeReq.Method = pending.Method
		result, chargeErr = s.payments.Lookup(chargeCtx, pending.TransactionID)
		if chargeErr != nil && !errors.Is(chargeErr, ErrChargeDeclined) {
			cancel()
			return premium, apperr.Payment("payment is still processing", chargeErr)
		}
	} else {
		result, chargeErr = s.payments.Charge(chargeCtx, chargeReq)
	}
	cancel()

	now := s.Now()
	attempt := &models.PaymentAttempt{
		PremiumID:      premium.ID,
		Amount:         premium.FinalAmount,
		Currency:       premium.Currency,
		Method:         chargeReq.Method,
		Success:        chargeErr == nil && !result.Pending,
		Pending:        chargeErr == nil && result.Pending,
		TransactionID:  result.TransactionID,
		IdempotencyKey: chargeReq.IdempotencyKey,
		AttemptedAt:    now,
	}
	switch {
	case chargeErr != nil:
		attempt.FailureReason = chargeErr.Error()
		premium.PaymentStatus.Status = models.PaymentStatusFailed
	case attempt.Pending:
		premium.PaymentStatus.Status = models.PaymentStatusPending
	default:
		premium.PaymentStatus.Status = models.PaymentStatusPaid
		premium.PaymentStatus.LastPaidAt = &now
	}

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := database.SaveVersioned(tx, premium); err != nil {
			return err
		}
		if err := audit.Append(tx, attempt); err != nil {
			return err
		}
		premium.Attempts = append(premium.Attempts, *attempt)
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"premium_id":      premium.ID,
			"idempotency_key": chargeReq.IdempotencyKey,
			"charge_success":  chargeErr == nil,
		}).Error("Payment attempt not recorded")
		return nil, commitError("failed to record payment attempt", err)
	}

	if chargeErr != nil {
		if holder, err := loadPolicyholder(db, premium.PolicyholderID); err == nil {
			s.notifications.PaymentFailed(holder, premium, chargeErr.Error())
		}
		return premium, apperr.Payment("payment was not completed", chargeErr)
	}
	return premium, nil
}

func (s *PremiumService) paymentTimeout() time.Duration {
	if s.config.Payment.Timeout > 0 {
		return s.config.Payment.Timeout
	}
	return 20 * time.Second
}

func (s *PremiumService) Get(ctx context.Context, actor models.Actor, premiumID uuid.UUID) (*models.Premium, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	premium, err := loadPremium(s.db.WithContext(ctx), premiumID)
	if err != nil {
		return nil, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, premium.PolicyholderID); err != nil {
		return nil, err
	}
	return premium, nil
}

func (s *PremiumService) GetForPolicyholder(ctx context.Context, actor models.Actor, policyholderID uuid.UUID) (*models.Premium, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, policyholderID); err != nil {
		return nil, err
	}
	premium, err := findPremiumForHolder(s.db.WithContext(ctx), policyholderID)
	if err != nil {
		return nil, err
	}
	if premium == nil {
		return nil, apperr.NotFound("premium")
	}
	return premium, nil
}

// History returns the calculation history, oldest first.
func (s *PremiumService) History(ctx context.Context, actor models.Actor, premiumID uuid.UUID) ([]models.PremiumCalculation, error) {
	premium, err := s.Get(ctx, actor, premiumID)
	if err != nil {
		return nil, err
	}
	return premium.Calculations, nil
}
