// internal/models/premium.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/audit"
)

type Premium struct {
	BaseModel
	PolicyholderID      uuid.UUID            `json:"policyholder_id" gorm:"type:uuid;not null;index"`
	BaseAmount          float64              `json:"base_amount" gorm:"type:decimal(12,2);not null"`
	AdjustmentFactors   AdjustmentFactors    `json:"adjustment_factors" gorm:"embedded;embeddedPrefix:factor_"`
	Discount            Discount             `json:"discount" gorm:"embedded;embeddedPrefix:discount_"`
	FinalAmount         float64              `json:"final_amount" gorm:"type:decimal(12,2);not null"`
	Currency            string               `json:"currency" gorm:"size:3;not null"`
	BillingCycle        BillingCycle         `json:"billing_cycle" gorm:"type:varchar(20);not null;default:'monthly'"`
	NextCalculationDate time.Time            `json:"next_calculation_date"`
	PaymentStatus       PaymentStatus        `json:"payment_status" gorm:"embedded;embeddedPrefix:payment_"`
	Version             int                  `json:"version" gorm:"not null;default:1"`
	Calculations        []PremiumCalculation `json:"calculation_history,omitempty" gorm:"foreignKey:PremiumID"`
	Attempts            []PaymentAttempt     `json:"payment_attempts,omitempty" gorm:"foreignKey:PremiumID"`
}

// TableName pins the table; gorm would otherwise inflect Premium to "premia".
func (Premium) TableName() string { return "premiums" }

type AdjustmentFactors struct {
	Earnings        float64  `json:"earnings" gorm:"type:decimal(12,2)"`
	AudienceSize    int64    `json:"audience_size"`
	ContentRiskTier RiskTier `json:"content_risk_tier" gorm:"type:varchar(10)"`
	VolatilityScore float64  `json:"volatility_score"`
	InfractionCount int      `json:"infraction_count"`
	RiskExplanation string   `json:"risk_explanation" gorm:"type:text"`
}

type Discount struct {
	Amount    float64    `json:"amount" gorm:"type:decimal(12,2)"`
	Reason    string     `json:"reason" gorm:"type:text"`
	AppliedBy *uuid.UUID `json:"applied_by,omitempty" gorm:"type:uuid"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

type PaymentStatus struct {
	Status     PaymentStatusType `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	DueDate    time.Time         `json:"due_date" gorm:"index"`
	LastPaidAt *time.Time        `json:"last_paid_at,omitempty"`
}

// PremiumCalculation is one immutable snapshot in the calculation history.
type PremiumCalculation struct {
	ID              uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	PremiumID       uuid.UUID          `json:"premium_id" gorm:"type:uuid;not null;uniqueIndex:idx_premium_calc_seq"`
	Sequence        int                `json:"sequence" gorm:"not null;uniqueIndex:idx_premium_calc_seq"`
	Earnings        float64            `json:"earnings"`
	AudienceSize    int64              `json:"audience_size"`
	PlatformCount   int                `json:"platform_count"`
	InfractionCount int                `json:"infraction_count"`
	ContentRiskTier RiskTier           `json:"content_risk_tier" gorm:"type:varchar(10)"`
	VolatilityScore float64            `json:"volatility_score"`
	RiskExplanation string             `json:"risk_explanation" gorm:"type:text"`
	BaseAmount      float64            `json:"base_amount"`
	DiscountAmount  float64            `json:"discount_amount"`
	FinalAmount     float64            `json:"final_amount"`
	Currency        string             `json:"currency" gorm:"size:3"`
	BillingCycle    BillingCycle       `json:"billing_cycle" gorm:"type:varchar(20)"`
	Trigger         CalculationTrigger `json:"trigger" gorm:"type:varchar(10);not null"`
	TriggeredBy     string             `json:"triggered_by" gorm:"size:64"`
	OracleFallback  bool               `json:"oracle_fallback"`
	CalculatedAt    time.Time          `json:"calculated_at"`
}

func (c *PremiumCalculation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *PremiumCalculation) BeforeUpdate(tx *gorm.DB) error { return audit.ErrImmutable }

func (c *PremiumCalculation) TrailOwnerColumn() string { return "premium_id" }
func (c *PremiumCalculation) TrailOwnerID() uuid.UUID  { return c.PremiumID }
func (c *PremiumCalculation) SetSequence(seq int)      { c.Sequence = seq }

// PaymentAttempt records one charge against the payment collaborator.
type PaymentAttempt struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	PremiumID      uuid.UUID `json:"premium_id" gorm:"type:uuid;not null;uniqueIndex:idx_payment_attempt_seq"`
	Sequence       int       `json:"sequence" gorm:"not null;uniqueIndex:idx_payment_attempt_seq"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency" gorm:"size:3"`
	Method         string    `json:"method" gorm:"size:50"`
	Success        bool      `json:"success"`
	Pending        bool      `json:"pending,omitempty"`
	TransactionID  string    `json:"transaction_id,omitempty" gorm:"size:255"`
	FailureReason  string    `json:"failure_reason,omitempty" gorm:"type:text"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"size:128"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

func (a *PaymentAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *PaymentAttempt) BeforeUpdate(tx *gorm.DB) error { return audit.ErrImmutable }

func (a *PaymentAttempt) TrailOwnerColumn() string { return "premium_id" }
func (a *PaymentAttempt) TrailOwnerID() uuid.UUID  { return a.PremiumID }
func (a *PaymentAttempt) SetSequence(seq int)      { a.Sequence = seq }

func (p *Premium) DiscountAmount() float64 {
	return p.Discount.Amount
}

// Payable reports whether a charge may be attempted in the current status.
// PendingAttempt returns the latest attempt if the gateway has not settled it.
func (p *Premium) PendingAttempt() *PaymentAttempt {
	if n := len(p.Attempts); n > 0 && p.Attempts[n-1].Pending {
		return &p.Attempts[n-1]
	}
	return nil
}

func (p *Premium) Payable() bool {
	switch p.PaymentStatus.Status {
	case PaymentStatusPending, PaymentStatusOverdue, PaymentStatusFailed:
		return true
	}
	return false
}
