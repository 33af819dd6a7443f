// internal/models/common.go
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns an ID in Go so records work on any dialect.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// scanJSON decodes a JSON text column into dest.
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", value)
	}

	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dest)
}

// Enums
type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// String is used as the actor tag in audit entries.
func (a Actor) String() string {
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}

// SystemActor tags entries written by on-demand sweeps.
var SystemActor = Actor{ID: uuid.Nil, Role: RoleAdmin}

type InsuranceStatusType string

const (
	InsuranceStatusNotApplied  InsuranceStatusType = "not_applied"
	InsuranceStatusPending     InsuranceStatusType = "pending"
	InsuranceStatusApproved    InsuranceStatusType = "approved"
	InsuranceStatusRejected    InsuranceStatusType = "rejected"
	InsuranceStatusSurrendered InsuranceStatusType = "surrendered"
)

type RiskTier string

const (
	RiskTierLow    RiskTier = "Low"
	RiskTierMedium RiskTier = "Medium"
	RiskTierHigh   RiskTier = "High"
)

type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleAnnually  BillingCycle = "annually"
)

// Period returns the length of one billing cycle. Unknown cycles bill monthly.
func (b BillingCycle) Period() time.Duration {
	switch b {
	case BillingCycleQuarterly:
		return 90 * 24 * time.Hour
	case BillingCycleAnnually:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

func (b BillingCycle) Valid() bool {
	switch b {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleAnnually:
		return true
	}
	return false
}

type PaymentStatusType string

const (
	PaymentStatusPending PaymentStatusType = "pending"
	PaymentStatusPaid    PaymentStatusType = "paid"
	PaymentStatusOverdue PaymentStatusType = "overdue"
	PaymentStatusFailed  PaymentStatusType = "failed"
)

type CalculationTrigger string

const (
	CalculationTriggerAI     CalculationTrigger = "ai"
	CalculationTriggerManual CalculationTrigger = "manual"
)

type ClaimStatus string

const (
	ClaimStatusSubmitted    ClaimStatus = "Submitted"
	ClaimStatusUnderReview  ClaimStatus = "Under Review"
	ClaimStatusAIReviewed   ClaimStatus = "AI Reviewed"
	ClaimStatusManualReview ClaimStatus = "Manual Review"
	ClaimStatusApproved     ClaimStatus = "Approved"
	ClaimStatusRejected     ClaimStatus = "Rejected"
	ClaimStatusPaid         ClaimStatus = "Paid"
)

// Rank orders claim statuses along the adjudication pipeline. Approved and
// Rejected share a rank since they are alternative outcomes.
func (s ClaimStatus) Rank() int {
	switch s {
	case ClaimStatusSubmitted:
		return 0
	case ClaimStatusUnderReview:
		return 1
	case ClaimStatusAIReviewed:
		return 2
	case ClaimStatusManualReview:
		return 3
	case ClaimStatusApproved, ClaimStatusRejected:
		return 4
	case ClaimStatusPaid:
		return 5
	}
	return -1
}

// Terminal statuses end the adjudication SLA.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusRejected || s == ClaimStatusPaid
}

// RoundMoney rounds to two decimal places.
func RoundMoney(v float64) float64 {
	if v < 0 {
		return -RoundMoney(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
