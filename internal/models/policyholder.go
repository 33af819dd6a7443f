// internal/models/policyholder.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Policyholder struct {
	BaseModel
	Email           string            `json:"email" gorm:"uniqueIndex;size:255;not null"`
	DisplayName     string            `json:"display_name" gorm:"size:100"`
	Currency        string            `json:"currency" gorm:"size:3;not null"`
	MonthlyEarnings float64           `json:"monthly_earnings" gorm:"type:decimal(12,2);default:0"`
	InsuranceStatus InsuranceStatus   `json:"insurance_status" gorm:"embedded;embeddedPrefix:insurance_"`
	Version         int               `json:"version" gorm:"not null;default:1"`
	Platforms       []PlatformProfile `json:"platforms,omitempty" gorm:"foreignKey:PolicyholderID"`
}

type InsuranceStatus struct {
	Status          InsuranceStatusType `json:"status" gorm:"type:varchar(20);not null;default:'not_applied';index"`
	AppliedAt       *time.Time          `json:"applied_at,omitempty"`
	ApprovedAt      *time.Time          `json:"approved_at,omitempty"`
	RejectedAt      *time.Time          `json:"rejected_at,omitempty"`
	SurrenderedAt   *time.Time          `json:"surrendered_at,omitempty"`
	PolicyStartDate *time.Time          `json:"policy_start_date,omitempty"`
	PolicyEndDate   *time.Time          `json:"policy_end_date,omitempty"`
	RejectionReason string              `json:"rejection_reason,omitempty" gorm:"type:text"`
	SurrenderReason string              `json:"surrender_reason,omitempty" gorm:"type:text"`
}

type PlatformProfile struct {
	BaseModel
	PolicyholderID  uuid.UUID      `json:"policyholder_id" gorm:"type:uuid;not null;index"`
	Position        int            `json:"position" gorm:"not null"`
	Name            string         `json:"name" gorm:"size:50;not null"`
	Handle          string         `json:"handle" gorm:"size:100"`
	AudienceSize    int64          `json:"audience_size" gorm:"default:0"`
	ContentCategory string         `json:"content_category" gorm:"size:50"`
	RiskHistory     InfractionList `json:"risk_history" gorm:"type:text"`
}

type InfractionRecord struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// InfractionList is stored as a JSON array, oldest first.
type InfractionList []InfractionRecord

func (l InfractionList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *InfractionList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// TotalAudience sums audience size across all platforms.
func (p *Policyholder) TotalAudience() int64 {
	var total int64
	for _, platform := range p.Platforms {
		total += platform.AudienceSize
	}
	return total
}

// TotalInfractions sums the risk-history lengths across all platforms.
func (p *Policyholder) TotalInfractions() int {
	total := 0
	for _, platform := range p.Platforms {
		total += len(platform.RiskHistory)
	}
	return total
}

func (p *Policyholder) Status() InsuranceStatusType {
	if p.InsuranceStatus.Status == "" {
		return InsuranceStatusNotApplied
	}
	return p.InsuranceStatus.Status
}
