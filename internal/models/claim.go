// internal/models/claim.go
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/audit"
)

// ResolutionWindow is the fixed service-level target for deciding a claim.
const ResolutionWindow = 72 * time.Hour

type Claim struct {
	BaseModel
	PolicyholderID     uuid.UUID          `json:"policyholder_id" gorm:"type:uuid;not null;index"`
	Details            ClaimDetails       `json:"claim_details" gorm:"embedded"`
	EvidenceNotes      string             `json:"evidence_notes,omitempty" gorm:"type:text"`
	Evaluation         Evaluation         `json:"evaluation" gorm:"embedded;embeddedPrefix:eval_"`
	ResolutionDeadline time.Time          `json:"resolution_deadline" gorm:"not null;index"`
	Version            int                `json:"version" gorm:"not null;default:1"`
	Evidence           []EvidenceFile     `json:"evidence,omitempty" gorm:"foreignKey:ClaimID"`
	StatusHistory      []ClaimStatusEntry `json:"status_history,omitempty" gorm:"foreignKey:ClaimID"`
}

// ClaimDetails are fixed at submission.
type ClaimDetails struct {
	Platform             string    `json:"platform" gorm:"size:50;not null" validate:"required,platform_name"`
	IncidentType         string    `json:"incident_type" gorm:"size:50;not null" validate:"required"`
	IncidentDate         time.Time `json:"incident_date" gorm:"not null" validate:"required"`
	Description          string    `json:"description" gorm:"type:text;not null" validate:"required,min=10"`
	ReportedEarningsLoss float64   `json:"reported_earnings_loss" gorm:"type:decimal(12,2);not null" validate:"gt=0"`
	Currency             string    `json:"currency" gorm:"size:3;not null" validate:"required,currency"`
}

type Evaluation struct {
	AIIsValid            *bool          `json:"ai_is_valid,omitempty"`
	AIConfidence         float64        `json:"ai_confidence_score"`
	AIReasons            pq.StringArray `json:"ai_reasons,omitempty" gorm:"type:text[]"`
	AIFallback           bool           `json:"ai_fallback"`
	AIAnalyzedAt         *time.Time     `json:"ai_analyzed_at,omitempty"`
	VerifiedEarningsLoss float64        `json:"verified_earnings_loss" gorm:"type:decimal(12,2)"`
	ReviewerID           *uuid.UUID     `json:"reviewer_id,omitempty" gorm:"type:uuid"`
	ReviewNotes          string         `json:"review_notes,omitempty" gorm:"type:text"`
	ManualIsValid        *bool          `json:"manual_is_valid,omitempty"`
	ReviewedAt           *time.Time     `json:"reviewed_at,omitempty"`
	PayoutAmount         float64        `json:"payout_amount" gorm:"type:decimal(12,2)"`
	EvaluatedAt          *time.Time     `json:"evaluation_date,omitempty"`
}

type EvidenceFile struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ClaimID     uuid.UUID `json:"claim_id" gorm:"type:uuid;not null;uniqueIndex:idx_claim_evidence_seq"`
	Sequence    int       `json:"sequence" gorm:"not null;uniqueIndex:idx_claim_evidence_seq"`
	URL         string    `json:"url" gorm:"type:text;not null"`
	StorageKey  string    `json:"-" gorm:"type:text;not null"`
	FileName    string    `json:"file_name" gorm:"size:255"`
	FileType    string    `json:"file_type" gorm:"size:100"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func (e *EvidenceFile) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *EvidenceFile) BeforeUpdate(tx *gorm.DB) error { return audit.ErrImmutable }

func (e *EvidenceFile) TrailOwnerColumn() string { return "claim_id" }
func (e *EvidenceFile) TrailOwnerID() uuid.UUID  { return e.ClaimID }
func (e *EvidenceFile) SetSequence(seq int)      { e.Sequence = seq }

type ClaimStatusEntry struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	ClaimID   uuid.UUID   `json:"claim_id" gorm:"type:uuid;not null;uniqueIndex:idx_claim_status_seq"`
	Sequence  int         `json:"sequence" gorm:"not null;uniqueIndex:idx_claim_status_seq"`
	Status    ClaimStatus `json:"status" gorm:"type:varchar(20);not null"`
	Actor     string      `json:"actor" gorm:"size:64"`
	Notes     string      `json:"notes,omitempty" gorm:"type:text"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e *ClaimStatusEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *ClaimStatusEntry) BeforeUpdate(tx *gorm.DB) error { return audit.ErrImmutable }

func (e *ClaimStatusEntry) TrailOwnerColumn() string { return "claim_id" }
func (e *ClaimStatusEntry) TrailOwnerID() uuid.UUID  { return e.ClaimID }
func (e *ClaimStatusEntry) SetSequence(seq int)      { e.Sequence = seq }

// CurrentStatus is always the last status-history entry.
func (c *Claim) CurrentStatus() ClaimStatus {
	if len(c.StatusHistory) == 0 {
		return ""
	}
	return c.StatusHistory[len(c.StatusHistory)-1].Status
}

// Validate checks the structural properties every persisted claim holds.
func (c *Claim) Validate() error {
	if len(c.StatusHistory) == 0 {
		return errors.New("claim has no status history")
	}
	if c.StatusHistory[0].Status != ClaimStatusSubmitted {
		return fmt.Errorf("claim history starts with %s", c.StatusHistory[0].Status)
	}

	sequences := make([]int, len(c.StatusHistory))
	for i, entry := range c.StatusHistory {
		sequences[i] = entry.Sequence
		if i > 0 && entry.Status.Rank() <= c.StatusHistory[i-1].Status.Rank() {
			return fmt.Errorf("status %s follows %s", entry.Status, c.StatusHistory[i-1].Status)
		}
	}
	if !audit.Ordered(sequences) {
		return errors.New("status history sequence is not contiguous")
	}

	if !c.ResolutionDeadline.Equal(DeadlineFor(c.CreatedAt)) {
		return fmt.Errorf("resolution deadline %s does not match creation time", c.ResolutionDeadline)
	}
	if c.Evaluation.ManualIsValid != nil && !*c.Evaluation.ManualIsValid && c.Evaluation.PayoutAmount != 0 {
		return errors.New("rejected claim carries a payout")
	}
	if c.Evaluation.PayoutAmount < 0 || c.Evaluation.PayoutAmount > c.Details.ReportedEarningsLoss {
		return errors.New("payout outside the reported loss")
	}
	return nil
}

// DeadlineFor computes the resolution deadline for a claim created at t.
func DeadlineFor(createdAt time.Time) time.Time {
	return createdAt.Add(ResolutionWindow)
}

// Versioned records are updated with optimistic concurrency.
func (c *Claim) GetVersion() int         { return c.Version }
func (c *Claim) SetVersion(v int)        { c.Version = v }
func (p *Premium) GetVersion() int       { return p.Version }
func (p *Premium) SetVersion(v int)      { p.Version = v }
func (p *Policyholder) GetVersion() int  { return p.Version }
func (p *Policyholder) SetVersion(v int) { p.Version = v }
