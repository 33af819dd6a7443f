// internal/services/deadline_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

// DeadlineService answers SLA queries. Deadlines are advisory: nothing here
// changes a claim's status.
type DeadlineService struct {
	clock
	db        *gorm.DB
	lookahead time.Duration
}

// ClaimDeadline is one open claim with its remaining time.
type ClaimDeadline struct {
	ClaimID            string             `json:"claim_id"`
	PolicyholderID     string             `json:"policyholder_id"`
	Status             models.ClaimStatus `json:"status"`
	ResolutionDeadline time.Time          `json:"resolution_deadline"`
	Remaining          string             `json:"remaining"`
	Overdue            bool               `json:"overdue"`
}

type PremiumDue struct {
	PremiumID      string                   `json:"premium_id"`
	PolicyholderID string                   `json:"policyholder_id"`
	Status         models.PaymentStatusType `json:"payment_status"`
	DueDate        time.Time                `json:"due_date"`
	FinalAmount    float64                  `json:"final_amount"`
	Currency       string                   `json:"currency"`
}

func NewDeadlineService(db *gorm.DB, defaultLookahead time.Duration) *DeadlineService {
	if defaultLookahead <= 0 {
		defaultLookahead = 24 * time.Hour
	}
	return &DeadlineService{db: db, lookahead: defaultLookahead}
}

// AtRiskClaims lists open claims whose deadline falls within lookahead.
func (s *DeadlineService) AtRiskClaims(ctx context.Context, actor models.Actor, lookahead time.Duration) ([]ClaimDeadline, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if lookahead < 0 {
		return nil, apperr.Validation("lookahead must not be negative")
	}
	if lookahead == 0 {
		lookahead = s.lookahead
	}

	now := s.Now()
	query := s.db.WithContext(ctx).
		Where("resolution_deadline >= ? AND resolution_deadline <= ?", now, now.Add(lookahead))
	return s.openClaims(query, now)
}

// OverdueClaims lists open claims whose deadline has passed.
func (s *DeadlineService) OverdueClaims(ctx context.Context, actor models.Actor) ([]ClaimDeadline, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	now := s.Now()
	return s.openClaims(s.db.WithContext(ctx).Where("resolution_deadline < ?", now), now)
}

func (s *DeadlineService) openClaims(query *gorm.DB, now time.Time) ([]ClaimDeadline, error) {
	var claims []models.Claim
	err := query.Preload("StatusHistory", orderBySequence).
		Order("resolution_deadline ASC").
		Find(&claims).Error
	if err != nil {
		return nil, apperr.Persistence("failed to query claim deadlines", err)
	}

	result := make([]ClaimDeadline, 0, len(claims))
	for i := range claims {
		status := claims[i].CurrentStatus()
		if status.Terminal() {
			continue
		}
		remaining := claims[i].ResolutionDeadline.Sub(now)
		result = append(result, ClaimDeadline{
			ClaimID:            claims[i].ID.String(),
			PolicyholderID:     claims[i].PolicyholderID.String(),
			Status:             status,
			ResolutionDeadline: claims[i].ResolutionDeadline,
			Remaining:          remaining.Round(time.Minute).String(),
			Overdue:            remaining < 0,
		})
	}
	return result, nil
}

// UpcomingPremiumDues lists unpaid premiums due within lookahead.
func (s *DeadlineService) UpcomingPremiumDues(ctx context.Context, actor models.Actor, lookahead time.Duration) ([]PremiumDue, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if lookahead <= 0 {
		return nil, apperr.Validation("lookahead must be positive")
	}

	now := s.Now()
	var premiums []models.Premium
	err := s.db.WithContext(ctx).
		Where("payment_status <> ?", models.PaymentStatusPaid).
		Where("payment_due_date <= ?", now.Add(lookahead)).
		Order("payment_due_date ASC").
		Find(&premiums).Error
	if err != nil {
		return nil, apperr.Persistence("failed to query premium dues", err)
	}

	result := make([]PremiumDue, 0, len(premiums))
	for _, p := range premiums {
		result = append(result, PremiumDue{
			PremiumID:      p.ID.String(),
			PolicyholderID: p.PolicyholderID.String(),
			Status:         p.PaymentStatus.Status,
			DueDate:        p.PaymentStatus.DueDate,
			FinalAmount:    p.FinalAmount,
			Currency:       p.Currency,
		})
	}
	return result, nil
}

// MarkOverduePremiums moves pending premiums past their due date to overdue.
// Records changed concurrently are skipped and picked up by the next sweep.
func (s *DeadlineService) MarkOverduePremiums(ctx context.Context, actor models.Actor) (int, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return 0, err
	}

	db := s.db.WithContext(ctx)
	now := s.Now()
	var premiums []models.Premium
	err := db.Where("payment_status = ? AND payment_due_date < ?", models.PaymentStatusPending, now).
		Find(&premiums).Error
	if err != nil {
		return 0, apperr.Persistence("failed to query overdue premiums", err)
	}

	marked := 0
	for i := range premiums {
		premium := &premiums[i]
		premium.PaymentStatus.Status = models.PaymentStatusOverdue
		err := database.WithTransaction(db, func(tx *gorm.DB) error {
			return database.SaveVersioned(tx, premium)
		})
		if errors.Is(err, database.ErrVersionConflict) {
			logrus.WithField("premium_id", premium.ID).Warn("Premium changed during overdue sweep, skipped")
			continue
		}
		if err != nil {
			return marked, apperr.Persistence(fmt.Sprintf("failed to mark premium %s overdue", premium.ID), err)
		}
		marked++
	}

	logrus.WithFields(logrus.Fields{
		"marked":   marked,
		"examined": len(premiums),
		"actor":    actor.String(),
	}).Info("Overdue premium sweep finished")
	return marked, nil
}
