package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

type DeadlineServiceSuite struct {
	engineSuite
}

func TestDeadlineServiceSuite(t *testing.T) {
	suite.Run(t, new(DeadlineServiceSuite))
}

func (s *DeadlineServiceSuite) TestAtRiskAndOverdueClaims() {
	s.insured(s.creator)
	early := s.submitClaim(s.creator)
	s.advance(30 * time.Hour)
	late := s.submitClaim(s.creator)
	decided := s.submitClaim(s.creator)
	_, err := s.claims.EvaluateWithOracle(context.Background(), s.admin, decided.ID)
	s.Require().NoError(err)
	_, err = s.claims.ReviewManually(context.Background(), s.admin, decided.ID, &ManualReviewRequest{IsValid: boolPtr(false)})
	s.Require().NoError(err)

	// early is due in 42h, late and decided in 72h.
	s.advance(30 * time.Hour)

	_, err = s.deadlines.AtRiskClaims(context.Background(), s.creator, 0)
	s.requireKind(err, apperr.KindForbidden)

	atRisk, err := s.deadlines.AtRiskClaims(context.Background(), s.admin, 0)
	s.Require().NoError(err)
	s.Require().Len(atRisk, 1)
	s.Equal(early.ID.String(), atRisk[0].ClaimID)
	s.False(atRisk[0].Overdue)

	wide, err := s.deadlines.AtRiskClaims(context.Background(), s.admin, 48*time.Hour)
	s.Require().NoError(err)
	s.Require().Len(wide, 2)
	s.Equal(early.ID.String(), wide[0].ClaimID)
	s.Equal(late.ID.String(), wide[1].ClaimID)

	s.advance(24 * time.Hour)
	overdue, err := s.deadlines.OverdueClaims(context.Background(), s.admin)
	s.Require().NoError(err)
	s.Require().Len(overdue, 1)
	s.Equal(early.ID.String(), overdue[0].ClaimID)
	s.True(overdue[0].Overdue)

	// Breaching the deadline changes nothing on the claim.
	stored := s.reload(early.ID)
	s.Equal(models.ClaimStatusSubmitted, stored.CurrentStatus())
	s.True(stored.ResolutionDeadline.Equal(early.ResolutionDeadline))

	_, err = s.deadlines.AtRiskClaims(context.Background(), s.admin, -time.Hour)
	s.requireKind(err, apperr.KindValidation)
}

func (s *DeadlineServiceSuite) TestPremiumDuesAndOverdueSweep() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)
	other := newCreator()
	s.register(other, 0)
	_, paid := s.apply(other)
	_, err := s.premiums.Pay(context.Background(), other, paid.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.Require().NoError(err)

	s.advance(28 * 24 * time.Hour)
	dues, err := s.deadlines.UpcomingPremiumDues(context.Background(), s.admin, 72*time.Hour)
	s.Require().NoError(err)
	s.Require().Len(dues, 1)
	s.Equal(premium.ID.String(), dues[0].PremiumID)

	_, err = s.deadlines.UpcomingPremiumDues(context.Background(), s.admin, 0)
	s.requireKind(err, apperr.KindValidation)

	marked, err := s.deadlines.MarkOverduePremiums(context.Background(), s.admin)
	s.Require().NoError(err)
	s.Zero(marked)

	s.advance(3 * 24 * time.Hour)
	_, err = s.deadlines.MarkOverduePremiums(context.Background(), s.creator)
	s.requireKind(err, apperr.KindForbidden)

	marked, err = s.deadlines.MarkOverduePremiums(context.Background(), s.admin)
	s.Require().NoError(err)
	s.Equal(1, marked)

	stored, err := loadPremium(s.db, premium.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusOverdue, stored.PaymentStatus.Status)

	// Overdue premiums can be retried once a charge was attempted, and paid directly otherwise.
	_, err = s.premiums.RetryPayment(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.requireKind(err, apperr.KindInvalidState)
	settled, err := s.premiums.Pay(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, settled.PaymentStatus.Status)

	marked, err = s.deadlines.MarkOverduePremiums(context.Background(), s.admin)
	s.Require().NoError(err)
	s.Zero(marked)
}
