package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

type PremiumServiceSuite struct {
	engineSuite
}

func TestPremiumServiceSuite(t *testing.T) {
	suite.Run(t, new(PremiumServiceSuite))
}

func (s *PremiumServiceSuite) TestFinalAmountNeverNegative() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)

	s.oracle.SetPremium(models.RiskTierLow, "Negative suggestion", -250)
	premium, err := s.premiums.Recalculate(context.Background(), s.creator, s.creator.ID)
	s.Require().NoError(err)
	s.Equal(0.0, premium.FinalAmount)
	s.GreaterOrEqual(premium.BaseAmount, 0.0)

	s.oracle.SetUnavailable(true)
	premium, err = s.premiums.Recalculate(context.Background(), s.creator, s.creator.ID)
	s.Require().NoError(err)
	s.Equal(500.0, premium.FinalAmount)
}

func (s *PremiumServiceSuite) TestHistoryGrowsByOneAndNeverChanges() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)
	first := premium.Calculations[0]

	s.advance(time.Hour)
	_, err := s.premiums.Recalculate(context.Background(), s.creator, s.creator.ID)
	s.Require().NoError(err)

	_, err = s.premiums.AdjustPremium(context.Background(), s.admin, premium.ID, &AdjustPremiumRequest{
		FinalAmount:     floatPtr(420),
		AdjustmentNotes: "loyalty review",
	})
	s.Require().NoError(err)

	history, err := s.premiums.History(context.Background(), s.creator, premium.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal([]int{1, 2, 3}, []int{history[0].Sequence, history[1].Sequence, history[2].Sequence})
	s.Equal(models.CalculationTriggerAI, history[1].Trigger)
	s.Equal(models.CalculationTriggerManual, history[2].Trigger)
	s.Equal(420.0, history[2].FinalAmount)

	s.Equal(first.ID, history[0].ID)
	s.Equal(first.FinalAmount, history[0].FinalAmount)
	s.True(first.CalculatedAt.Equal(history[0].CalculatedAt))
}

func (s *PremiumServiceSuite) TestRecalculationKeepsDueDate() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)
	due := premium.PaymentStatus.DueDate

	s.advance(10 * 24 * time.Hour)
	updated, err := s.premiums.Recalculate(context.Background(), s.creator, s.creator.ID)
	s.Require().NoError(err)

	s.True(updated.PaymentStatus.DueDate.Equal(due))
	s.True(updated.NextCalculationDate.Equal(s.now.Add(30 * 24 * time.Hour)))
}

func (s *PremiumServiceSuite) TestChangeBillingCycleResetsSchedule() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)

	s.advance(5 * 24 * time.Hour)
	_, err := s.premiums.ChangeBillingCycle(context.Background(), s.creator, premium.ID, "weekly")
	s.requireKind(err, apperr.KindValidation)

	updated, err := s.premiums.ChangeBillingCycle(context.Background(), s.creator, premium.ID, models.BillingCycleQuarterly)
	s.Require().NoError(err)
	s.Equal(models.BillingCycleQuarterly, updated.BillingCycle)
	s.True(updated.PaymentStatus.DueDate.Equal(s.now.Add(90 * 24 * time.Hour)))
	s.True(updated.NextCalculationDate.Equal(s.now.Add(90 * 24 * time.Hour)))
}

func (s *PremiumServiceSuite) TestAdjustPremiumIsAdminOnlyAndBypassesOracle() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)
	calls := s.oracle.PremiumCalls()

	_, err := s.premiums.AdjustPremium(context.Background(), s.creator, premium.ID, &AdjustPremiumRequest{BaseAmount: floatPtr(100)})
	s.requireKind(err, apperr.KindForbidden)

	_, err = s.premiums.AdjustPremium(context.Background(), s.admin, premium.ID, &AdjustPremiumRequest{FinalAmount: floatPtr(-1)})
	s.requireKind(err, apperr.KindValidation)

	updated, err := s.premiums.AdjustPremium(context.Background(), s.admin, premium.ID, &AdjustPremiumRequest{
		BaseAmount:     floatPtr(800),
		DiscountAmount: floatPtr(150),
		DiscountReason: "creator fund partner",
	})
	s.Require().NoError(err)
	s.Equal(650.0, updated.FinalAmount)
	s.Equal(calls, s.oracle.PremiumCalls())
	s.Require().NotNil(updated.Discount.AppliedBy)
	s.Equal(s.admin.ID, *updated.Discount.AppliedBy)
}

func (s *PremiumServiceSuite) TestApplyDiscountRecalculates() {
	s.oracle.SetPremium(models.RiskTierMedium, "Moderate", 1000)
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)

	_, err := s.premiums.ApplyDiscount(context.Background(), s.admin, premium.ID, &DiscountRequest{Amount: 200})
	s.requireKind(err, apperr.KindValidation)

	updated, err := s.premiums.ApplyDiscount(context.Background(), s.admin, premium.ID, &DiscountRequest{Amount: 1200, Reason: "hardship"})
	s.Require().NoError(err)
	s.Equal(0.0, updated.FinalAmount)
	s.Equal(1200.0, updated.Discount.Amount)
	s.Len(updated.Calculations, 2)
	s.Equal(models.CalculationTriggerAI, updated.Calculations[1].Trigger)

	updated, err = s.premiums.ApplyDiscount(context.Background(), s.admin, premium.ID, &DiscountRequest{Amount: 250, Reason: "first year"})
	s.Require().NoError(err)
	s.Equal(750.0, updated.FinalAmount)
}

func (s *PremiumServiceSuite) TestPaySucceeds() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)

	_, err := s.premiums.Pay(context.Background(), s.admin, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.requireKind(err, apperr.KindForbidden)

	paid, err := s.premiums.Pay(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, paid.PaymentStatus.Status)
	s.Require().NotNil(paid.PaymentStatus.LastPaidAt)
	s.Require().Len(paid.Attempts, 1)
	s.True(paid.Attempts[0].Success)
	s.Equal("pi_1", paid.Attempts[0].TransactionID)

	requests := s.gateway.Requests()
	s.Require().Len(requests, 1)
	s.Equal("premium:"+premium.ID.String()+":attempt:1", requests[0].IdempotencyKey)

	_, err = s.premiums.Pay(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.requireKind(err, apperr.KindInvalidState)
}

func (s *PremiumServiceSuite) TestPaymentFailureIsRecordedAndRetryable() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)

	_, err := s.premiums.RetryPayment(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.requireKind(err, apperr.KindInvalidState)

	s.gateway.decline = true
	failed, err := s.premiums.Pay(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_chargeDeclined"})
	s.requireKind(err, apperr.KindPayment)
	s.Require().NotNil(failed)
	s.Equal(models.PaymentStatusFailed, failed.PaymentStatus.Status)

	stored, err := loadPremium(s.db, premium.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.Attempts, 1)
	s.False(stored.Attempts[0].Success)
	s.Contains(stored.Attempts[0].FailureReason, "card declined")

	s.gateway.decline = false
	paid, err := s.premiums.RetryPayment(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, paid.PaymentStatus.Status)
	s.Require().Len(paid.Attempts, 2)
	s.Equal("premium:"+premium.ID.String()+":attempt:2", paid.Attempts[1].IdempotencyKey)

	s.notifications.Wait()
	var failures int
	for _, m := range s.notifier.Messages() {
		if m.Subject == getEmailTemplate("payment_failed").Subject {
			failures++
		}
	}
	s.Equal(1, failures)
}

func (s *PremiumServiceSuite) TestProcessingChargeStaysPendingUntilSettled() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)

	s.gateway.pending = true
	processing, err := s.premiums.Pay(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_visa"})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPending, processing.PaymentStatus.Status)
	s.Nil(processing.PaymentStatus.LastPaidAt)
	s.Require().Len(processing.Attempts, 1)
	s.False(processing.Attempts[0].Success)
	s.True(processing.Attempts[0].Pending)

	// Paying again settles the same intent instead of charging twice.
	s.gateway.pending = false
	paid, err := s.premiums.Pay(context.Background(), s.creator, premium.ID, &PaymentRequest{Method: "pm_card_other"})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, paid.PaymentStatus.Status)
	s.Require().Len(paid.Attempts, 2)
	s.True(paid.Attempts[1].Success)
	s.Equal("pi_1", paid.Attempts[1].TransactionID)
	s.Equal(paid.Attempts[0].IdempotencyKey, paid.Attempts[1].IdempotencyKey)
	s.Equal("pm_card_visa", paid.Attempts[1].Method)

	s.Len(s.gateway.Requests(), 1)
	s.Equal([]string{"pi_1"}, s.gateway.Lookups())
}

func (s *PremiumServiceSuite) TestReadsAreGuarded() {
	s.register(s.creator, 0)
	_, premium := s.apply(s.creator)
	other := newCreator()

	_, err := s.premiums.Get(context.Background(), other, premium.ID)
	s.requireKind(err, apperr.KindForbidden)

	got, err := s.premiums.Get(context.Background(), s.admin, premium.ID)
	s.Require().NoError(err)
	s.Equal(premium.ID, got.ID)

	got, err = s.premiums.GetForPolicyholder(context.Background(), s.creator, s.creator.ID)
	s.Require().NoError(err)
	s.Equal(premium.ID, got.ID)
}
