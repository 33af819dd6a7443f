// internal/services/lifecycle.go
package services

import (
	"github.com/javajoker/creatorshield-backend/internal/models"
)

// TransitionRule defines one allowed edge of a lifecycle.
type TransitionRule[S comparable] struct {
	From S
	To   S
}

// LifecycleMachine validates transitions against a fixed rule table.
type LifecycleMachine[S comparable] struct {
	transitions []TransitionRule[S]
}

func (m LifecycleMachine[S]) CanTransition(from, to S) bool {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns all valid target states from the given state.
func (m LifecycleMachine[S]) AllowedTransitions(from S) []S {
	var allowed []S
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

var PolicyLifecycle = LifecycleMachine[models.InsuranceStatusType]{
	transitions: []TransitionRule[models.InsuranceStatusType]{
		{From: models.InsuranceStatusNotApplied, To: models.InsuranceStatusPending},
		{From: models.InsuranceStatusRejected, To: models.InsuranceStatusPending},
		{From: models.InsuranceStatusSurrendered, To: models.InsuranceStatusPending},
		{From: models.InsuranceStatusPending, To: models.InsuranceStatusApproved},
		{From: models.InsuranceStatusPending, To: models.InsuranceStatusRejected},
		{From: models.InsuranceStatusApproved, To: models.InsuranceStatusSurrendered},
	},
}

var ClaimLifecycle = LifecycleMachine[models.ClaimStatus]{
	transitions: []TransitionRule[models.ClaimStatus]{
		{From: models.ClaimStatusSubmitted, To: models.ClaimStatusUnderReview},
		{From: models.ClaimStatusSubmitted, To: models.ClaimStatusAIReviewed},
		{From: models.ClaimStatusUnderReview, To: models.ClaimStatusAIReviewed},
		{From: models.ClaimStatusAIReviewed, To: models.ClaimStatusManualReview},
		{From: models.ClaimStatusAIReviewed, To: models.ClaimStatusApproved},
		{From: models.ClaimStatusAIReviewed, To: models.ClaimStatusRejected},
		{From: models.ClaimStatusManualReview, To: models.ClaimStatusApproved},
		{From: models.ClaimStatusManualReview, To: models.ClaimStatusRejected},
		{From: models.ClaimStatusApproved, To: models.ClaimStatusPaid},
	},
}
