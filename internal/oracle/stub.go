// internal/oracle/stub.go
package oracle

import (
	"context"
	"sync"

	"github.com/javajoker/creatorshield-backend/internal/models"
)

// StubOracle returns configured assessments without any network call.
type StubOracle struct {
	mu              sync.Mutex
	premium         RiskAssessment
	claim           *ClaimAssessment
	unavailable     bool
	fallbackAmount  float64
	premiumCalls    int
	claimCalls      int
	heuristic       HeuristicClaimAssessor
	lastPremiumCall PremiumInput
}

func NewStubOracle(fallbackAmount float64) *StubOracle {
	return &StubOracle{
		fallbackAmount: fallbackAmount,
		premium: RiskAssessment{
			Tier:            models.RiskTierMedium,
			Explanation:     "Stable earnings with moderate platform exposure",
			SuggestedAmount: fallbackAmount,
		},
	}
}

func (s *StubOracle) SetPremium(tier models.RiskTier, explanation string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.premium = RiskAssessment{Tier: tier, Explanation: explanation, SuggestedAmount: amount}
}

// SetClaim fixes the claim assessment. Without it the heuristic answers.
func (s *StubOracle) SetClaim(valid bool, confidence float64, reasons ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claim = &ClaimAssessment{IsValid: valid, ConfidenceScore: clampConfidence(confidence), Reasons: reasons}
}

// SetUnavailable simulates an oracle outage.
func (s *StubOracle) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *StubOracle) AssessPremium(_ context.Context, input PremiumInput) RiskAssessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.premiumCalls++
	s.lastPremiumCall = input
	if s.unavailable {
		return FallbackAssessment(s.fallbackAmount)
	}
	return s.premium
}

func (s *StubOracle) AssessClaim(ctx context.Context, input ClaimInput) ClaimAssessment {
	s.mu.Lock()
	s.claimCalls++
	claim := s.claim
	down := s.unavailable
	s.mu.Unlock()

	if down || claim == nil {
		return s.heuristic.AssessClaim(ctx, input)
	}
	out := *claim
	out.Reasons = append([]string(nil), claim.Reasons...)
	return out
}

func (s *StubOracle) PremiumCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.premiumCalls
}

func (s *StubOracle) ClaimCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimCalls
}

func (s *StubOracle) LastPremiumInput() PremiumInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPremiumCall
}
