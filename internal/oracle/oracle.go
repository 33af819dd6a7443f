// internal/oracle/oracle.go
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/javajoker/creatorshield-backend/internal/models"
)

// ErrOracleUnavailable marks a failed or unparsable oracle call. It is logged
// by adapters and never reaches engine callers.
var ErrOracleUnavailable = errors.New("risk oracle unavailable")

const DefaultExplanation = "Default risk assessment"

// RiskOracle is the advisory risk-scoring capability. Implementations always
// return a usable assessment; failures degrade to fallbacks.
type RiskOracle interface {
	AssessPremium(ctx context.Context, input PremiumInput) RiskAssessment
	AssessClaim(ctx context.Context, input ClaimInput) ClaimAssessment
}

type PlatformSummary struct {
	Name            string `json:"name"`
	AudienceSize    int64  `json:"audienceSize"`
	ContentType     string `json:"contentType"`
	InfractionCount int    `json:"infractionCount"`
}

type PremiumInput struct {
	MonthlyEarnings  float64           `json:"monthlyEarnings"`
	Currency         string            `json:"currency"`
	Platforms        []PlatformSummary `json:"platforms"`
	TotalInfractions int               `json:"totalInfractions"`
}

// RiskAssessment is the parsed oracle output for a premium.
type RiskAssessment struct {
	Tier            models.RiskTier
	Explanation     string
	SuggestedAmount float64
	Fallback        bool
}

type ClaimInput struct {
	Platform             string    `json:"platform"`
	IncidentType         string    `json:"incidentType"`
	IncidentDate         time.Time `json:"incidentDate"`
	Description          string    `json:"description"`
	ReportedEarningsLoss float64   `json:"reportedEarningsLoss"`
	Currency             string    `json:"currency"`
	EvidenceCount        int       `json:"evidenceCount"`
	EvaluatedAt          time.Time `json:"-"`
}

type ClaimAssessment struct {
	IsValid         bool     `json:"isValid"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Reasons         []string `json:"reasons"`
	Fallback        bool     `json:"-"`
}

// FallbackAssessment is what the engine uses when the oracle says nothing usable.
func FallbackAssessment(amount float64) RiskAssessment {
	return RiskAssessment{
		Tier:            models.RiskTierLow,
		Explanation:     DefaultExplanation,
		SuggestedAmount: amount,
		Fallback:        true,
	}
}

// SummarizeHolder builds the oracle input from a policyholder record.
func SummarizeHolder(holder *models.Policyholder) PremiumInput {
	input := PremiumInput{
		MonthlyEarnings:  holder.MonthlyEarnings,
		Currency:         holder.Currency,
		Platforms:        make([]PlatformSummary, 0, len(holder.Platforms)),
		TotalInfractions: holder.TotalInfractions(),
	}
	for _, p := range holder.Platforms {
		input.Platforms = append(input.Platforms, PlatformSummary{
			Name:            p.Name,
			AudienceSize:    p.AudienceSize,
			ContentType:     p.ContentCategory,
			InfractionCount: len(p.RiskHistory),
		})
	}
	return input
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
