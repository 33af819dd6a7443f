// internal/oracle/heuristic.go
package oracle

import (
	"context"
	"fmt"
	"math"
	"time"
)

// HeuristicClaimAssessor is the deterministic claim reviewer used when no
// model reply is available.
type HeuristicClaimAssessor struct{}

func (h *HeuristicClaimAssessor) AssessClaim(_ context.Context, input ClaimInput) ClaimAssessment {
	now := input.EvaluatedAt
	if now.IsZero() {
		now = time.Now()
	}

	var reasons []string
	valid := true

	if input.ReportedEarningsLoss <= 0 {
		valid = false
		reasons = append(reasons, "No earnings loss reported")
	}
	if input.EvidenceCount < 1 {
		valid = false
		reasons = append(reasons, "No supporting evidence attached")
	} else {
		reasons = append(reasons, fmt.Sprintf("%d evidence file(s) provided", input.EvidenceCount))
	}
	if input.IncidentDate.After(now) {
		valid = false
		reasons = append(reasons, "Incident date is in the future")
	}

	confidence := 40.0 + 15.0*float64(input.EvidenceCount)
	if len(input.Description) >= 50 {
		confidence += 10
		reasons = append(reasons, "Detailed incident description")
	}
	confidence = math.Min(95, confidence)

	return ClaimAssessment{
		IsValid:         valid,
		ConfidenceScore: confidence,
		Reasons:         reasons,
		Fallback:        true,
	}
}
