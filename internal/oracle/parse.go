// internal/oracle/parse.go
package oracle

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/javajoker/creatorshield-backend/internal/models"
)

var (
	tierPattern        = regexp.MustCompile(`(?i)risk\s*(?:level|tier)\**\s*[:\-]\s*\**\s*(low|medium|high)`)
	explanationPattern = regexp.MustCompile(`(?i)explanation\**\s*[:\-]\s*\**\s*(.+)`)
	amountPattern      = regexp.MustCompile(`(?i)(?:final|suggested)\s+premium\**\s*[:\-]\s*\**\s*(?:[A-Z]{3}|Rs\.?|[₹$€£])?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

// ParsePremiumAssessment extracts tier, explanation and amount from free text.
// Each missing field falls back independently.
func ParsePremiumAssessment(text string, fallbackAmount float64) RiskAssessment {
	result := RiskAssessment{
		Tier:            models.RiskTierLow,
		Explanation:     DefaultExplanation,
		SuggestedAmount: fallbackAmount,
	}
	matched := 0

	if m := tierPattern.FindStringSubmatch(text); m != nil {
		result.Tier = normalizeTier(m[1])
		matched++
	}

	if m := explanationPattern.FindStringSubmatch(text); m != nil {
		explanation := strings.Trim(strings.TrimSpace(m[1]), "*_ ")
		if explanation != "" {
			result.Explanation = explanation
			matched++
		}
	}

	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil && amount >= 0 {
			result.SuggestedAmount = models.RoundMoney(amount)
			matched++
		}
	}

	if result.SuggestedAmount < 0 {
		result.SuggestedAmount = 0
	}
	result.Fallback = matched < 3
	return result
}

// ParseClaimAssessment decodes the first JSON object in text that carries
// a verdict. Decoding stops at the end of that object, so trailing prose
// or further braces are ignored.
func ParseClaimAssessment(text string) (ClaimAssessment, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if assessment, ok := decodeClaimAssessment(text[start:]); ok {
			return assessment, true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ClaimAssessment{}, false
}

func decodeClaimAssessment(raw string) (ClaimAssessment, bool) {
	var payload struct {
		IsValid         *bool    `json:"isValid"`
		ConfidenceScore float64  `json:"confidenceScore"`
		Reasons         []string `json:"reasons"`
	}
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&payload); err != nil || payload.IsValid == nil {
		return ClaimAssessment{}, false
	}
	return ClaimAssessment{
		IsValid:         *payload.IsValid,
		ConfidenceScore: clampConfidence(payload.ConfidenceScore),
		Reasons:         payload.Reasons,
	}, true
}

func normalizeTier(s string) models.RiskTier {
	switch strings.ToLower(s) {
	case "high":
		return models.RiskTierHigh
	case "medium":
		return models.RiskTierMedium
	default:
		return models.RiskTierLow
	}
}
