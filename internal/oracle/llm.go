// internal/oracle/llm.go
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/javajoker/creatorshield-backend/internal/config"
)

const premiumSystemPrompt = `You are an underwriting assistant for income-protection insurance sold to online content creators.
Assess the creator's risk of losing platform income and suggest a monthly premium.
Answer with exactly these lines:
Risk Level: Low|Medium|High
Explanation: <one sentence>
Final Premium: <amount in the creator's currency>`

const claimSystemPrompt = `You review income-loss claims from online content creators.
Reply with a single JSON object: {"isValid": bool, "confidenceScore": number 0-100, "reasons": [string]}.`

// LLMOracle adapts a text generator into a RiskOracle. All prompt building,
// parsing and fallback logic lives here.
type LLMOracle struct {
	generator      TextGenerator
	limiter        *rate.Limiter
	timeout        time.Duration
	fallbackAmount float64
	heuristic      *HeuristicClaimAssessor
}

func NewLLMOracle(generator TextGenerator, timeout time.Duration, callsPerSecond float64, fallbackAmount float64) *LLMOracle {
	limit := rate.Inf
	if callsPerSecond > 0 {
		limit = rate.Limit(callsPerSecond)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMOracle{
		generator:      generator,
		limiter:        rate.NewLimiter(limit, 1),
		timeout:        timeout,
		fallbackAmount: fallbackAmount,
		heuristic:      &HeuristicClaimAssessor{},
	}
}

func (o *LLMOracle) AssessPremium(ctx context.Context, input PremiumInput) RiskAssessment {
	text, err := o.generate(ctx, premiumSystemPrompt, buildPremiumPrompt(input))
	if err != nil {
		logrus.WithError(err).Warn("Premium risk assessment fell back to defaults")
		return FallbackAssessment(o.fallbackAmount)
	}

	assessment := ParsePremiumAssessment(text, o.fallbackAmount)
	if assessment.Fallback {
		logrus.WithField("reply", truncate(text, 200)).Warn("Premium risk assessment partially parsed")
	}
	return assessment
}

func (o *LLMOracle) AssessClaim(ctx context.Context, input ClaimInput) ClaimAssessment {
	text, err := o.generate(ctx, claimSystemPrompt, buildClaimPrompt(input))
	if err != nil {
		logrus.WithError(err).Warn("Claim assessment fell back to heuristic")
		return o.heuristic.AssessClaim(ctx, input)
	}

	assessment, ok := ParseClaimAssessment(text)
	if !ok {
		logrus.WithField("reply", truncate(text, 200)).Warn("Claim assessment reply unparsable, using heuristic")
		return o.heuristic.AssessClaim(ctx, input)
	}
	return assessment
}

func (o *LLMOracle) generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	text, err := o.generator.Generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrOracleUnavailable)
	}
	return text, nil
}

func buildPremiumPrompt(input PremiumInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monthly earnings: %.2f %s\n", input.MonthlyEarnings, input.Currency)
	fmt.Fprintf(&b, "Total infractions: %d\n", input.TotalInfractions)
	b.WriteString("Platforms:\n")
	for _, p := range input.Platforms {
		fmt.Fprintf(&b, "- %s: audience %d, content %s, infractions %d\n",
			p.Name, p.AudienceSize, valueOrDefault(p.ContentType, "general"), p.InfractionCount)
	}
	return b.String()
}

func buildClaimPrompt(input ClaimInput) string {
	payload, _ := json.Marshal(input)
	return "Claim details:\n" + string(payload)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// New builds the oracle selected by configuration.
func New(cfg config.OracleConfig, fallbackAmount float64) RiskOracle {
	switch cfg.Provider {
	case "openai":
		gen := NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Retries)
		return NewLLMOracle(gen, cfg.Timeout, cfg.RateLimit, fallbackAmount)
	case "claude":
		gen := NewClaudeGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Retries)
		return NewLLMOracle(gen, cfg.Timeout, cfg.RateLimit, fallbackAmount)
	default:
		return NewStubOracle(fallbackAmount)
	}
}
