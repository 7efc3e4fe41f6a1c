// Package risk combines risk rule results into a single batch assessment.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/rules"
)

// Processor aggregates rule results and produces an assessment.
type Processor struct {
	// AlertLevel is the lowest level that raises an alert.
	AlertLevel domain.RiskLevel
}

// NewProcessor creates a processor that alerts on high risk only.
func NewProcessor() *Processor {
	return &Processor{AlertLevel: domain.RiskHigh}
}

// AssessInput contains everything needed for an assessment.
type AssessInput struct {
	RunID       string
	RuleResults []domain.RuleResult
}

// Process picks the highest level any rule reached. Rules that failed to
// evaluate count as normal but are listed among the reasons.
func (p *Processor) Process(ctx context.Context, input *AssessInput) *domain.Assessment {
	a := &domain.Assessment{
		ID:          uuid.New().String(),
		RunID:       input.RunID,
		Level:       domain.RiskNormal,
		RuleResults: input.RuleResults,
		Timestamp:   time.Now().UTC(),
	}

	for _, r := range input.RuleResults {
		if r.Error != "" {
			a.Reasons = append(a.Reasons, fmt.Sprintf("%s: %s", r.RuleID, r.Error))
			continue
		}
		if r.Level.Rank() > a.Level.Rank() {
			a.Level = r.Level
		}
		if r.Level.Rank() > domain.RiskNormal.Rank() && r.Reason != "" {
			a.Reasons = append(a.Reasons, r.Reason)
		}
	}

	return a
}

// Assess evaluates the engine's rules over the metrics and aggregates them.
func (p *Processor) Assess(ctx context.Context, engine *rules.Engine, runID string, metrics map[string]any) (*domain.Assessment, error) {
	results, err := engine.EvaluateAll(ctx, metrics)
	if err != nil {
		return nil, fmt.Errorf("evaluate risk rules: %w", err)
	}
	return p.Process(ctx, &AssessInput{RunID: runID, RuleResults: results}), nil
}

// ShouldAlert reports whether the assessment reached the alert level.
func (p *Processor) ShouldAlert(a *domain.Assessment) bool {
	return a != nil && a.Level.Rank() >= p.AlertLevel.Rank()
}
