package risk

import (
	"context"
	"testing"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/rules"
)

func TestProcessor(t *testing.T) {
	proc := NewProcessor()
	ctx := context.Background()

	t.Run("AllNormal", func(t *testing.T) {
		a := proc.Process(ctx, &AssessInput{
			RunID: "run-001",
			RuleResults: []domain.RuleResult{
				{RuleID: "rule-1", Level: domain.RiskNormal, Reason: "within limits"},
				{RuleID: "rule-2", Level: domain.RiskNormal, Reason: "within limits"},
			},
		})

		if a.Level != domain.RiskNormal {
			t.Errorf("expected normal, got %s", a.Level)
		}
		if len(a.Reasons) != 0 {
			t.Errorf("expected no reasons, got %v", a.Reasons)
		}
		if a.RunID != "run-001" || a.ID == "" {
			t.Errorf("expected run id and assessment id, got %+v", a)
		}
		if proc.ShouldAlert(a) {
			t.Error("normal assessment should not alert")
		}
	})

	t.Run("HighestLevelWins", func(t *testing.T) {
		a := proc.Process(ctx, &AssessInput{
			RunID: "run-002",
			RuleResults: []domain.RuleResult{
				{RuleID: "rule-1", Level: domain.RiskMedium, Reason: "high-cost events above 25%"},
				{RuleID: "rule-2", Level: domain.RiskHigh, Reason: "emergency share above 15%"},
				{RuleID: "rule-3", Level: domain.RiskNormal, Reason: "within limits"},
			},
		})

		if a.Level != domain.RiskHigh {
			t.Errorf("expected high, got %s", a.Level)
		}
		if len(a.Reasons) != 2 {
			t.Errorf("expected 2 reasons, got %v", a.Reasons)
		}
		if !proc.ShouldAlert(a) {
			t.Error("high assessment should alert")
		}
	})

	t.Run("MediumDoesNotAlertByDefault", func(t *testing.T) {
		a := proc.Process(ctx, &AssessInput{
			RuleResults: []domain.RuleResult{{RuleID: "rule-1", Level: domain.RiskMedium, Reason: "x"}},
		})
		if proc.ShouldAlert(a) {
			t.Error("medium should not alert at the default alert level")
		}

		strict := &Processor{AlertLevel: domain.RiskMedium}
		if !strict.ShouldAlert(a) {
			t.Error("medium should alert when the alert level is medium")
		}
	})

	t.Run("ErroredRule", func(t *testing.T) {
		a := proc.Process(ctx, &AssessInput{
			RuleResults: []domain.RuleResult{{RuleID: "rule-1", Level: domain.RiskHigh, Error: "no such overload"}},
		})
		if a.Level != domain.RiskNormal {
			t.Errorf("errored rule should not raise the level, got %s", a.Level)
		}
		if len(a.Reasons) != 1 {
			t.Errorf("expected the error among the reasons, got %v", a.Reasons)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		a := proc.Process(ctx, &AssessInput{})
		if a.Level != domain.RiskNormal {
			t.Errorf("expected normal, got %s", a.Level)
		}
	})

	if proc.ShouldAlert(nil) {
		t.Error("nil assessment should not alert")
	}
}

func TestAssess(t *testing.T) {
	engine, err := rules.NewEngine(2)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.LoadRules(rules.DefaultRiskRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	a, err := NewProcessor().Assess(context.Background(), engine, "run-9", map[string]any{
		"event_count":    int64(100),
		"emergency_rate": 0.30,
		"avg_efficiency": 0.6,
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if a.Level != domain.RiskHigh {
		t.Errorf("expected high, got %s", a.Level)
	}
	if len(a.RuleResults) != len(rules.DefaultRiskRules()) {
		t.Errorf("expected all rule results, got %d", len(a.RuleResults))
	}
}
