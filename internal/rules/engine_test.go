package rules

import (
	"context"
	"testing"

	"github.com/opensource-finance/cashops/internal/domain"
)

func newLoadedEngine(t *testing.T, cfgs []*domain.RiskRuleConfig) *Engine {
	t.Helper()
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(cfgs); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	return engine
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}

	results, err := engine.EvaluateAll(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("expected no results from an empty engine, got %v, %v", results, err)
	}
}

func TestDefaultRulesCompile(t *testing.T) {
	engine := newLoadedEngine(t, DefaultRiskRules())
	if engine.RulesCount() != len(DefaultRiskRules()) {
		t.Errorf("expected %d rules, got %d", len(DefaultRiskRules()), engine.RulesCount())
	}

	loaded := engine.LoadedRules()
	for i := 1; i < len(loaded); i++ {
		if loaded[i-1].ID > loaded[i].ID {
			t.Errorf("loaded rules not ordered: %s before %s", loaded[i-1].ID, loaded[i].ID)
		}
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(4)

	tests := []struct {
		name string
		expr string
	}{
		{"Syntax", "this is not valid CEL !!!"},
		{"UnknownVariable", "crew_count > 3"},
		{"StringResult", "'high'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &domain.RiskRuleConfig{ID: "bad", Expression: tt.expr, Enabled: true}
			if err := engine.ValidateRule(cfg); err == nil {
				t.Error("expected validation error")
			}
			if err := engine.LoadRules([]*domain.RiskRuleConfig{cfg}); err == nil {
				t.Error("expected load error")
			}
		})
	}

	if err := engine.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestDisabledRulesSkipped(t *testing.T) {
	cfgs := DefaultRiskRules()
	cfgs[0].Enabled = false
	engine := newLoadedEngine(t, cfgs)

	if engine.RulesCount() != len(cfgs)-1 {
		t.Errorf("expected %d rules, got %d", len(cfgs)-1, engine.RulesCount())
	}
}

func TestEvaluateDefaultRules(t *testing.T) {
	engine := newLoadedEngine(t, DefaultRiskRules())

	tests := []struct {
		name    string
		metrics map[string]any
		want    map[string]domain.RiskLevel
	}{
		{
			name: "Calm",
			metrics: map[string]any{
				"event_count":    int64(300),
				"emergency_rate": 0.10,
				"high_cost_rate": 0.20,
				"anomaly_rate":   0.10,
				"avg_efficiency": 0.60,
			},
			want: map[string]domain.RiskLevel{
				"emergency-rate":  domain.RiskNormal,
				"high-cost-share": domain.RiskNormal,
				"anomaly-rate":    domain.RiskNormal,
				"low-efficiency":  domain.RiskNormal,
			},
		},
		{
			name: "EmergencyAtThresholdIsNormal",
			metrics: map[string]any{
				"event_count":    int64(300),
				"emergency_rate": 0.15,
				"avg_efficiency": 0.60,
			},
			want: map[string]domain.RiskLevel{"emergency-rate": domain.RiskNormal},
		},
		{
			name: "Stressed",
			metrics: map[string]any{
				"event_count":    int64(300),
				"emergency_rate": 0.20,
				"high_cost_rate": 0.30,
				"anomaly_rate":   0.18,
				"avg_efficiency": 0.45,
			},
			want: map[string]domain.RiskLevel{
				"emergency-rate":  domain.RiskHigh,
				"high-cost-share": domain.RiskMedium,
				"anomaly-rate":    domain.RiskMedium,
				"low-efficiency":  domain.RiskMedium,
			},
		},
		{
			name: "AnomalyBands",
			metrics: map[string]any{
				"event_count":    int64(300),
				"anomaly_rate":   0.25,
				"avg_efficiency": 0.60,
			},
			want: map[string]domain.RiskLevel{"anomaly-rate": domain.RiskHigh},
		},
		{
			name:    "EmptyBatch",
			metrics: map[string]any{},
			want:    map[string]domain.RiskLevel{"low-efficiency": domain.RiskNormal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.EvaluateAll(context.Background(), tt.metrics)
			if err != nil {
				t.Fatalf("EvaluateAll failed: %v", err)
			}
			byID := make(map[string]domain.RuleResult, len(results))
			for _, r := range results {
				if r.Error != "" {
					t.Fatalf("rule %s errored: %s", r.RuleID, r.Error)
				}
				byID[r.RuleID] = r
			}
			for id, level := range tt.want {
				if got := byID[id].Level; got != level {
					t.Errorf("%s: expected %s, got %s (%s)", id, level, got, byID[id].Reason)
				}
			}
		})
	}
}

func TestEvaluateResultsOrdered(t *testing.T) {
	engine := newLoadedEngine(t, DefaultRiskRules())
	results, err := engine.EvaluateAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].RuleID > results[i].RuleID {
			t.Errorf("results not ordered by rule id")
		}
	}
}

func TestMatchBand(t *testing.T) {
	bands := []domain.RuleBand{
		{LowerLimit: ptr(10), Level: domain.RiskHigh, Reason: "high"},
		{LowerLimit: ptr(5), UpperLimit: ptr(10), Level: domain.RiskMedium, Reason: "medium"},
		{UpperLimit: ptr(5), Level: domain.RiskNormal, Reason: "low"},
	}

	tests := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{-1, domain.RiskNormal},
		{4.99, domain.RiskNormal},
		{5, domain.RiskMedium},
		{9.99, domain.RiskMedium},
		{10, domain.RiskHigh},
		{1e12, domain.RiskHigh},
	}
	for _, tt := range tests {
		if got, _ := matchBand(tt.score, bands); got != tt.want {
			t.Errorf("score %v: expected %s, got %s", tt.score, tt.want, got)
		}
	}

	if got, reason := matchBand(3, nil); got != domain.RiskNormal || reason != "no matching band" {
		t.Errorf("expected default band, got %s %q", got, reason)
	}
}
