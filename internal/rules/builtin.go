package rules

import "github.com/opensource-finance/cashops/internal/domain"

func ptr(v float64) *float64 { return &v }

// triggered maps a boolean expression onto a single level.
func triggered(level domain.RiskLevel, reason string) []domain.RuleBand {
	return []domain.RuleBand{
		{LowerLimit: ptr(1), Level: level, Reason: reason},
		{UpperLimit: ptr(1), Level: domain.RiskNormal, Reason: "within limits"},
	}
}

// DefaultRiskRules returns the warning rules shipped with the service.
func DefaultRiskRules() []*domain.RiskRuleConfig {
	return []*domain.RiskRuleConfig{
		{
			ID:          "emergency-rate",
			Name:        "Emergency share",
			Description: "More than 15% of events ran under emergency conditions",
			Expression:  "emergency_rate > 0.15",
			Bands:       triggered(domain.RiskHigh, "emergency share above 15%"),
			Enabled:     true,
		},
		{
			ID:          "high-cost-share",
			Name:        "High cost share",
			Description: "More than 25% of events cost above the batch 80th percentile",
			Expression:  "high_cost_rate > 0.25",
			Bands:       triggered(domain.RiskMedium, "high-cost events above 25%"),
			Enabled:     true,
		},
		{
			ID:          "anomaly-rate",
			Name:        "Anomaly rate",
			Description: "Anomaly share well above the expected 10%",
			Expression:  "anomaly_rate",
			Bands: []domain.RuleBand{
				{LowerLimit: ptr(0.25), Level: domain.RiskHigh, Reason: "anomaly rate above 25%"},
				{LowerLimit: ptr(0.15), UpperLimit: ptr(0.25), Level: domain.RiskMedium, Reason: "anomaly rate above 15%"},
				{UpperLimit: ptr(0.15), Level: domain.RiskNormal, Reason: "anomaly rate normal"},
			},
			Enabled: true,
		},
		{
			ID:          "low-efficiency",
			Name:        "Low efficiency",
			Description: "Average crew efficiency at or below the low band",
			Expression:  "event_count > 0 && avg_efficiency <= 0.5",
			Bands:       triggered(domain.RiskMedium, "average efficiency at or below 0.5"),
			Enabled:     true,
		},
	}
}
