package domain

import "time"

// RiskRuleConfig defines a CEL rule evaluated against batch metrics.
type RiskRuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression returning bool, int or double.
	Expression string `json:"expression"`

	// Bands map the expression score to a risk level.
	Bands []RuleBand `json:"bands"`

	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to a risk level.
type RuleBand struct {
	LowerLimit *float64  `json:"lower_limit,omitempty"`
	UpperLimit *float64  `json:"upper_limit,omitempty"`
	Level      RiskLevel `json:"level"`
	Reason     string    `json:"reason"`
}

// RuleResult is the output of one rule evaluation.
type RuleResult struct {
	RuleID string    `json:"rule_id"`
	Score  float64   `json:"score"`
	Level  RiskLevel `json:"level"`
	Reason string    `json:"reason"`
	Error  string    `json:"error,omitempty"`
}

// RiskLevel is the warning level of a batch.
type RiskLevel string

const (
	RiskNormal RiskLevel = "normal"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders risk levels; unknown levels rank as normal.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Assessment is the combined verdict of all risk rules over a batch.
type Assessment struct {
	ID          string       `json:"id"`
	RunID       string       `json:"run_id"`
	Level       RiskLevel    `json:"level"`
	Reasons     []string     `json:"reasons,omitempty"`
	RuleResults []RuleResult `json:"rule_results"`
	Timestamp   time.Time    `json:"timestamp"`
}
