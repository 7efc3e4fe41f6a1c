// Package rules provides the CEL-Go based risk rule engine. Rules are
// evaluated against the aggregate metrics of a batch, not single events.
package rules

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/cashops/internal/domain"
)

// Engine is the CEL-based rule evaluation engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRuleConfig
	Program cel.Program
}

// Metric variables available to rule expressions.
var metricVars = []cel.EnvOption{
	cel.Variable("event_count", cel.IntType),
	cel.Variable("total_cost", cel.DoubleType),
	cel.Variable("avg_cost", cel.DoubleType),
	cel.Variable("avg_duration", cel.DoubleType),
	cel.Variable("avg_efficiency", cel.DoubleType),
	cel.Variable("anomaly_rate", cel.DoubleType),
	cel.Variable("emergency_rate", cel.DoubleType),
	cel.Variable("high_cost_rate", cel.DoubleType),
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(metricVars...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RiskRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRules compiles the enabled rules and replaces the loaded set. On error
// the previous set stays in place.
func (e *Engine) LoadRules(configs []*domain.RiskRuleConfig) error {
	newRules := make(map[string]*CompiledRule, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = newRules
	e.mu.Unlock()
	return nil
}

// EvaluateAll evaluates all loaded rules in parallel. Results are ordered by
// rule ID. Missing metrics default to zero.
func (e *Engine) EvaluateAll(ctx context.Context, metrics map[string]any) ([]domain.RuleResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	slices.SortFunc(rules, func(a, b *CompiledRule) int { return cmp.Compare(a.Config.ID, b.Config.ID) })

	activation := map[string]any{
		"event_count":    int64(0),
		"total_cost":     0.0,
		"avg_cost":       0.0,
		"avg_duration":   0.0,
		"avg_efficiency": 0.0,
		"anomaly_rate":   0.0,
		"emergency_rate": 0.0,
		"high_cost_rate": 0.0,
	}
	for k, v := range metrics {
		activation[k] = v
	}

	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleResult {
	result := domain.RuleResult{
		RuleID: rule.Config.ID,
		Level:  domain.RiskNormal,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Error = err.Error()
		result.Reason = "evaluation error"
		return result
	}

	result.Score = toScore(out)
	result.Level, result.Reason = matchBand(result.Score, rule.Config.Bands)
	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the first band containing score. Lower limits are
// inclusive, upper limits exclusive; a nil limit is unbounded.
func matchBand(score float64, bands []domain.RuleBand) (domain.RiskLevel, string) {
	for _, band := range bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band.Level, band.Reason
	}
	return domain.RiskNormal, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) LoadedRules() []*domain.RiskRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RiskRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	slices.SortFunc(rules, func(a, b *domain.RiskRuleConfig) int { return cmp.Compare(a.ID, b.ID) })
	return rules
}

func (e *Engine) compileRule(cfg *domain.RiskRuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
