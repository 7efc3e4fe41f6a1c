package domain

import (
	"fmt"
	"strings"
)

// Scenario is the market condition drawn for an event.
type Scenario uint8

const (
	ScenarioNormal Scenario = iota + 1
	ScenarioHighDemand
	ScenarioEmergency
	ScenarioHoliday
)

// AllScenarios returns the scenarios in canonical order.
func AllScenarios() []Scenario {
	return []Scenario{ScenarioNormal, ScenarioHighDemand, ScenarioEmergency, ScenarioHoliday}
}

// Multiplier is the cost scaling applied under the scenario.
func (s Scenario) Multiplier() float64 {
	switch s {
	case ScenarioNormal:
		return 1.0
	case ScenarioHighDemand:
		return 1.3
	case ScenarioEmergency:
		return 1.8
	case ScenarioHoliday:
		return 1.5
	default:
		panic(fmt.Sprintf("domain: unknown scenario %d", uint8(s)))
	}
}

func (s Scenario) String() string {
	switch s {
	case ScenarioNormal:
		return "normal"
	case ScenarioHighDemand:
		return "high_demand"
	case ScenarioEmergency:
		return "emergency"
	case ScenarioHoliday:
		return "holiday"
	default:
		return fmt.Sprintf("scenario(%d)", uint8(s))
	}
}

// ParseScenario parses a scenario wire name.
func ParseScenario(s string) (Scenario, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, sc := range AllScenarios() {
		if sc.String() == norm {
			return sc, nil
		}
	}
	return 0, fmt.Errorf("unknown scenario %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scenario) MarshalText() ([]byte, error) {
	if s < ScenarioNormal || s > ScenarioHoliday {
		return nil, fmt.Errorf("cannot marshal invalid scenario %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scenario) UnmarshalText(text []byte) error {
	parsed, err := ParseScenario(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TimeWeights is the fixed set of shift loading multipliers.
var TimeWeights = [4]float64{1.0, 1.1, 1.3, 1.6}

// ShiftWeights names the shift each time weight corresponds to.
func ShiftWeights() map[string]float64 {
	return map[string]float64{
		"early (06-14)":  1.0,
		"middle (14-22)": 1.1,
		"night (22-06)":  1.3,
		"holiday":        1.6,
	}
}
