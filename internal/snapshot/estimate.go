package snapshot

import (
	"time"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// EstimateInput describes one job to price outside a batch.
type EstimateInput struct {
	BusinessType  domain.BusinessType
	Region        domain.Region
	DistanceKm    float64
	Amount        float64
	TrafficFactor float64
	Scenario      domain.Scenario
	TimeWeight    float64

	// Seed fixes the random components; 0 draws one from the clock.
	Seed uint64
}

// Estimate prices a single job with the generator's calculator. Unset
// scenario and time weight mean normal conditions on the early shift.
func (s *Service) Estimate(in EstimateInput) *domain.BusinessEvent {
	seed := in.Seed
	if seed == 0 {
		seed = uint64(s.clock().UnixNano())
	}
	smp := sampling.New(seed)

	ev := &domain.BusinessEvent{
		BusinessType: in.BusinessType,
		Region:       in.Region,
		Timestamp:    s.clock().UTC().Truncate(time.Second),
		DistanceKm:   in.DistanceKm,
		Amount:       in.Amount,
	}
	s.gen.Calculator().Price(ev, in.TrafficFactor, smp)

	ev.Scenario = in.Scenario
	if ev.Scenario == 0 {
		ev.Scenario = domain.ScenarioNormal
	}
	ev.ScenarioMultiplier = ev.Scenario.Multiplier()
	ev.TimeWeight = in.TimeWeight
	if ev.TimeWeight <= 0 {
		ev.TimeWeight = domain.TimeWeights[0]
	}
	ev.ComputeTotal()
	return ev
}
