package simulate

import (
	"math"
	"slices"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/sampling"
)

type metric int

const (
	metricCost metric = iota
	metricDuration
	metricDistance
	metricEfficiency
	metricCount
)

// reasonPools holds the reasons for each metric: index 0 is used when the
// event sits in the high tail, index 1 in the low tail.
var reasonPools = [metricCount][2][]string{
	metricCost: {
		{"cost spike above batch norm", "emergency dispatch premium", "unplanned overtime billing"},
		{"cost below expected floor", "possible missing cost entry"},
	},
	metricDuration: {
		{"prolonged handling time", "traffic congestion delay", "extended wait at site"},
		{"suspiciously short handling time"},
	},
	metricDistance: {
		{"route deviation", "detour beyond planned route", "long-haul assignment"},
		{"distance shorter than planned route"},
	},
	metricEfficiency: {
		{"efficiency above plausible range"},
		{"low crew efficiency", "equipment malfunction", "repeated counting discrepancy"},
	},
}

// rankIndex maps a value to its percentile rank within a sorted sample.
type rankIndex []float64

func newRankIndex(values []float64) rankIndex {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted
}

// rank returns the fraction of the sample strictly below v plus half the
// ties, so the median of a sample ranks 0.5.
func (r rankIndex) rank(v float64) float64 {
	if len(r) == 0 {
		return 0.5
	}
	lo, _ := slices.BinarySearch(r, v)
	hi := lo
	for hi < len(r) && r[hi] == v {
		hi++
	}
	return (float64(lo) + float64(hi-lo)/2) / float64(len(r))
}

// assignAnomalyReasons fills AnomalyReason for every flagged event from the
// pool of the metric on which the event is most extreme relative to the
// batch. Distance is only considered for events that travel.
func assignAnomalyReasons(events []domain.BusinessEvent, s *sampling.Sampler) {
	if len(events) == 0 {
		return
	}

	cost := make([]float64, 0, len(events))
	duration := make([]float64, 0, len(events))
	distance := make([]float64, 0, len(events))
	efficiency := make([]float64, 0, len(events))
	for i := range events {
		ev := &events[i]
		cost = append(cost, ev.TotalCost)
		duration = append(duration, ev.DurationMinutes)
		efficiency = append(efficiency, ev.EfficiencyRatio)
		if ev.BusinessType.Travels() {
			distance = append(distance, ev.DistanceKm)
		}
	}
	ranks := [metricCount]rankIndex{
		metricCost:       newRankIndex(cost),
		metricDuration:   newRankIndex(duration),
		metricDistance:   newRankIndex(distance),
		metricEfficiency: newRankIndex(efficiency),
	}

	for i := range events {
		ev := &events[i]
		if !ev.IsAnomaly {
			ev.AnomalyReason = ""
			continue
		}

		values := [metricCount]float64{
			metricCost:       ev.TotalCost,
			metricDuration:   ev.DurationMinutes,
			metricDistance:   ev.DistanceKm,
			metricEfficiency: ev.EfficiencyRatio,
		}

		best, bestRank, bestExtremity := metricCost, 0.5, -1.0
		for m := metricCost; m < metricCount; m++ {
			if m == metricDistance && !ev.BusinessType.Travels() {
				continue
			}
			r := ranks[m].rank(values[m])
			if ext := math.Abs(r - 0.5); ext > bestExtremity {
				best, bestRank, bestExtremity = m, r, ext
			}
		}

		tail := 0
		if bestRank < 0.5 {
			tail = 1
		}
		pool := reasonPools[best][tail]
		ev.AnomalyReason = pool[s.IntN(len(pool))]
	}
}
