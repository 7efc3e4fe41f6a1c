// Package aggregate rolls event batches up into reports, daily series and
// short-horizon projections. It only reads the events it is given.
package aggregate

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/cashops/internal/domain"
)

// Efficiency band limits.
const (
	HighEfficiency = 0.7
	LowEfficiency  = 0.5
)

// HighCostPercentile marks the cost above which an event counts as high cost
// for the risk metrics.
const HighCostPercentile = 80

// topDecile is the percentile above which events are listed individually.
const topDecile = 90

// maxListed caps the high-cost events listed in a report.
const maxListed = 20

// Group is a rollup of the events sharing one key.
type Group struct {
	Key           string          `json:"key"`
	Count         int             `json:"count"`
	Share         float64         `json:"share"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	AvgCost       float64         `json:"avg_cost"`
	AvgDuration   float64         `json:"avg_duration_minutes"`
	AvgDistance   float64         `json:"avg_distance_km"`
	AvgEfficiency float64         `json:"avg_efficiency"`
	Anomalies     int             `json:"anomalies"`
}

// Stats summarizes one numeric series.
type Stats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
}

// EfficiencyBands counts events by efficiency band.
type EfficiencyBands struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`

	// CostEfficiency is the mean of total cost over efficiency; events with
	// zero efficiency are left out.
	CostEfficiency float64 `json:"cost_efficiency"`
}

// EventRef identifies a single event in a report.
type EventRef struct {
	ID           string              `json:"id"`
	BusinessType domain.BusinessType `json:"business_type"`
	Region       domain.Region       `json:"region"`
	TotalCost    float64             `json:"total_cost"`
}

// HighCost lists the most expensive events.
type HighCost struct {
	Threshold float64    `json:"threshold"`
	Count     int        `json:"count"`
	Top       []EventRef `json:"top"`
}

// CountingMode summarizes cash counting jobs of one staffing mode.
type CountingMode struct {
	Count        int     `json:"count"`
	AvgLabor     float64 `json:"avg_labor_cost"`
	AvgEquipment float64 `json:"avg_equipment_cost"`
	AvgDuration  float64 `json:"avg_duration_minutes"`
}

// CountingSplit compares large and small counting jobs.
type CountingSplit struct {
	Large CountingMode `json:"large"`
	Small CountingMode `json:"small"`
}

// VaultSummary describes the vault transfer line.
type VaultSummary struct {
	Count          int             `json:"count"`
	AvgVehicleCost float64         `json:"avg_vehicle_cost"`
	AvgDuration    float64         `json:"avg_duration_minutes"`
	Delayed        int             `json:"delayed"`
	Detoured       int             `json:"detoured"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// Report is the full aggregate view of a batch.
type Report struct {
	EventCount    int             `json:"event_count"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AvgCost       float64         `json:"avg_cost"`
	AvgDuration   float64         `json:"avg_duration_minutes"`
	AvgEfficiency float64         `json:"avg_efficiency"`
	Anomalies     int             `json:"anomalies"`
	AnomalyRate   float64         `json:"anomaly_rate"`
	EmergencyRate float64         `json:"emergency_rate"`
	HighCostRate  float64         `json:"high_cost_rate"`

	ByBusinessType []Group `json:"by_business_type"`
	ByRegion       []Group `json:"by_region"`
	ByHour         []Group `json:"by_hour"`
	ByScenario     []Group `json:"by_scenario"`
	AnomalyReasons []Group `json:"anomaly_reasons"`

	CostPerKm  Stats           `json:"cost_per_km"`
	Cost       Stats           `json:"cost"`
	Efficiency EfficiencyBands `json:"efficiency"`
	HighCost   HighCost        `json:"high_cost"`
	Counting   CountingSplit   `json:"counting"`
	Vault      VaultSummary    `json:"vault_transfer"`

	ShiftWeights map[string]float64 `json:"shift_weights"`
}

// Build computes the report for a batch.
func Build(events []domain.BusinessEvent) *Report {
	r := &Report{
		EventCount:   len(events),
		TotalCost:    decimal.Zero,
		TotalAmount:  decimal.Zero,
		ShiftWeights: domain.ShiftWeights(),
		Vault:        VaultSummary{TotalAmount: decimal.Zero},
	}
	if len(events) == 0 {
		return r
	}

	costs := make([]float64, len(events))
	var perKm []float64
	var durSum, effSum, ratioSum float64
	var ratioCount, emergencies int

	for i := range events {
		ev := &events[i]
		costs[i] = ev.TotalCost
		r.TotalCost = r.TotalCost.Add(decimal.NewFromFloat(ev.TotalCost))
		r.TotalAmount = r.TotalAmount.Add(decimal.NewFromFloat(ev.Amount))
		durSum += ev.DurationMinutes
		effSum += ev.EfficiencyRatio

		if ev.IsAnomaly {
			r.Anomalies++
		}
		if ev.Scenario == domain.ScenarioEmergency {
			emergencies++
		}
		if v, ok := ev.CostPerKm(); ok {
			perKm = append(perKm, v)
		}

		switch {
		case ev.EfficiencyRatio > HighEfficiency:
			r.Efficiency.High++
		case ev.EfficiencyRatio <= LowEfficiency:
			r.Efficiency.Low++
		default:
			r.Efficiency.Medium++
		}
		if ev.EfficiencyRatio > 0 {
			ratioSum += ev.TotalCost / ev.EfficiencyRatio
			ratioCount++
		}
	}

	n := float64(len(events))
	r.TotalCost = r.TotalCost.Round(2)
	r.TotalAmount = r.TotalAmount.Round(2)
	r.AvgCost = r.TotalCost.InexactFloat64() / n
	r.AvgDuration = durSum / n
	r.AvgEfficiency = effSum / n
	r.AnomalyRate = float64(r.Anomalies) / n
	r.EmergencyRate = float64(emergencies) / n
	if ratioCount > 0 {
		r.Efficiency.CostEfficiency = ratioSum / float64(ratioCount)
	}

	r.Cost = Summarize(costs)
	r.CostPerKm = Summarize(perKm)

	highCut := Percentile(costs, HighCostPercentile)
	var above int
	for _, c := range costs {
		if c > highCut {
			above++
		}
	}
	r.HighCostRate = float64(above) / n
	r.HighCost = highCost(events, Percentile(costs, topDecile))

	r.ByBusinessType = GroupBy(events, func(ev *domain.BusinessEvent) string { return ev.BusinessType.String() })
	r.ByRegion = GroupBy(events, func(ev *domain.BusinessEvent) string { return string(ev.Region) })
	r.ByHour = GroupBy(events, func(ev *domain.BusinessEvent) string { return fmt.Sprintf("%02d", ev.Timestamp.Hour()) })
	r.ByScenario = GroupBy(events, func(ev *domain.BusinessEvent) string { return ev.Scenario.String() })
	r.AnomalyReasons = GroupBy(events, func(ev *domain.BusinessEvent) string { return ev.AnomalyReason })

	r.Counting = countingSplit(events)
	r.Vault = vaultSummary(events)

	return r
}

// GroupBy rolls events up by the key returned from keyOf. Events with an empty
// key are skipped. Groups are sorted by key.
func GroupBy(events []domain.BusinessEvent, keyOf func(*domain.BusinessEvent) string) []Group {
	type acc struct {
		g                    Group
		dur, dist, eff, cost float64
	}
	byKey := make(map[string]*acc)
	for i := range events {
		ev := &events[i]
		key := keyOf(ev)
		if key == "" {
			continue
		}
		a, ok := byKey[key]
		if !ok {
			a = &acc{g: Group{Key: key, TotalCost: decimal.Zero}}
			byKey[key] = a
		}
		a.g.Count++
		a.g.TotalCost = a.g.TotalCost.Add(decimal.NewFromFloat(ev.TotalCost))
		a.cost += ev.TotalCost
		a.dur += ev.DurationMinutes
		a.dist += ev.DistanceKm
		a.eff += ev.EfficiencyRatio
		if ev.IsAnomaly {
			a.g.Anomalies++
		}
	}

	out := make([]Group, 0, len(byKey))
	for _, a := range byKey {
		c := float64(a.g.Count)
		a.g.TotalCost = a.g.TotalCost.Round(2)
		a.g.Share = c / float64(len(events))
		a.g.AvgCost = a.cost / c
		a.g.AvgDuration = a.dur / c
		a.g.AvgDistance = a.dist / c
		a.g.AvgEfficiency = a.eff / c
		out = append(out, a.g)
	}
	slices.SortFunc(out, func(a, b Group) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func highCost(events []domain.BusinessEvent, threshold float64) HighCost {
	hc := HighCost{Threshold: threshold}
	for i := range events {
		ev := &events[i]
		if ev.TotalCost <= threshold {
			continue
		}
		hc.Count++
		hc.Top = append(hc.Top, EventRef{
			ID:           ev.ID,
			BusinessType: ev.BusinessType,
			Region:       ev.Region,
			TotalCost:    ev.TotalCost,
		})
	}
	slices.SortFunc(hc.Top, func(a, b EventRef) int { return cmp.Compare(b.TotalCost, a.TotalCost) })
	if len(hc.Top) > maxListed {
		hc.Top = hc.Top[:maxListed]
	}
	return hc
}

func countingSplit(events []domain.BusinessEvent) CountingSplit {
	var split CountingSplit
	for i := range events {
		ev := &events[i]
		var m *CountingMode
		switch ev.CountingMode {
		case domain.CountingLarge:
			m = &split.Large
		case domain.CountingSmall:
			m = &split.Small
		default:
			continue
		}
		m.Count++
		m.AvgLabor += ev.LaborCost
		m.AvgEquipment += ev.EquipmentCost
		m.AvgDuration += ev.DurationMinutes
	}
	for _, m := range []*CountingMode{&split.Large, &split.Small} {
		if m.Count == 0 {
			continue
		}
		c := float64(m.Count)
		m.AvgLabor /= c
		m.AvgEquipment /= c
		m.AvgDuration /= c
	}
	return split
}

func vaultSummary(events []domain.BusinessEvent) VaultSummary {
	vs := VaultSummary{TotalAmount: decimal.Zero}
	for i := range events {
		ev := &events[i]
		if ev.BusinessType != domain.VaultTransfer {
			continue
		}
		vs.Count++
		vs.AvgVehicleCost += ev.VehicleCost
		vs.AvgDuration += ev.DurationMinutes
		vs.TotalAmount = vs.TotalAmount.Add(decimal.NewFromFloat(ev.Amount))
		if ev.Detail.OvertimeCost > 0 {
			vs.Delayed++
		}
		if ev.OverageCost > 0 {
			vs.Detoured++
		}
	}
	if vs.Count > 0 {
		vs.AvgVehicleCost /= float64(vs.Count)
		vs.AvgDuration /= float64(vs.Count)
	}
	vs.TotalAmount = vs.TotalAmount.Round(2)
	return vs
}

// Summarize computes Stats without modifying values.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return Stats{
		Count: len(sorted),
		Mean:  sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentileSorted(sorted, 50),
		P90:   percentileSorted(sorted, 90),
	}
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Metrics exposes the report figures the risk rules evaluate.
func (r *Report) Metrics() map[string]any {
	return map[string]any{
		"event_count":    int64(r.EventCount),
		"total_cost":     r.TotalCost.InexactFloat64(),
		"avg_cost":       r.AvgCost,
		"avg_duration":   r.AvgDuration,
		"avg_efficiency": r.AvgEfficiency,
		"anomaly_rate":   r.AnomalyRate,
		"emergency_rate": r.EmergencyRate,
		"high_cost_rate": r.HighCostRate,
	}
}
