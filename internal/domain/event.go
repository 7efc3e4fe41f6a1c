package domain

import (
	"context"
	"fmt"
	"time"
)

// BusinessEvent is one simulated (or ingested) unit of cash-logistics work.
// Fields that do not apply to the event's business type stay zero.
type BusinessEvent struct {
	ID           string       `json:"id"`
	Seq          int          `json:"seq"`
	BusinessType BusinessType `json:"business_type"`
	Region       Region       `json:"region"`
	Timestamp    time.Time    `json:"timestamp"`
	Amount       float64      `json:"amount"`

	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`

	// Cost components. OverageCost is the over-distance penalty and is not
	// contained in VehicleCost.
	VehicleCost   float64 `json:"vehicle_cost"`
	LaborCost     float64 `json:"labor_cost"`
	EquipmentCost float64 `json:"equipment_cost"`
	OverageCost   float64 `json:"overage_cost"`

	// Audit breakdown of the vehicle and overage components.
	Detail CostDetail `json:"detail"`

	// Cash counting tags.
	CountingMode CountingMode `json:"counting_mode,omitempty"`
	StaffCount   int          `json:"staff_count"`
	HasMachine   bool         `json:"has_machine"`

	Scenario           Scenario `json:"scenario"`
	ScenarioMultiplier float64  `json:"scenario_multiplier"`
	TimeWeight         float64  `json:"time_weight"`
	TotalCost          float64  `json:"total_cost"`

	IsAnomaly       bool    `json:"is_anomaly"`
	AnomalyReason   string  `json:"anomaly_reason,omitempty"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
}

// CostDetail decomposes the vehicle and overage parts of an event's cost.
type CostDetail struct {
	BasicCost          float64  `json:"basic_cost"`
	OvertimeCost       float64  `json:"overtime_cost"`
	OverKmCost         float64  `json:"over_km_cost"`
	OverKm             float64  `json:"over_km"`
	StandardDistanceKm float64  `json:"standard_distance_km"`
	StandardHours      float64  `json:"standard_hours"`
	AreaTier           AreaTier `json:"area_tier"`
}

// BaseCost is the sum of the cost components before multipliers.
func (e *BusinessEvent) BaseCost() float64 {
	return e.VehicleCost + e.LaborCost + e.EquipmentCost + e.OverageCost
}

// ComputeTotal sets TotalCost from the components and multipliers.
// It is the only place the total is derived.
func (e *BusinessEvent) ComputeTotal() {
	e.TotalCost = e.BaseCost() * e.ScenarioMultiplier * e.TimeWeight
}

// CostPerKm returns total cost per kilometer. ok is false for events without
// a travel leg, which must be left out of per-km statistics.
func (e *BusinessEvent) CostPerKm() (perKm float64, ok bool) {
	if !e.BusinessType.Travels() || e.DistanceKm <= 0 {
		return 0, false
	}
	return e.TotalCost / e.DistanceKm, true
}

// EventID formats the sequential identifier.
func EventID(seq int) string {
	return fmt.Sprintf("TXN%06d", seq)
}

// Batch is the ordered output of one generation run.
type Batch struct {
	RunID       string          `json:"run_id"`
	Seed        uint64          `json:"seed"`
	GeneratedAt time.Time       `json:"generated_at"`
	Events      []BusinessEvent `json:"events"`
}

// Len returns the number of events.
func (b *Batch) Len() int {
	return len(b.Events)
}

// EventSource produces business events matching the BusinessEvent contract.
// The simulator is one implementation; an authoritative data feed is another.
type EventSource interface {
	Events(ctx context.Context, n int) (*Batch, error)
}
