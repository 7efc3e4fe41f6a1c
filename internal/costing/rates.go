// Package costing turns the raw attributes of a business event into its cost
// breakdown and elapsed time. There is one calculator per business type,
// selected by a closed switch.
package costing

import (
	"log/slog"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// Band is a closed-open uniform range.
type Band struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Draw samples uniformly from the band.
func (b Band) Draw(s *sampling.Sampler) float64 {
	return s.Uniform(b.Lo, b.Hi)
}

// Rates carries every tariff the calculators charge. Replace DefaultRates with
// authoritative figures to price against a real contract.
type Rates struct {
	// Vehicle time is billed at MonthlyVehicleBudget / (WorkingDays × HoursPerDay).
	MonthlyVehicleBudget float64 `json:"monthly_vehicle_budget"`
	WorkingDays          float64 `json:"working_days"`
	HoursPerDay          float64 `json:"hours_per_day"`

	OvertimeHourly float64 `json:"overtime_hourly"`

	// Standard time in hours is StandardHoursPerKm × distance + StandardHoursBase.
	StandardHoursPerKm float64 `json:"standard_hours_per_km"`
	StandardHoursBase  float64 `json:"standard_hours_base"`

	OverKm        map[domain.BusinessType]float64 `json:"over_km"`
	DefaultOverKm float64                         `json:"default_over_km"`

	EquipmentPerKm float64 `json:"equipment_per_km"`

	Labor map[domain.BusinessType]Band `json:"labor"`
}

// DefaultRates returns the reference tariff.
func DefaultRates() Rates {
	return Rates{
		MonthlyVehicleBudget: 75000,
		WorkingDays:          30,
		HoursPerDay:          8,
		OvertimeHourly:       300,
		StandardHoursPerKm:   0.08,
		StandardHoursBase:    0.5,
		OverKm: map[domain.BusinessType]float64{
			domain.VaultTransport:   12,
			domain.OnsiteCollection: 15,
			domain.VaultTransfer:    12,
			domain.CashCounting:     0,
		},
		DefaultOverKm:  12,
		EquipmentPerKm: 2.5,
		Labor: map[domain.BusinessType]Band{
			domain.VaultTransport:   {Lo: 150, Hi: 250},
			domain.OnsiteCollection: {Lo: 200, Hi: 350},
		},
	}
}

// HourlyVehicleRate is the billed cost of one vehicle hour.
func (r Rates) HourlyVehicleRate() float64 {
	return r.MonthlyVehicleBudget / r.WorkingDays / r.HoursPerDay
}

// StandardHours is the overtime-free time allowance for a trip.
func (r Rates) StandardHours(distanceKm float64) float64 {
	return r.StandardHoursPerKm*distanceKm + r.StandardHoursBase
}

// OverKmRate returns the per-km overage rate. Cash counting never pays one;
// a type missing from the table gets DefaultOverKm.
func (r Rates) OverKmRate(bt domain.BusinessType) float64 {
	if !bt.Travels() {
		return 0
	}
	if rate, ok := r.OverKm[bt]; ok {
		return rate
	}
	slog.Warn("no over-km rate for business type, using default",
		"business_type", bt.String(),
		"default_rate", r.DefaultOverKm,
	)
	return r.DefaultOverKm
}

// Overage charges the distance driven beyond the allowance.
func (r Rates) Overage(actualKm, standardKm float64, bt domain.BusinessType) (overKm, cost float64) {
	if !bt.Travels() {
		return 0, 0
	}
	overKm = actualKm - standardKm
	if overKm <= 0 {
		return 0, 0
	}
	return overKm, overKm * r.OverKmRate(bt)
}

// LaborBand returns the crew cost range for a route-based type.
func (r Rates) LaborBand(bt domain.BusinessType) Band {
	if band, ok := r.Labor[bt]; ok {
		return band
	}
	def := DefaultRates().Labor[domain.VaultTransport]
	slog.Warn("no labor band for business type, using default",
		"business_type", bt.String(),
		"lo", def.Lo,
		"hi", def.Hi,
	)
	return def
}
