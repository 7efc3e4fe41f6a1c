package costing

import (
	"fmt"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/geo"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// LargeCountingThreshold splits cash counting jobs into machine-assisted
// large batches (amount at or above) and manual small batches.
const LargeCountingThreshold = 1_000_000.0

// Cash counting staffing.
const (
	largeStaff          = 2
	largeMonthlyWage    = 15000.0
	machineCapital      = 2_000_000.0
	machineMonths       = 30 * 12
	countingDaysInMonth = 22
	countingHoursPerDay = 8

	smallStaff = 8
)

var (
	largeCountingHours = Band{Lo: 2, Hi: 4}
	smallCountingHours = Band{Lo: 1, Hi: 3}
	smallMonthlyWage   = Band{Lo: 7000, Hi: 8000}
)

// Vault transfer line.
var (
	transferBaseMinutes  = Band{Lo: 35, Hi: 50}
	transferDelayMinutes = Band{Lo: 10, Hi: 25}
	transferDetourKm     = Band{Lo: 0.5, Hi: 3}
	transferAmount       = Band{Lo: 5_000_000, Hi: 20_000_000}
	transferDelayChance  = 0.15
	transferDetourChance = 0.05
)

// CountingResult is the cost of one cash counting job.
type CountingResult struct {
	Mode            domain.CountingMode `json:"counting_mode"`
	StaffCount      int                 `json:"staff_count"`
	HasMachine      bool                `json:"has_machine"`
	LaborCost       float64             `json:"labor_cost"`
	EquipmentCost   float64             `json:"equipment_cost"`
	TotalCost       float64             `json:"total_cost"`
	DurationMinutes float64             `json:"duration_minutes"`
}

// RouteResult is the vehicle cost of a vault transport or onsite collection
// trip. Total includes the over-km charge; Detail breaks it down.
type RouteResult struct {
	Total  float64           `json:"total"`
	Detail domain.CostDetail `json:"detail"`
}

// VehicleCost is the time-based part of the trip cost.
func (r RouteResult) VehicleCost() float64 {
	return r.Detail.BasicCost + r.Detail.OvertimeCost
}

// TransferResult is the cost of one run on the vault transfer line.
type TransferResult struct {
	VehicleCost     float64           `json:"vehicle_cost"`
	OverageCost     float64           `json:"overage_cost"`
	DurationMinutes float64           `json:"duration_minutes"`
	DistanceKm      float64           `json:"distance_km"`
	Amount          float64           `json:"amount"`
	Detail          domain.CostDetail `json:"detail"`
}

// Calculator prices events against a fixed set of rates.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a calculator for the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rates returns the calculator's tariff.
func (c *Calculator) Rates() Rates {
	return c.rates
}

// CashCounting prices a counting job. The staffing mode is derived from the
// amount alone.
func (c *Calculator) CashCounting(amount float64, s *sampling.Sampler) CountingResult {
	if amount >= LargeCountingThreshold {
		monthly := largeStaff*largeMonthlyWage + machineCapital/machineMonths
		hourly := monthly / (countingDaysInMonth * countingHoursPerDay)
		hours := largeCountingHours.Draw(s)

		labor := largeStaff * largeMonthlyWage / (countingDaysInMonth * countingHoursPerDay) * hours
		equipment := machineCapital / machineMonths / (countingDaysInMonth * countingHoursPerDay) * hours
		return CountingResult{
			Mode:            domain.CountingLarge,
			StaffCount:      largeStaff,
			HasMachine:      true,
			LaborCost:       labor,
			EquipmentCost:   equipment,
			TotalCost:       hourly * hours,
			DurationMinutes: hours * 60,
		}
	}

	monthly := smallStaff * smallMonthlyWage.Draw(s)
	hourly := monthly / (countingDaysInMonth * countingHoursPerDay)
	hours := smallCountingHours.Draw(s)
	labor := hourly * hours
	return CountingResult{
		Mode:            domain.CountingSmall,
		StaffCount:      smallStaff,
		HasMachine:      false,
		LaborCost:       labor,
		TotalCost:       labor,
		DurationMinutes: hours * 60,
	}
}

// RouteBasedCost prices the vehicle side of a vault transport or onsite
// collection trip. It is deterministic given its inputs.
func (c *Calculator) RouteBasedCost(distanceKm, durationHours float64, region domain.Region, bt domain.BusinessType) RouteResult {
	if !bt.RouteBased() {
		panic(fmt.Sprintf("costing: %s is not route based", bt))
	}

	tier := geo.RegionToTier(region)
	standardKm := geo.StandardDistance(tier, bt)
	standardHours := c.rates.StandardHours(distanceKm)

	basic := durationHours * c.rates.HourlyVehicleRate()
	overtime := 0.0
	if durationHours > standardHours {
		overtime = (durationHours - standardHours) * c.rates.OvertimeHourly
	}
	overKm, overKmCost := c.rates.Overage(distanceKm, standardKm, bt)

	return RouteResult{
		Total: basic + overtime + overKmCost,
		Detail: domain.CostDetail{
			BasicCost:          basic,
			OvertimeCost:       overtime,
			OverKmCost:         overKmCost,
			OverKm:             overKm,
			StandardDistanceKm: standardKm,
			StandardHours:      standardHours,
			AreaTier:           tier,
		},
	}
}

// VaultTransfer prices one run of the dedicated depot line. The line length
// is always reported as geo.VaultTransferDistanceKm; a detour only shows up
// as an over-km charge.
func (c *Calculator) VaultTransfer(s *sampling.Sampler) TransferResult {
	baseMinutes := transferBaseMinutes.Draw(s)
	delayMinutes := 0.0
	if s.Chance(transferDelayChance) {
		delayMinutes = transferDelayMinutes.Draw(s)
	}
	detourKm := 0.0
	if s.Chance(transferDetourChance) {
		detourKm = transferDetourKm.Draw(s)
	}

	basic := baseMinutes / 60 * c.rates.HourlyVehicleRate()
	overtime := delayMinutes / 60 * c.rates.OvertimeHourly
	overKm, overKmCost := c.rates.Overage(geo.VaultTransferDistanceKm+detourKm, geo.VaultTransferDistanceKm, domain.VaultTransfer)

	return TransferResult{
		VehicleCost:     basic + overtime,
		OverageCost:     overKmCost,
		DurationMinutes: baseMinutes + delayMinutes,
		DistanceKm:      geo.VaultTransferDistanceKm,
		Amount:          transferAmount.Draw(s),
		Detail: domain.CostDetail{
			BasicCost:          basic,
			OvertimeCost:       overtime,
			OverKmCost:         overKmCost,
			OverKm:             overKm,
			StandardDistanceKm: geo.VaultTransferDistanceKm,
			StandardHours:      baseMinutes / 60,
			AreaTier:           domain.TierDedicated,
		},
	}
}
