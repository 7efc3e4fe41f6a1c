package costing

import (
	"fmt"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/geo"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// Price fills the distance, duration and cost components of ev from its
// BusinessType, Region, DistanceKm and Amount. Fields that do not apply to
// the type are zeroed.
//
// For route-based types a zero DistanceKm means the depot distance of the
// region. A trafficFactor of zero draws one from TrafficBand. Vault transfers
// are always moved to the depot region and get the transfer amount when ev
// has none. Multipliers and TotalCost are left to the caller.
func (c *Calculator) Price(ev *domain.BusinessEvent, trafficFactor float64, s *sampling.Sampler) {
	ev.VehicleCost, ev.LaborCost, ev.EquipmentCost, ev.OverageCost = 0, 0, 0, 0
	ev.Detail = domain.CostDetail{}
	ev.CountingMode, ev.StaffCount, ev.HasMachine = domain.CountingNone, 0, false

	switch ev.BusinessType {
	case domain.VaultTransport, domain.OnsiteCollection:
		if ev.DistanceKm <= 0 {
			ev.DistanceKm = geo.DepotDistance(ev.Region)
		}
		if trafficFactor <= 0 {
			trafficFactor = TrafficBand.Draw(s)
		}
		ev.DurationMinutes = EstimateDuration(ev.DistanceKm, ev.BusinessType, trafficFactor, s)

		route := c.RouteBasedCost(ev.DistanceKm, ev.DurationMinutes/60, ev.Region, ev.BusinessType)
		ev.VehicleCost = route.VehicleCost()
		ev.OverageCost = route.Detail.OverKmCost
		ev.LaborCost = c.rates.LaborBand(ev.BusinessType).Draw(s)
		ev.EquipmentCost = ev.DistanceKm * c.rates.EquipmentPerKm
		ev.Detail = route.Detail

	case domain.VaultTransfer:
		transfer := c.VaultTransfer(s)
		ev.Region = domain.DepotRegion
		ev.DistanceKm = transfer.DistanceKm
		ev.DurationMinutes = transfer.DurationMinutes
		ev.VehicleCost = transfer.VehicleCost
		ev.OverageCost = transfer.OverageCost
		ev.Detail = transfer.Detail
		if ev.Amount <= 0 {
			ev.Amount = transfer.Amount
		}

	case domain.CashCounting:
		counting := c.CashCounting(ev.Amount, s)
		ev.DistanceKm = 0
		ev.DurationMinutes = counting.DurationMinutes
		ev.LaborCost = counting.LaborCost
		ev.EquipmentCost = counting.EquipmentCost
		ev.CountingMode = counting.Mode
		ev.StaffCount = counting.StaffCount
		ev.HasMachine = counting.HasMachine
		ev.Detail = domain.CostDetail{AreaTier: domain.TierNone}

	default:
		panic(fmt.Sprintf("costing: unknown business type %d", uint8(ev.BusinessType)))
	}
}
