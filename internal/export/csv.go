// Package export writes event batches as CSV.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/cashops/internal/domain"
)

// Header is the column order of WriteCSV.
var Header = []string{
	"id", "seq", "business_type", "region", "timestamp", "amount",
	"distance_km", "duration_minutes",
	"vehicle_cost", "labor_cost", "equipment_cost", "overage_cost",
	"area_tier", "over_km", "counting_mode", "staff_count", "has_machine",
	"scenario", "scenario_multiplier", "time_weight", "total_cost",
	"is_anomaly", "anomaly_reason", "efficiency_ratio",
}

// money renders a currency amount with exactly two decimals.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func num(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).String()
}

// WriteCSV writes a header row and one row per event.
func WriteCSV(w io.Writer, events []domain.BusinessEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	row := make([]string, len(Header))
	for i := range events {
		ev := &events[i]
		row = append(row[:0],
			ev.ID,
			strconv.Itoa(ev.Seq),
			ev.BusinessType.String(),
			string(ev.Region),
			ev.Timestamp.Format(time.RFC3339),
			money(ev.Amount),
			num(ev.DistanceKm, 2),
			num(ev.DurationMinutes, 1),
			money(ev.VehicleCost),
			money(ev.LaborCost),
			money(ev.EquipmentCost),
			money(ev.OverageCost),
			string(ev.Detail.AreaTier),
			num(ev.Detail.OverKm, 2),
			string(ev.CountingMode),
			strconv.Itoa(ev.StaffCount),
			strconv.FormatBool(ev.HasMachine),
			ev.Scenario.String(),
			num(ev.ScenarioMultiplier, 2),
			num(ev.TimeWeight, 2),
			money(ev.TotalCost),
			strconv.FormatBool(ev.IsAnomaly),
			ev.AnomalyReason,
			num(ev.EfficiencyRatio, 3),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
