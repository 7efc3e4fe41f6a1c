package costing

import (
	"math"
	"testing"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/geo"
	"github.com/opensource-finance/cashops/internal/sampling"
)

const eps = 1e-9

func TestHourlyVehicleRate(t *testing.T) {
	if got := DefaultRates().HourlyVehicleRate(); math.Abs(got-312.5) > eps {
		t.Errorf("expected 312.5, got %v", got)
	}
}

func TestOverage(t *testing.T) {
	r := DefaultRates()

	tests := []struct {
		name     string
		actual   float64
		standard float64
		bt       domain.BusinessType
		wantKm   float64
		wantCost float64
	}{
		{"WithinAllowance", 7, 8, domain.VaultTransport, 0, 0},
		{"ExactlyAtAllowance", 8, 8, domain.VaultTransport, 0, 0},
		{"VaultTransportExcess", 10, 8, domain.VaultTransport, 2, 24},
		{"OnsiteCollectionExcess", 12, 10, domain.OnsiteCollection, 2, 30},
		{"VaultTransferExcess", 16, 15, domain.VaultTransfer, 1, 12},
		{"CashCountingNeverPays", 100, 0, domain.CashCounting, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, cost := r.Overage(tt.actual, tt.standard, tt.bt)
			if math.Abs(km-tt.wantKm) > eps || math.Abs(cost-tt.wantCost) > eps {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.wantKm, tt.wantCost, km, cost)
			}
		})
	}
}

func TestOverKmRateDefault(t *testing.T) {
	r := DefaultRates()
	delete(r.OverKm, domain.OnsiteCollection)
	if got := r.OverKmRate(domain.OnsiteCollection); got != r.DefaultOverKm {
		t.Errorf("expected default rate %v, got %v", r.DefaultOverKm, got)
	}
}

func TestCashCountingThreshold(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	s := sampling.New(1)

	amounts := []float64{0, 10_000, 999_999.99, 1_000_000, 2_000_000, 9_999_999}
	for _, amount := range amounts {
		for i := 0; i < 200; i++ {
			res := calc.CashCounting(amount, s)

			if amount >= LargeCountingThreshold {
				if res.StaffCount != 2 || !res.HasMachine || res.Mode != domain.CountingLarge {
					t.Fatalf("amount %v: expected large mode, got %+v", amount, res)
				}
				if res.EquipmentCost <= 0 {
					t.Fatalf("amount %v: expected machine cost", amount)
				}
				if res.DurationMinutes < 120 || res.DurationMinutes >= 240 {
					t.Fatalf("amount %v: duration out of range: %v", amount, res.DurationMinutes)
				}
			} else {
				if res.StaffCount != 8 || res.HasMachine || res.Mode != domain.CountingSmall {
					t.Fatalf("amount %v: expected small mode, got %+v", amount, res)
				}
				if res.EquipmentCost != 0 {
					t.Fatalf("amount %v: small batches have no machine cost", amount)
				}
				if res.DurationMinutes < 60 || res.DurationMinutes >= 180 {
					t.Fatalf("amount %v: duration out of range: %v", amount, res.DurationMinutes)
				}
			}

			if res.LaborCost <= 0 {
				t.Fatalf("amount %v: expected positive labor cost", amount)
			}
			if math.Abs(res.TotalCost-(res.LaborCost+res.EquipmentCost)) > 1e-6 {
				t.Fatalf("amount %v: total %v != labor %v + equipment %v",
					amount, res.TotalCost, res.LaborCost, res.EquipmentCost)
			}
		}
	}
}

func TestRouteBasedCost(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	t.Run("NoOvertimeNoOverage", func(t *testing.T) {
		// Huangpu is near: allowance 8 km. Standard time at 6 km is 0.98 h.
		res := calc.RouteBasedCost(6, 0.5, domain.Huangpu, domain.VaultTransport)
		if res.Detail.OvertimeCost != 0 || res.Detail.OverKmCost != 0 {
			t.Errorf("expected no overtime or overage, got %+v", res.Detail)
		}
		if math.Abs(res.Total-0.5*312.5) > eps {
			t.Errorf("expected total %v, got %v", 0.5*312.5, res.Total)
		}
		if res.Detail.AreaTier != domain.TierNear || res.Detail.StandardDistanceKm != 8 {
			t.Errorf("unexpected tier detail: %+v", res.Detail)
		}
	})

	t.Run("OvertimeAndOverage", func(t *testing.T) {
		// 20 km from a near region: 12 km over, standard time 2.1 h.
		res := calc.RouteBasedCost(20, 3.1, domain.Xuhui, domain.VaultTransport)
		wantBasic := 3.1 * 312.5
		wantOvertime := 1.0 * 300
		wantOverKm := 12.0 * 12

		if math.Abs(res.Detail.BasicCost-wantBasic) > 1e-6 {
			t.Errorf("basic: expected %v, got %v", wantBasic, res.Detail.BasicCost)
		}
		if math.Abs(res.Detail.OvertimeCost-wantOvertime) > 1e-6 {
			t.Errorf("overtime: expected %v, got %v", wantOvertime, res.Detail.OvertimeCost)
		}
		if math.Abs(res.Detail.OverKmCost-wantOverKm) > 1e-6 {
			t.Errorf("over-km: expected %v, got %v", wantOverKm, res.Detail.OverKmCost)
		}
		if math.Abs(res.Total-(wantBasic+wantOvertime+wantOverKm)) > 1e-6 {
			t.Errorf("total mismatch: %v", res.Total)
		}
		if math.Abs(res.VehicleCost()-(wantBasic+wantOvertime)) > 1e-6 {
			t.Errorf("vehicle cost should exclude over-km: %v", res.VehicleCost())
		}
	})

	t.Run("UnknownRegionUsesDefaultTier", func(t *testing.T) {
		res := calc.RouteBasedCost(20, 1, domain.Region("Nowhere"), domain.OnsiteCollection)
		if res.Detail.AreaTier != domain.DefaultTier {
			t.Errorf("expected default tier, got %q", res.Detail.AreaTier)
		}
	})

	t.Run("PanicsForNonRouteType", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for cash counting")
			}
		}()
		calc.RouteBasedCost(10, 1, domain.Huangpu, domain.CashCounting)
	})
}

func TestVaultTransfer(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	s := sampling.New(99)

	var delayed, detoured int
	n := 20000
	for i := 0; i < n; i++ {
		res := calc.VaultTransfer(s)

		if res.DistanceKm != geo.VaultTransferDistanceKm {
			t.Fatalf("expected fixed distance, got %v", res.DistanceKm)
		}
		if res.VehicleCost <= 0 {
			t.Fatalf("expected positive vehicle cost, got %v", res.VehicleCost)
		}
		if res.DurationMinutes < 35 || res.DurationMinutes >= 75 {
			t.Fatalf("duration out of bounds: %v", res.DurationMinutes)
		}
		if res.Detail.OverKm < 0 || res.Detail.OverKm >= 3 {
			t.Fatalf("detour out of bounds: %v", res.Detail.OverKm)
		}
		if res.Amount < 5_000_000 || res.Amount >= 20_000_000 {
			t.Fatalf("amount out of bounds: %v", res.Amount)
		}
		if res.Detail.AreaTier != domain.TierDedicated {
			t.Fatalf("expected dedicated tier, got %q", res.Detail.AreaTier)
		}
		if res.Detail.OvertimeCost > 0 {
			delayed++
		}
		if res.OverageCost > 0 {
			detoured++
		}
	}

	if rate := float64(delayed) / float64(n); math.Abs(rate-0.15) > 0.02 {
		t.Errorf("expected ~15%% delayed runs, got %.3f", rate)
	}
	if rate := float64(detoured) / float64(n); math.Abs(rate-0.05) > 0.01 {
		t.Errorf("expected ~5%% detours, got %.3f", rate)
	}
}

func TestEstimateDuration(t *testing.T) {
	s := sampling.New(4)

	for _, bt := range domain.AllBusinessTypes() {
		for _, km := range []float64{0, 1, 14.9, 15, 39.9, 40, 80} {
			for _, traffic := range []float64{TrafficBand.Lo, TrafficBand.Hi} {
				for i := 0; i < 50; i++ {
					got := EstimateDuration(km, bt, traffic, s)
					if got < MinDurationMinutes || math.IsNaN(got) || math.IsInf(got, 0) {
						t.Fatalf("%s %v km: bad duration %v", bt, km, got)
					}
				}
			}
		}
	}

	// Long trips take longer than short ones even on a good day.
	short := EstimateDuration(5, domain.VaultTransport, 0.9, sampling.New(1))
	long := EstimateDuration(75, domain.VaultTransport, 0.9, sampling.New(1))
	if long <= short {
		t.Errorf("expected 75 km (%v) to take longer than 5 km (%v)", long, short)
	}
}

func TestRouteLaborDrawnFromBand(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	s := sampling.New(29)

	tests := []struct {
		bt     domain.BusinessType
		lo, hi float64
	}{
		{domain.VaultTransport, 150, 250},
		{domain.OnsiteCollection, 200, 350},
	}

	for _, tt := range tests {
		t.Run(tt.bt.String(), func(t *testing.T) {
			for range 500 {
				ev := domain.BusinessEvent{BusinessType: tt.bt, Region: domain.Xuhui, Amount: 50000}
				calc.Price(&ev, 1.0, s)
				if ev.LaborCost < tt.lo || ev.LaborCost > tt.hi {
					t.Fatalf("labor %v outside [%v, %v]", ev.LaborCost, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestPrice(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	s := sampling.New(17)

	t.Run("RouteBased", func(t *testing.T) {
		for _, bt := range []domain.BusinessType{domain.VaultTransport, domain.OnsiteCollection} {
			for _, region := range domain.AllRegions() {
				ev := domain.BusinessEvent{BusinessType: bt, Region: region, Amount: 50000}
				calc.Price(&ev, 0, s)

				if ev.DistanceKm != geo.DepotDistance(region) {
					t.Fatalf("expected depot distance for %s, got %v", region, ev.DistanceKm)
				}
				if ev.DurationMinutes < MinDurationMinutes {
					t.Fatalf("duration below floor: %v", ev.DurationMinutes)
				}
				if ev.VehicleCost <= 0 || ev.LaborCost <= 0 || ev.EquipmentCost <= 0 {
					t.Fatalf("expected positive components: %+v", ev)
				}
				if ev.OverageCost != ev.Detail.OverKmCost {
					t.Fatalf("overage %v should equal over-km detail %v", ev.OverageCost, ev.Detail.OverKmCost)
				}
				if math.Abs(ev.VehicleCost-(ev.Detail.BasicCost+ev.Detail.OvertimeCost)) > 1e-6 {
					t.Fatalf("vehicle cost must not include overage")
				}
				if ev.StaffCount != 0 || ev.CountingMode != domain.CountingNone {
					t.Fatalf("counting fields should be zero: %+v", ev)
				}
			}
		}
	})

	t.Run("VaultTransfer", func(t *testing.T) {
		ev := domain.BusinessEvent{BusinessType: domain.VaultTransfer, Region: domain.Chongming}
		calc.Price(&ev, 0, s)

		if ev.Region != domain.DepotRegion {
			t.Errorf("expected depot region, got %s", ev.Region)
		}
		if ev.DistanceKm != 15.0 {
			t.Errorf("expected 15 km, got %v", ev.DistanceKm)
		}
		if ev.LaborCost != 0 || ev.EquipmentCost != 0 || ev.VehicleCost <= 0 {
			t.Errorf("unexpected cost shape: %+v", ev)
		}
		if ev.Amount < 5_000_000 {
			t.Errorf("expected transfer amount to be filled, got %v", ev.Amount)
		}
	})

	t.Run("CashCounting", func(t *testing.T) {
		ev := domain.BusinessEvent{
			BusinessType: domain.CashCounting,
			Region:       domain.Huangpu,
			Amount:       2_000_000,
			DistanceKm:   12,
			VehicleCost:  999,
		}
		calc.Price(&ev, 0, s)

		if ev.DistanceKm != 0 || ev.VehicleCost != 0 || ev.OverageCost != 0 {
			t.Errorf("counting must not carry travel costs: %+v", ev)
		}
		if ev.StaffCount != 2 || !ev.HasMachine || ev.EquipmentCost <= 0 {
			t.Errorf("expected large counting: %+v", ev)
		}
		if ev.Detail.AreaTier != domain.TierNone {
			t.Errorf("expected tier none, got %q", ev.Detail.AreaTier)
		}
	})

	t.Run("UnknownTypePanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		ev := domain.BusinessEvent{BusinessType: domain.BusinessType(0)}
		calc.Price(&ev, 0, s)
	})
}
