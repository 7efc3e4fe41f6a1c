package simulate

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/opensource-finance/cashops/internal/costing"
	"github.com/opensource-finance/cashops/internal/domain"
)

var fixedNow = time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = fixedClock
	}
	if cfg.Seed == 0 {
		cfg.Seed = 12345
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestGenerateBatchSizeAndIDs(t *testing.T) {
	g := newTestGenerator(t, Config{AnomalyRate: DefaultAnomalyRate})
	ctx := context.Background()

	for _, n := range []int{1, 7, 300, 513, 2048} {
		batch, err := g.Generate(ctx, n)
		if err != nil {
			t.Fatalf("Generate(%d) failed: %v", n, err)
		}
		if batch.Len() != n {
			t.Fatalf("expected %d events, got %d", n, batch.Len())
		}
		if batch.RunID == "" {
			t.Error("expected a run id")
		}

		seen := make(map[string]bool, n)
		for i, ev := range batch.Events {
			if ev.Seq != i+1 {
				t.Fatalf("event %d: expected seq %d, got %d", i, i+1, ev.Seq)
			}
			if ev.ID != domain.EventID(i+1) {
				t.Fatalf("event %d: expected id %s, got %s", i, domain.EventID(i+1), ev.ID)
			}
			if seen[ev.ID] {
				t.Fatalf("duplicate id %s", ev.ID)
			}
			seen[ev.ID] = true
		}
	}
}

func TestGenerateInvariants(t *testing.T) {
	g := newTestGenerator(t, Config{AnomalyRate: DefaultAnomalyRate})
	batch, err := g.Generate(context.Background(), 20000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	day := startOfDay(fixedNow)
	var prev time.Time
	for _, ev := range batch.Events {
		// Total is the product of the components and multipliers.
		want := (ev.VehicleCost + ev.LaborCost + ev.EquipmentCost + ev.OverageCost) *
			ev.ScenarioMultiplier * ev.TimeWeight
		if math.Abs(ev.TotalCost-want) > 1e-9*math.Max(1, want) {
			t.Fatalf("%s: total %v != %v", ev.ID, ev.TotalCost, want)
		}
		if ev.ScenarioMultiplier != ev.Scenario.Multiplier() {
			t.Fatalf("%s: multiplier does not match scenario", ev.ID)
		}

		for name, v := range map[string]float64{
			"vehicle":   ev.VehicleCost,
			"labor":     ev.LaborCost,
			"equipment": ev.EquipmentCost,
			"overage":   ev.OverageCost,
			"duration":  ev.DurationMinutes,
			"amount":    ev.Amount,
		} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%s: %s is %v", ev.ID, name, v)
			}
		}

		if ev.EfficiencyRatio < 0 || ev.EfficiencyRatio > 1 {
			t.Fatalf("%s: efficiency %v outside [0,1]", ev.ID, ev.EfficiencyRatio)
		}

		switch ev.BusinessType {
		case domain.VaultTransport, domain.OnsiteCollection:
			if ev.DurationMinutes < costing.MinDurationMinutes {
				t.Fatalf("%s: duration %v below floor", ev.ID, ev.DurationMinutes)
			}
			if ev.DistanceKm <= 0 {
				t.Fatalf("%s: expected positive distance", ev.ID)
			}
			if ev.Amount < 1000 || ev.Amount > 500000 {
				t.Fatalf("%s: amount %v outside bounds", ev.ID, ev.Amount)
			}
		case domain.VaultTransfer:
			if ev.DistanceKm != 15.0 || ev.Region != domain.DepotRegion {
				t.Fatalf("%s: bad transfer route %v km in %s", ev.ID, ev.DistanceKm, ev.Region)
			}
			if ev.VehicleCost <= 0 || ev.LaborCost != 0 || ev.EquipmentCost != 0 {
				t.Fatalf("%s: bad transfer cost shape", ev.ID)
			}
		case domain.CashCounting:
			if ev.VehicleCost != 0 || ev.OverageCost != 0 || ev.DistanceKm != 0 {
				t.Fatalf("%s: counting with travel cost", ev.ID)
			}
			large := ev.Amount >= costing.LargeCountingThreshold
			if large && (ev.StaffCount != 2 || !ev.HasMachine) {
				t.Fatalf("%s: amount %v should be large mode", ev.ID, ev.Amount)
			}
			if !large && (ev.StaffCount != 8 || ev.HasMachine) {
				t.Fatalf("%s: amount %v should be small mode", ev.ID, ev.Amount)
			}
		default:
			t.Fatalf("%s: unknown business type %d", ev.ID, ev.BusinessType)
		}

		if ev.IsAnomaly != (ev.AnomalyReason != "") {
			t.Fatalf("%s: anomaly flag %v with reason %q", ev.ID, ev.IsAnomaly, ev.AnomalyReason)
		}

		if ev.Timestamp.Before(prev) {
			t.Fatalf("%s: batch not time ordered", ev.ID)
		}
		prev = ev.Timestamp
		if h := ev.Timestamp.Hour(); h < 7 || h > 17 || !startOfDay(ev.Timestamp).Equal(day) {
			t.Fatalf("%s: timestamp %v outside business hours", ev.ID, ev.Timestamp)
		}
	}
}

func TestNonNegativeAcrossManyBatches(t *testing.T) {
	g := newTestGenerator(t, Config{AnomalyRate: DefaultAnomalyRate, Workers: 1})
	ctx := context.Background()

	for b := 0; b < 10000; b++ {
		batch, err := g.Generate(ctx, 3)
		if err != nil {
			t.Fatalf("batch %d: %v", b, err)
		}
		for _, ev := range batch.Events {
			if ev.VehicleCost < 0 || ev.LaborCost < 0 || ev.EquipmentCost < 0 ||
				ev.OverageCost < 0 || ev.DurationMinutes < 0 || ev.TotalCost < 0 {
				t.Fatalf("batch %d: negative component in %+v", b, ev)
			}
		}
	}
}

func TestAnomalyRate(t *testing.T) {
	tests := []struct {
		name       string
		configured float64
		want       float64
	}{
		{"ZeroFlagsNothing", 0, 0},
		{"Default", DefaultAnomalyRate, DefaultAnomalyRate},
		{"Quarter", 0.25, 0.25},
		{"NegativeSelectsDefault", -1, DefaultAnomalyRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, Config{AnomalyRate: tt.configured})
			batch, err := g.Generate(context.Background(), 10000)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}

			var flagged int
			for _, ev := range batch.Events {
				if ev.IsAnomaly {
					flagged++
				}
			}
			if tt.want == 0 && flagged != 0 {
				t.Fatalf("expected no anomalies, got %d", flagged)
			}
			got := float64(flagged) / float64(batch.Len())
			if math.Abs(got-tt.want) > 0.02 {
				t.Errorf("observed rate %.4f, want about %.2f", got, tt.want)
			}
		})
	}
}

func TestSeedAttributeKeepsFullRange(t *testing.T) {
	for _, seed := range []uint64{1, math.MaxInt64 + 1, math.MaxUint64} {
		kv := seedAttr(seed)
		if got, want := kv.Value.AsString(), strconv.FormatUint(seed, 10); got != want {
			t.Errorf("seed %d: attribute %q, want %q", seed, got, want)
		}
	}
}

func TestBusinessMix(t *testing.T) {
	g := newTestGenerator(t, Config{AnomalyRate: DefaultAnomalyRate})
	batch, err := g.Generate(context.Background(), 40000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	counts := make(map[domain.BusinessType]int)
	for _, ev := range batch.Events {
		counts[ev.BusinessType]++
	}
	for bt, want := range DefaultBusinessWeights() {
		got := float64(counts[bt]) / float64(batch.Len())
		if math.Abs(got-want) > 0.01 {
			t.Errorf("%s: expected ~%.4f, got %.4f", bt, want, got)
		}
	}
}

func TestForcedCashCounting(t *testing.T) {
	g := newTestGenerator(t, Config{
		BusinessWeights: map[domain.BusinessType]float64{domain.CashCounting: 1},
		Amounts:         FixedAmount(2_000_000),
		AnomalyRate:     DefaultAnomalyRate,
	})

	batch, err := g.Generate(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, ev := range batch.Events {
		if ev.BusinessType != domain.CashCounting {
			t.Fatalf("%s: unexpected type %s", ev.ID, ev.BusinessType)
		}
		if ev.StaffCount != 2 || !ev.HasMachine || ev.CountingMode != domain.CountingLarge {
			t.Fatalf("%s: expected large counting, got %+v", ev.ID, ev)
		}
		if ev.VehicleCost != 0 || ev.LaborCost <= 0 || ev.EquipmentCost <= 0 {
			t.Fatalf("%s: bad cost shape %+v", ev.ID, ev)
		}
	}
}

func TestForcedVaultTransfer(t *testing.T) {
	g := newTestGenerator(t, Config{
		BusinessWeights: map[domain.BusinessType]float64{domain.VaultTransfer: 1},
		AnomalyRate:     DefaultAnomalyRate,
	})

	batch, err := g.Generate(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, ev := range batch.Events {
		if ev.DistanceKm != 15.0 {
			t.Fatalf("%s: expected 15 km, got %v", ev.ID, ev.DistanceKm)
		}
		if ev.Region != domain.DepotRegion {
			t.Fatalf("%s: expected %s, got %s", ev.ID, domain.DepotRegion, ev.Region)
		}
		if ev.LaborCost != 0 {
			t.Fatalf("%s: expected zero labor, got %v", ev.ID, ev.LaborCost)
		}
		if ev.Amount < 5_000_000 || ev.Amount >= 20_000_000 {
			t.Fatalf("%s: transfer amount %v out of range", ev.ID, ev.Amount)
		}
	}
}

func TestRegionWeights(t *testing.T) {
	g := newTestGenerator(t, Config{
		BusinessWeights: map[domain.BusinessType]float64{domain.VaultTransport: 1},
		RegionWeights:   map[domain.Region]float64{domain.Chongming: 0.5, domain.Huangpu: 0.5},
		AnomalyRate:     DefaultAnomalyRate,
	})

	batch, err := g.Generate(context.Background(), 500)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, ev := range batch.Events {
		if ev.Region != domain.Chongming && ev.Region != domain.Huangpu {
			t.Fatalf("%s: unexpected region %s", ev.ID, ev.Region)
		}
	}
}

func TestSeededRunsReproduce(t *testing.T) {
	ctx := context.Background()
	a := newTestGenerator(t, Config{Seed: 77, Workers: 1, AnomalyRate: DefaultAnomalyRate})
	b := newTestGenerator(t, Config{Seed: 77, Workers: 8, AnomalyRate: DefaultAnomalyRate})

	for run := 0; run < 3; run++ {
		ba, err := a.Generate(ctx, 1500)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		bb, err := b.Generate(ctx, 1500)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if ba.Seed != bb.Seed {
			t.Fatalf("run %d: seeds differ", run)
		}
		for i := range ba.Events {
			if ba.Events[i] != bb.Events[i] {
				t.Fatalf("run %d event %d differs", run, i)
			}
		}

		replay, err := a.GenerateSeeded(ctx, 1500, ba.Seed)
		if err != nil {
			t.Fatalf("GenerateSeeded failed: %v", err)
		}
		if replay.Events[42] != ba.Events[42] {
			t.Fatalf("run %d: replay differs", run)
		}
	}
}

func TestGeneratorConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"WeightsDoNotSumToOne", Config{BusinessWeights: map[domain.BusinessType]float64{domain.VaultTransport: 0.5}}},
		{"UnknownBusinessType", Config{BusinessWeights: map[domain.BusinessType]float64{domain.BusinessType(9): 1}}},
		{"UnknownRegion", Config{RegionWeights: map[domain.Region]float64{"Atlantis": 1}}},
		{"RegionWeightsDoNotSumToOne", Config{RegionWeights: map[domain.Region]float64{domain.Huangpu: 2}}},
		{"AnomalyRateAboveOne", Config{AnomalyRate: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	g := newTestGenerator(t, Config{})
	if _, err := g.Generate(context.Background(), 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for n=0, got %v", err)
	}
}

func TestGenerateCanceled(t *testing.T) {
	g := newTestGenerator(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Generate(ctx, 5000); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateHistory(t *testing.T) {
	g := newTestGenerator(t, Config{AnomalyRate: DefaultAnomalyRate})

	days, err := g.GenerateHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("GenerateHistory failed: %v", err)
	}
	if len(days) != 10 {
		t.Fatalf("expected 10 days, got %d", len(days))
	}

	today := startOfDay(fixedNow)
	var total int
	for i, d := range days {
		want := today.AddDate(0, 0, i-9)
		if !d.Day.Equal(want) {
			t.Errorf("day %d: expected %v, got %v", i, want, d.Day)
		}
		for _, ev := range d.Events {
			if !startOfDay(ev.Timestamp).Equal(want) {
				t.Fatalf("day %d: event stamped %v", i, ev.Timestamp)
			}
		}
		total += len(d.Events)
	}

	// Poisson(40) per day; 10 days should land well inside this range.
	if total < 250 || total > 550 {
		t.Errorf("unexpected total volume %d", total)
	}

	if _, err := g.GenerateHistory(context.Background(), 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for zero days, got %v", err)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg, err := ConfigFrom(domain.SimulationConfig{
		AnomalyRate:     0.2,
		Workers:         2,
		BusinessWeights: map[string]float64{"vault_transport": 0.5, "cash-counting": 0.5},
		RegionWeights:   map[string]float64{"huangpu": 1},
	})
	if err != nil {
		t.Fatalf("ConfigFrom failed: %v", err)
	}
	if cfg.BusinessWeights[domain.CashCounting] != 0.5 {
		t.Errorf("expected cash counting weight 0.5, got %v", cfg.BusinessWeights[domain.CashCounting])
	}
	if cfg.RegionWeights[domain.Huangpu] != 1 {
		t.Error("expected Huangpu weight to carry over")
	}

	_, err = ConfigFrom(domain.SimulationConfig{BusinessWeights: map[string]float64{"teleport": 1}})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	_, err = ConfigFrom(domain.SimulationConfig{RegionWeights: map[string]float64{"Atlantis": 1}})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unknown region, got %v", err)
	}
}
