// Package simulate synthesizes batches of business events: it draws the
// business type, region, amount and market conditions of each event, prices
// it through the costing calculators and flags anomalies.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/cashops/internal/costing"
	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/geo"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// ErrInvalidConfig is returned for unusable generator settings.
var ErrInvalidConfig = errors.New("invalid simulation config")

// chunkSize is the number of events generated per RNG stream. It is fixed so
// a seeded run produces the same batch regardless of worker count.
const chunkSize = 512

const weightSumTolerance = 1e-6

var tracer = otel.Tracer("cashops-simulate")

// DefaultBusinessWeights is the reference business mix.
func DefaultBusinessWeights() map[domain.BusinessType]float64 {
	return map[domain.BusinessType]float64{
		domain.VaultTransport:   0.45,
		domain.OnsiteCollection: 0.20,
		domain.VaultTransfer:    0.0625,
		domain.CashCounting:     0.2875,
	}
}

var (
	scenarioChoice   = sampling.MustWeighted([]float64{0.6, 0.2, 0.1, 0.1})
	timeWeightChoice = sampling.MustWeighted([]float64{0.4, 0.3, 0.2, 0.1})
)

// Config configures a Generator. Nil maps and models select the defaults.
type Config struct {
	// BusinessWeights must sum to 1. Types left out never occur.
	BusinessWeights map[domain.BusinessType]float64

	// RegionWeights must sum to 1 when set; nil means uniform over all
	// regions. Vault transfers ignore it.
	RegionWeights map[domain.Region]float64

	// AnomalyRate is the probability an event is flagged. Zero flags
	// nothing, so the zero Config generates clean batches; any negative
	// value selects DefaultAnomalyRate.
	AnomalyRate float64

	Amounts AmountModel
	Rates   *costing.Rates

	// Workers bounds the chunks generated concurrently. 0 means GOMAXPROCS.
	Workers int

	// Seed makes the sequence of runs reproducible. 0 seeds each run from the
	// current minute, so runs within the same minute agree.
	Seed uint64

	Clock func() time.Time
}

// DefaultAnomalyRate is the share of events flagged as anomalies.
const DefaultAnomalyRate = 0.10

// Generator produces event batches. It is safe for concurrent use.
type Generator struct {
	calc    *costing.Calculator
	amounts AmountModel
	clock   func() time.Time
	workers int
	anomaly float64
	seeded  bool
	types   []domain.BusinessType
	typeMix *sampling.Weighted
	regions []domain.Region
	areaMix *sampling.Weighted

	mu   sync.Mutex
	root *sampling.Sampler
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	g := &Generator{
		amounts: cfg.Amounts,
		clock:   cfg.Clock,
		workers: cfg.Workers,
		anomaly: cfg.AnomalyRate,
		seeded:  cfg.Seed != 0,
		root:    sampling.New(cfg.Seed),
	}
	if g.amounts == nil {
		g.amounts = DefaultAmounts{}
	}
	if g.clock == nil {
		g.clock = time.Now
	}
	if g.workers <= 0 {
		g.workers = runtime.GOMAXPROCS(0)
	}
	if g.anomaly < 0 {
		g.anomaly = DefaultAnomalyRate
	}
	if g.anomaly > 1 || math.IsNaN(g.anomaly) {
		return nil, fmt.Errorf("%w: anomaly rate %v outside [0,1]", ErrInvalidConfig, cfg.AnomalyRate)
	}

	rates := costing.DefaultRates()
	if cfg.Rates != nil {
		rates = *cfg.Rates
	}
	g.calc = costing.NewCalculator(rates)

	weights := cfg.BusinessWeights
	if weights == nil {
		weights = DefaultBusinessWeights()
	}
	var typeWeights []float64
	for _, bt := range domain.AllBusinessTypes() {
		g.types = append(g.types, bt)
		typeWeights = append(typeWeights, weights[bt])
	}
	for bt := range weights {
		if !bt.Valid() {
			return nil, fmt.Errorf("%w: unknown business type %d in weights", ErrInvalidConfig, uint8(bt))
		}
	}
	mix, err := normalizedChoice(typeWeights)
	if err != nil {
		return nil, fmt.Errorf("%w: business weights: %v", ErrInvalidConfig, err)
	}
	g.typeMix = mix

	g.regions = domain.AllRegions()
	regionWeights := make([]float64, len(g.regions))
	if cfg.RegionWeights == nil {
		for i := range regionWeights {
			regionWeights[i] = 1 / float64(len(regionWeights))
		}
	} else {
		for r := range cfg.RegionWeights {
			if _, ok := geo.LookupTier(r); !ok {
				return nil, fmt.Errorf("%w: unknown region %q in weights", ErrInvalidConfig, r)
			}
		}
		for i, r := range g.regions {
			regionWeights[i] = cfg.RegionWeights[r]
		}
	}
	mix, err = normalizedChoice(regionWeights)
	if err != nil {
		return nil, fmt.Errorf("%w: region weights: %v", ErrInvalidConfig, err)
	}
	g.areaMix = mix

	return g, nil
}

// normalizedChoice builds a weighted table from weights that must already
// sum to one.
func normalizedChoice(weights []float64) (*sampling.Weighted, error) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return nil, fmt.Errorf("weights sum to %v, want 1", sum)
	}
	return sampling.NewWeighted(weights)
}

// Calculator returns the calculator the generator prices with.
func (g *Generator) Calculator() *costing.Calculator {
	return g.calc
}

// nextSeed picks the seed of the next run.
func (g *Generator) nextSeed() uint64 {
	if !g.seeded {
		return uint64(g.clock().Unix() / 60)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root.Uint64()
}

// Events implements domain.EventSource.
func (g *Generator) Events(ctx context.Context, n int) (*domain.Batch, error) {
	return g.Generate(ctx, n)
}

// Generate produces a batch of n events stamped with today's business hours.
func (g *Generator) Generate(ctx context.Context, n int) (*domain.Batch, error) {
	return g.GenerateSeeded(ctx, n, g.nextSeed())
}

// GenerateSeeded reproduces the run with the given seed.
func (g *Generator) GenerateSeeded(ctx context.Context, n int, seed uint64) (*domain.Batch, error) {
	now := g.clock()
	return g.generate(ctx, n, seed, startOfDay(now), now)
}

// seedAttr renders the seed in decimal; seeds use the full uint64 range.
func seedAttr(seed uint64) attribute.KeyValue {
	return attribute.String("batch.seed", strconv.FormatUint(seed, 10))
}

func (g *Generator) generate(ctx context.Context, n int, seed uint64, day, generatedAt time.Time) (*domain.Batch, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, n)
	}

	ctx, span := tracer.Start(ctx, "simulate.generate",
		trace.WithAttributes(
			attribute.Int("batch.size", n),
			seedAttr(seed),
		),
	)
	defer span.End()

	start := time.Now()
	run := sampling.New(seed)

	chunks := (n + chunkSize - 1) / chunkSize
	streams := make([]*sampling.Sampler, chunks)
	for i := range streams {
		streams[i] = run.Split()
	}

	events := make([]domain.BusinessEvent, n)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for c := 0; c < chunks; c++ {
		lo := c * chunkSize
		hi := min(lo+chunkSize, n)
		s := streams[c]
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				g.drawEvent(&events[i], day, s)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate batch: %w", err)
	}

	assignAnomalyReasons(events, run)

	slices.SortStableFunc(events, func(a, b domain.BusinessEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	for i := range events {
		events[i].Seq = i + 1
		events[i].ID = domain.EventID(i + 1)
	}

	slog.Debug("batch generated",
		"events", n,
		"seed", seed,
		"chunks", chunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &domain.Batch{
		RunID:       uuid.New().String(),
		Seed:        seed,
		GeneratedAt: generatedAt,
		Events:      events,
	}, nil
}

// drawEvent fills one event. Totals are computed last so they always equal
// the components times the multipliers.
func (g *Generator) drawEvent(ev *domain.BusinessEvent, day time.Time, s *sampling.Sampler) {
	ev.BusinessType = g.types[g.typeMix.Pick(s)]
	ev.Timestamp = drawTimestamp(day, s)

	if ev.BusinessType == domain.VaultTransfer {
		ev.Region = domain.DepotRegion
	} else {
		ev.Region = g.regions[g.areaMix.Pick(s)]
	}
	if ev.BusinessType.RouteBased() {
		ev.DistanceKm = geo.DepotDistance(ev.Region) * distanceJitter.Draw(s)
	}

	ev.Amount = g.amounts.Amount(ev.BusinessType, s)
	g.calc.Price(ev, 0, s)

	ev.Scenario = domain.AllScenarios()[scenarioChoice.Pick(s)]
	ev.ScenarioMultiplier = ev.Scenario.Multiplier()
	ev.TimeWeight = domain.TimeWeights[timeWeightChoice.Pick(s)]
	ev.ComputeTotal()

	ev.IsAnomaly = s.Chance(g.anomaly)
	ev.EfficiencyRatio = s.Beta(3, 2)
}

var distanceJitter = costing.Band{Lo: 0.9, Hi: 1.1}
