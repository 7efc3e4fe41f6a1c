// Package snapshot serves cached batches, reports and history built by the
// simulator. Batches live for one cache window; every consumer inside a
// window sees the same events.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/cashops/internal/aggregate"
	"github.com/opensource-finance/cashops/internal/cache"
	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/risk"
	"github.com/opensource-finance/cashops/internal/rules"
	"github.com/opensource-finance/cashops/internal/simulate"
)

// Cache key prefixes.
const (
	batchPrefix   = "batch:"
	historyPrefix = "history:"
)

// Default cache windows.
const (
	DefaultBatchTTL   = time.Minute
	DefaultHistoryTTL = 5 * time.Minute
)

// Snapshot is a generated batch together with its report and assessment.
type Snapshot struct {
	Batch       *domain.Batch      `json:"batch"`
	Report      *aggregate.Report  `json:"report"`
	Assessment  *domain.Assessment `json:"assessment"`
	WindowStart time.Time          `json:"window_start"`
}

// Options configures a Service.
type Options struct {
	BatchTTL   time.Duration
	HistoryTTL time.Duration

	// Bus receives a RunMessage for every newly generated batch. Optional.
	Bus domain.EventBus

	Clock func() time.Time
}

// Service owns the generator, the cache and the risk pipeline.
type Service struct {
	gen       *simulate.Generator
	cache     domain.Cache
	engine    *rules.Engine
	processor *risk.Processor
	bus       domain.EventBus
	opts      Options
	clock     func() time.Time
	group     singleflight.Group
}

// New creates a snapshot service.
func New(gen *simulate.Generator, c domain.Cache, engine *rules.Engine, processor *risk.Processor, opts Options) *Service {
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = DefaultBatchTTL
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = DefaultHistoryTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if processor == nil {
		processor = risk.NewProcessor()
	}
	return &Service{
		gen:       gen,
		cache:     c,
		engine:    engine,
		processor: processor,
		bus:       opts.Bus,
		opts:      opts,
		clock:     opts.Clock,
	}
}

// Generator returns the underlying generator.
func (s *Service) Generator() *simulate.Generator {
	return s.gen
}

// window returns the start of the current window and the time left in it.
func (s *Service) window(ttl time.Duration) (time.Time, time.Duration) {
	now := s.clock()
	start := now.Truncate(ttl)
	left := start.Add(ttl).Sub(now)
	if left < time.Second {
		left = time.Second
	}
	return start, left
}

// Batch returns the batch of n events for the current window, generating and
// announcing it on a miss.
func (s *Service) Batch(ctx context.Context, n int) (*Snapshot, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", simulate.ErrInvalidConfig, n)
	}

	start, ttl := s.window(s.opts.BatchTTL)
	key := fmt.Sprintf("%s%d:%d", batchPrefix, n, start.Unix())

	var snap Snapshot
	if found, err := cache.GetJSON(ctx, s.cache, key, &snap); err != nil {
		slog.Warn("batch cache read failed", "key", key, "error", err)
	} else if found {
		return &snap, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// The flight is shared by every waiting caller, so it must not end
		// when the first caller goes away.
		ctx := context.WithoutCancel(ctx)

		// A caller that missed just before the previous flight finished
		// finds its result here.
		var cached Snapshot
		if found, _ := cache.GetJSON(ctx, s.cache, key, &cached); found {
			return &cached, nil
		}
		snap, err := s.build(ctx, n, start)
		if err != nil {
			return nil, err
		}
		if err := cache.SetJSON(ctx, s.cache, key, snap, ttl); err != nil {
			slog.Warn("batch cache write failed", "key", key, "error", err)
		}
		s.announce(ctx, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (s *Service) build(ctx context.Context, n int, start time.Time) (*Snapshot, error) {
	batch, err := s.gen.Generate(ctx, n)
	if err != nil {
		return nil, err
	}

	report := aggregate.Build(batch.Events)
	snap := &Snapshot{Batch: batch, Report: report, WindowStart: start}

	if s.engine != nil {
		a, err := s.processor.Assess(ctx, s.engine, batch.RunID, report.Metrics())
		if err != nil {
			return nil, err
		}
		snap.Assessment = a
	}

	slog.Info("batch generated",
		"run_id", batch.RunID,
		"events", batch.Len(),
		"seed", batch.Seed,
		"risk_level", snap.riskLevel(),
	)
	return snap, nil
}

func (snap *Snapshot) riskLevel() domain.RiskLevel {
	if snap.Assessment == nil {
		return domain.RiskNormal
	}
	return snap.Assessment.Level
}

// RunMessage builds the bus payload announcing the snapshot.
func (snap *Snapshot) RunMessage() domain.RunMessage {
	r := snap.Report
	run := domain.Run{
		ID:            snap.Batch.RunID,
		Seed:          snap.Batch.Seed,
		GeneratedAt:   snap.Batch.GeneratedAt,
		EventCount:    r.EventCount,
		TotalCost:     r.TotalCost.InexactFloat64(),
		AnomalyRate:   r.AnomalyRate,
		AvgEfficiency: r.AvgEfficiency,
		RiskLevel:     snap.riskLevel(),
	}
	if snap.Assessment != nil {
		run.RiskReasons = snap.Assessment.Reasons
	}
	return domain.RunMessage{Run: run, Assessment: snap.Assessment, Events: snap.Batch.Events}
}

// announce publishes the run. Failures are logged; the snapshot is still
// served.
func (s *Service) announce(ctx context.Context, snap *Snapshot) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(snap.RunMessage())
	if err != nil {
		slog.Error("failed to encode run message", "run_id", snap.Batch.RunID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicBatchGenerated, payload); err != nil {
		slog.Warn("failed to publish run", "run_id", snap.Batch.RunID, "error", err)
	}
}

// Refresh drops every cached batch and history.
func (s *Service) Refresh(ctx context.Context) error {
	for _, prefix := range []string{batchPrefix, historyPrefix} {
		if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("clear %s cache: %w", prefix, err)
		}
	}
	slog.Info("snapshot cache cleared")
	return nil
}

// History returns the per-day workload of the last days days.
func (s *Service) History(ctx context.Context, days int) ([]simulate.DayBatch, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: history needs at least one day, got %d", simulate.ErrInvalidConfig, days)
	}

	start, ttl := s.window(s.opts.HistoryTTL)
	key := fmt.Sprintf("%s%d:%d", historyPrefix, days, start.Unix())

	var history []simulate.DayBatch
	if found, err := cache.GetJSON(ctx, s.cache, key, &history); err != nil {
		slog.Warn("history cache read failed", "key", key, "error", err)
	} else if found {
		return history, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		var cached []simulate.DayBatch
		if found, _ := cache.GetJSON(ctx, s.cache, key, &cached); found {
			return cached, nil
		}
		history, err := s.gen.GenerateHistory(ctx, days)
		if err != nil {
			return nil, err
		}
		if err := cache.SetJSON(ctx, s.cache, key, history, ttl); err != nil {
			slog.Warn("history cache write failed", "key", key, "error", err)
		}
		return history, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]simulate.DayBatch), nil
}

// Daily rolls the history up into one row per day, empty days included.
func (s *Service) Daily(ctx context.Context, days int) ([]aggregate.DayStat, error) {
	history, err := s.History(ctx, days)
	if err != nil {
		return nil, err
	}

	var events []domain.BusinessEvent
	calendar := make([]time.Time, len(history))
	for i, d := range history {
		calendar[i] = d.Day
		events = append(events, d.Events...)
	}
	return aggregate.Daily(events, calendar...), nil
}

// Forecast projects the daily history horizon days ahead.
func (s *Service) Forecast(ctx context.Context, days, window, horizon int) (*aggregate.Forecast, error) {
	if window <= 0 || horizon <= 0 {
		return nil, fmt.Errorf("%w: window and horizon must be positive", simulate.ErrInvalidConfig)
	}
	daily, err := s.Daily(ctx, days)
	if err != nil {
		return nil, err
	}
	return aggregate.Project(daily, window, horizon), nil
}
