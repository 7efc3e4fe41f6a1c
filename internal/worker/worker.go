// Package worker archives generated runs off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/repository"
	"github.com/opensource-finance/cashops/internal/risk"
)

// Worker consumes batch announcements, writes them to the archive and raises
// risk alerts.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	processor *risk.Processor
	cfg       Config
	now       func() time.Time

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	archived atomic.Int64
	failed   atomic.Int64
	alerts   atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// MaxRetries bounds archive attempts after the first one.
	MaxRetries uint64

	// RetryInterval is the first backoff delay; it grows exponentially.
	RetryInterval time.Duration
}

// DefaultConfig retries five times starting at 100ms.
func DefaultConfig() Config {
	return Config{MaxRetries: 5, RetryInterval: 100 * time.Millisecond}
}

// NewWorker creates a new archive worker. repo may be nil, in which case
// runs are only checked for alerts.
func NewWorker(bus domain.EventBus, repo domain.Repository, processor *risk.Processor, cfg Config) *Worker {
	if processor == nil {
		processor = risk.NewProcessor()
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		processor: processor,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to batch announcements.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchGenerated, w.handleBatch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicBatchGenerated, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("archive worker started", "topic", domain.TopicBatchGenerated)
	return nil
}

func (w *Worker) handleBatch(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var rm domain.RunMessage
	if err := json.Unmarshal(msg.Payload, &rm); err != nil {
		slog.Error("failed to parse run message",
			"message_id", msg.ID,
			"error", err,
		)
		w.failed.Add(1)
		return err
	}

	run := rm.Run
	if rm.Assessment != nil {
		run.RiskLevel = rm.Assessment.Level
		run.RiskReasons = rm.Assessment.Reasons
	}
	if run.RiskLevel == "" {
		run.RiskLevel = domain.RiskNormal
	}

	if w.repo != nil {
		if err := w.archive(ctx, &run, rm.Events); err != nil {
			w.failed.Add(1)
			slog.Error("failed to archive run",
				"run_id", run.ID,
				"error", err,
			)
			return err
		}
		w.archived.Add(1)
	}

	if w.processor.ShouldAlert(rm.Assessment) {
		payload, err := json.Marshal(rm.Assessment)
		if err != nil {
			return fmt.Errorf("encode assessment: %w", err)
		}
		if err := w.bus.Publish(ctx, domain.TopicRiskAlert, payload); err != nil {
			slog.Error("failed to publish risk alert",
				"run_id", run.ID,
				"error", err,
			)
		} else {
			w.alerts.Add(1)
		}
	}

	slog.Info("run archived",
		"run_id", run.ID,
		"event_count", len(rm.Events),
		"risk_level", run.RiskLevel,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// archive writes the run and its events, retrying transient failures.
// Invalid input is not retried.
func (w *Worker) archive(ctx context.Context, run *domain.Run, events []domain.BusinessEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.RetryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		run.ArchivedAt = w.now().UTC()
		err := w.repo.SaveRun(ctx, run)
		if err == nil {
			err = w.repo.SaveEvents(ctx, run.ID, events)
		}
		if errors.Is(err, repository.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("archive attempt failed",
			"run_id", run.ID,
			"attempt", attempt,
			"retry_in_ms", wait.Milliseconds(),
			"error", err,
		)
	}

	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, w.cfg.MaxRetries), ctx),
		notify,
	)
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("archive worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Archived          int64    `json:"archived"`
	Failed            int64    `json:"failed"`
	Alerts            int64    `json:"alerts"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Archived:          w.archived.Load(),
		Failed:            w.failed.Load(),
		Alerts:            w.alerts.Load(),
	}
}
