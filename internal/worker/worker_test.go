package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/cashops/internal/bus"
	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/repository"
	"github.com/opensource-finance/cashops/internal/risk"
)

// flakyRepo fails the first failures SaveRun calls.
type flakyRepo struct {
	mu       sync.Mutex
	failures int
	calls    int
	runs     map[string]*domain.Run
	events   map[string][]domain.BusinessEvent
	failWith error
}

func newFlakyRepo(failures int, failWith error) *flakyRepo {
	return &flakyRepo{
		failures: failures,
		failWith: failWith,
		runs:     make(map[string]*domain.Run),
		events:   make(map[string][]domain.BusinessEvent),
	}
}

func (r *flakyRepo) SaveRun(ctx context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return r.failWith
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *flakyRepo) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return run, nil
}

func (r *flakyRepo) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	return nil, nil
}

func (r *flakyRepo) SaveEvents(ctx context.Context, runID string, events []domain.BusinessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[runID] = events
	return nil
}

func (r *flakyRepo) ListEvents(ctx context.Context, runID string) ([]domain.BusinessEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[runID], nil
}

func (r *flakyRepo) Ping(ctx context.Context) error { return nil }
func (r *flakyRepo) Close() error                   { return nil }

func (r *flakyRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func runMessage(t *testing.T, id string, level domain.RiskLevel) []byte {
	t.Helper()
	rm := domain.RunMessage{
		Run: domain.Run{ID: id, Seed: 7, GeneratedAt: time.Now().UTC(), EventCount: 1},
		Assessment: &domain.Assessment{
			ID: "a-" + id, RunID: id, Level: level,
			Reasons: []string{fmt.Sprintf("level %s", level)},
		},
		Events: []domain.BusinessEvent{{
			ID:                 "TXN000001",
			Seq:                1,
			BusinessType:       domain.VaultTransport,
			Region:             domain.Huangpu,
			Scenario:           domain.ScenarioNormal,
			ScenarioMultiplier: domain.ScenarioNormal.Multiplier(),
			TimeWeight:         domain.TimeWeights[0],
		}},
	}
	payload, err := json.Marshal(rm)
	if err != nil {
		t.Fatalf("failed to encode run message: %v", err)
	}
	return payload
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	repo := newFlakyRepo(2, errors.New("database is locked"))
	w := NewWorker(eventBus, repo, risk.NewProcessor(), Config{MaxRetries: 5, RetryInterval: time.Millisecond})

	alerts := make(chan *domain.Assessment, 4)
	_, err := eventBus.Subscribe(ctx, domain.TopicRiskAlert, func(ctx context.Context, msg *domain.Message) error {
		var a domain.Assessment
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return err
		}
		alerts <- &a
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	t.Run("ArchivesWithRetry", func(t *testing.T) {
		_ = eventBus.Publish(ctx, domain.TopicBatchGenerated, runMessage(t, "run-1", domain.RiskNormal))

		waitFor(t, func() bool { return w.GetStats().Archived == 1 })

		if repo.callCount() != 3 {
			t.Errorf("expected 3 SaveRun attempts, got %d", repo.callCount())
		}
		run, err := repo.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("run not archived: %v", err)
		}
		if run.RiskLevel != domain.RiskNormal || run.ArchivedAt.IsZero() {
			t.Errorf("unexpected archived run: %+v", run)
		}
		events, _ := repo.ListEvents(ctx, "run-1")
		if len(events) != 1 {
			t.Errorf("expected 1 archived event, got %d", len(events))
		}
	})

	t.Run("HighRiskPublishesAlert", func(t *testing.T) {
		_ = eventBus.Publish(ctx, domain.TopicBatchGenerated, runMessage(t, "run-2", domain.RiskHigh))

		select {
		case a := <-alerts:
			if a.RunID != "run-2" || a.Level != domain.RiskHigh {
				t.Errorf("unexpected alert: %+v", a)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for alert")
		}

		run, _ := repo.GetRun(ctx, "run-2")
		if run == nil || run.RiskLevel != domain.RiskHigh || len(run.RiskReasons) != 1 {
			t.Errorf("expected high-risk run archived with reasons, got %+v", run)
		}
	})

	t.Run("MediumRiskDoesNotAlert", func(t *testing.T) {
		_ = eventBus.Publish(ctx, domain.TopicBatchGenerated, runMessage(t, "run-3", domain.RiskMedium))
		waitFor(t, func() bool { return w.GetStats().Archived == 3 })

		select {
		case a := <-alerts:
			t.Errorf("unexpected alert for %s", a.RunID)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicBatchGenerated {
			t.Errorf("unexpected subscriptions: %+v", stats)
		}
		if stats.Alerts != 1 {
			t.Errorf("expected 1 alert, got %d", stats.Alerts)
		}
	})
}

func TestWorkerInvalidInputIsNotRetried(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	repo := newFlakyRepo(100, fmt.Errorf("%w: run id is required", repository.ErrInvalidInput))
	w := NewWorker(eventBus, repo, nil, Config{MaxRetries: 5, RetryInterval: time.Millisecond})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	_ = eventBus.Publish(context.Background(), domain.TopicBatchGenerated, runMessage(t, "bad", domain.RiskNormal))
	waitFor(t, func() bool { return w.GetStats().Failed == 1 })

	if repo.callCount() != 1 {
		t.Errorf("expected a single attempt, got %d", repo.callCount())
	}
}

func TestWorkerMalformedPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, nil, DefaultConfig())
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	_ = eventBus.Publish(context.Background(), domain.TopicBatchGenerated, []byte("{"))
	waitFor(t, func() bool { return w.GetStats().Failed == 1 })
}

func TestWorkerStop(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, nil, DefaultConfig())
	_ = w.Start()
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected no subscriptions after stop")
	}
}

func TestRunMessageFixtureDecodes(t *testing.T) {
	var rm domain.RunMessage
	if err := json.Unmarshal(runMessage(t, "run-x", domain.RiskHigh), &rm); err != nil {
		t.Fatalf("fixture does not decode: %v", err)
	}
	if rm.Run.ID != "run-x" || len(rm.Events) != 1 || rm.Events[0].Scenario != domain.ScenarioNormal {
		t.Errorf("unexpected decoded message: %+v", rm)
	}
}
