// Package repository archives generated runs in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/opensource-finance/cashops/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	tableRuns      = "runs"
	tableRunEvents = "run_events"

	defaultListLimit = 50
	maxListLimit     = 500

	// Rows per multi-row insert; keeps the placeholder count well under both
	// drivers' limits.
	insertBatchSize = 200
)

var runColumns = []string{
	"id", "seed", "generated_at", "event_count", "total_cost",
	"anomaly_rate", "avg_efficiency", "risk_level", "risk_reasons", "archived_at",
}

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	t, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	db, err := open(t, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLRepository{
		db:      db,
		driver:  cfg.Driver,
		builder: sq.StatementBuilder.PlaceholderFormat(t.placeholder),
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun inserts or replaces a run summary.
func (r *SQLRepository) SaveRun(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	reasons, err := json.Marshal(run.RiskReasons)
	if err != nil {
		return fmt.Errorf("failed to encode risk reasons: %w", err)
	}

	_, err = r.builder.Insert(tableRuns).
		Columns(runColumns...).
		Values(
			run.ID, strconv.FormatUint(run.Seed, 10), run.GeneratedAt.UTC(),
			run.EventCount, run.TotalCost, run.AnomalyRate, run.AvgEfficiency,
			string(run.RiskLevel), string(reasons), run.ArchivedAt.UTC(),
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			event_count = excluded.event_count,
			total_cost = excluded.total_cost,
			anomaly_rate = excluded.anomaly_rate,
			avg_efficiency = excluded.avg_efficiency,
			risk_level = excluded.risk_level,
			risk_reasons = excluded.risk_reasons,
			archived_at = excluded.archived_at`).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run summary by ID.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	row := r.builder.Select(runColumns...).
		From(tableRuns).
		Where(sq.Eq{"id": runID}).
		RunWith(r.db).
		QueryRowContext(ctx)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recently generated runs first.
func (r *SQLRepository) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	rows, err := r.builder.Select(runColumns...).
		From(tableRuns).
		OrderBy("generated_at DESC", "id").
		Limit(uint64(limit)).
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Run, error) {
	var run domain.Run
	var seed, level, reasons string

	if err := s.Scan(
		&run.ID, &seed, &run.GeneratedAt, &run.EventCount, &run.TotalCost,
		&run.AnomalyRate, &run.AvgEfficiency, &level, &reasons, &run.ArchivedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("run %s has malformed seed %q: %w", run.ID, seed, err)
	}
	run.Seed = parsed
	run.RiskLevel = domain.RiskLevel(level)
	if err := json.Unmarshal([]byte(reasons), &run.RiskReasons); err != nil {
		return nil, fmt.Errorf("failed to parse risk reasons for %s: %w", run.ID, err)
	}
	return &run, nil
}

// SaveEvents replaces the events archived for a run. The write is atomic, so a
// retried archive never leaves a partial or duplicated event list.
func (r *SQLRepository) SaveEvents(ctx context.Context, runID string, events []domain.BusinessEvent) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = r.builder.Delete(tableRunEvents).
		Where(sq.Eq{"run_id": runID}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear events for %s: %w", runID, err)
	}

	for start := 0; start < len(events); start += insertBatchSize {
		end := min(start+insertBatchSize, len(events))

		insert := r.builder.Insert(tableRunEvents).Columns(
			"run_id", "seq", "id", "business_type", "region",
			"timestamp", "total_cost", "is_anomaly", "payload",
		)
		for i := start; i < end; i++ {
			ev := &events[i]
			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
			}
			anomaly := 0
			if ev.IsAnomaly {
				anomaly = 1
			}
			insert = insert.Values(
				runID, ev.Seq, ev.ID, ev.BusinessType.String(), string(ev.Region),
				ev.Timestamp.UTC(), ev.TotalCost, anomaly, string(payload),
			)
		}

		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to save events for %s: %w", runID, err)
		}
	}

	return tx.Commit()
}

// ListEvents returns a run's events in sequence order. An unknown run yields
// an empty list.
func (r *SQLRepository) ListEvents(ctx context.Context, runID string) ([]domain.BusinessEvent, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	rows, err := r.builder.Select("payload").
		From(tableRunEvents).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.BusinessEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev domain.BusinessEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("failed to parse archived event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

var _ domain.Repository = (*SQLRepository)(nil)
