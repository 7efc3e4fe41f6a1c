package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// Daily volume of the historical workload.
const (
	historyMeanPerDay = 40
	historyMaxPerDay  = 200
)

// DayBatch is the workload of one calendar day.
type DayBatch struct {
	Day    time.Time              `json:"day"`
	Events []domain.BusinessEvent `json:"events"`
}

// GenerateHistory produces a Poisson-sized batch for each of the last days
// calendar days, oldest first. Today is the last entry.
func (g *Generator) GenerateHistory(ctx context.Context, days int) ([]DayBatch, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: history needs at least one day, got %d", ErrInvalidConfig, days)
	}

	now := g.clock()
	today := startOfDay(now)
	s := sampling.New(g.nextSeed())

	out := make([]DayBatch, 0, days)
	for i := days - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day := today.AddDate(0, 0, -i)
		n := s.Poisson(historyMeanPerDay, historyMaxPerDay)
		if n == 0 {
			out = append(out, DayBatch{Day: day})
			continue
		}

		batch, err := g.generate(ctx, n, s.Uint64(), day, now)
		if err != nil {
			return nil, fmt.Errorf("history day %s: %w", day.Format(time.DateOnly), err)
		}
		out = append(out, DayBatch{Day: day, Events: batch.Events})
	}
	return out, nil
}
