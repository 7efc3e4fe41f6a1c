// Cashsim generates a simulated batch offline and prints its summary.
//
// Usage:
//
//	go run ./cmd/cashsim -n 1000 -seed 42
//	go run ./cmd/cashsim -n 500 -csv batch.csv
//	go run ./cmd/cashsim -days 30
//
// With -csv the batch is written as CSV ("-" for stdout). With -days the
// daily rollup of that many days of history is printed instead of a batch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/opensource-finance/cashops/internal/aggregate"
	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/export"
	"github.com/opensource-finance/cashops/internal/risk"
	"github.com/opensource-finance/cashops/internal/rules"
	"github.com/opensource-finance/cashops/internal/simulate"
)

func main() {
	var (
		n       = flag.Int("n", 1000, "number of events to generate")
		seed    = flag.Uint64("seed", 0, "seed for a reproducible run (0 derives one from the clock)")
		workers = flag.Int("workers", 0, "concurrent generation chunks (0 = GOMAXPROCS)")
		anomaly = flag.Float64("anomaly-rate", simulate.DefaultAnomalyRate, "share of events flagged as anomalies")
		csvPath = flag.String("csv", "", "write the batch as CSV to this path (\"-\" for stdout)")
		days    = flag.Int("days", 0, "print the daily rollup of this many days of history")
		top     = flag.Int("top", 5, "number of most expensive events to list")
		jsonOut = flag.Bool("json", false, "print the report as JSON")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	gen, err := simulate.New(simulate.Config{
		Seed:        *seed,
		AnomalyRate: *anomaly,
		Workers:     *workers,
	})
	if err != nil {
		fatal("invalid simulation settings", err)
	}

	if *days > 0 {
		if err := printHistory(ctx, os.Stdout, gen, *days); err != nil {
			fatal("history failed", err)
		}
		return
	}

	batch, err := gen.Generate(ctx, *n)
	if err != nil {
		fatal("generation failed", err)
	}

	if *csvPath != "" {
		if err := writeCSV(*csvPath, batch.Events); err != nil {
			fatal("csv export failed", err)
		}
		if *csvPath == "-" {
			return
		}
	}

	report := aggregate.Build(batch.Events)
	assessment, err := assess(ctx, batch.RunID, report)
	if err != nil {
		fatal("risk assessment failed", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"run_id":     batch.RunID,
			"seed":       batch.Seed,
			"report":     report,
			"assessment": assessment,
		}); err != nil {
			fatal("encode failed", err)
		}
		return
	}

	printSummary(os.Stdout, batch, report, assessment)
	printTop(os.Stdout, aggregate.SortedByCost(batch.Events), *top)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func writeCSV(path string, events []domain.BusinessEvent) error {
	if path == "-" {
		return export.WriteCSV(os.Stdout, events)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteCSV(f, events); err != nil {
		f.Close()
		return err
	}
	slog.Info("batch exported", "path", path, "events", len(events))
	return f.Close()
}

// assess runs the shipped risk rules over the report.
func assess(ctx context.Context, runID string, report *aggregate.Report) (*domain.Assessment, error) {
	engine, err := rules.NewEngine(0)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(rules.DefaultRiskRules()); err != nil {
		return nil, err
	}
	return risk.NewProcessor().Assess(ctx, engine, runID, report.Metrics())
}

func printSummary(w io.Writer, batch *domain.Batch, r *aggregate.Report, a *domain.Assessment) {
	fmt.Fprintf(w, "Run %s (seed %d)\n", batch.RunID, batch.Seed)
	fmt.Fprintf(w, "  Events:          %d\n", r.EventCount)
	fmt.Fprintf(w, "  Total cost:      %s\n", r.TotalCost.StringFixed(2))
	fmt.Fprintf(w, "  Average cost:    %.2f\n", r.AvgCost)
	fmt.Fprintf(w, "  Avg duration:    %.1f min\n", r.AvgDuration)
	fmt.Fprintf(w, "  Avg efficiency:  %.3f\n", r.AvgEfficiency)
	fmt.Fprintf(w, "  Anomaly rate:    %.1f%%\n", r.AnomalyRate*100)
	fmt.Fprintf(w, "  Risk level:      %s\n", a.Level)
	for _, reason := range a.Reasons {
		fmt.Fprintf(w, "    - %s\n", reason)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT\tSHARE\tTOTAL\tAVG\tAVG MIN\tANOMALIES")
	for _, g := range r.ByBusinessType {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%s\t%.2f\t%.1f\t%d\n",
			g.Key, g.Count, g.Share*100, g.TotalCost.StringFixed(2), g.AvgCost, g.AvgDuration, g.Anomalies)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printTop(w io.Writer, sorted []domain.BusinessEvent, n int) {
	if n <= 0 || len(sorted) == 0 {
		return
	}
	fmt.Fprintf(w, "Top %d by cost\n", min(n, len(sorted)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tREGION\tSCENARIO\tTOTAL")
	for _, ev := range sorted[:min(n, len(sorted))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\n", ev.ID, ev.BusinessType, ev.Region, ev.Scenario, ev.TotalCost)
	}
	tw.Flush()
}

func printHistory(ctx context.Context, w io.Writer, gen *simulate.Generator, days int) error {
	history, err := gen.GenerateHistory(ctx, days)
	if err != nil {
		return err
	}

	var events []domain.BusinessEvent
	calendar := make([]time.Time, 0, len(history))
	for _, day := range history {
		events = append(events, day.Events...)
		calendar = append(calendar, day.Day)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tEVENTS\tTOTAL\tAVG\tEFFICIENCY\tANOMALIES")
	for _, d := range aggregate.Daily(events, calendar...) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%.3f\t%d\n",
			d.Day.Format("2006-01-02"), d.Count, d.TotalCost.StringFixed(2), d.AvgCost, d.AvgEfficiency, d.Anomalies)
	}
	return tw.Flush()
}
