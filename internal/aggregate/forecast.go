package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/cashops/internal/domain"
)

// DayStat is the rollup of one calendar day.
type DayStat struct {
	Day           time.Time       `json:"day"`
	Count         int             `json:"count"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	AvgCost       float64         `json:"avg_cost"`
	AvgEfficiency float64         `json:"avg_efficiency"`
	Anomalies     int             `json:"anomalies"`
}

// Daily groups events by the calendar day of their timestamp, oldest first.
// Days listed in days but without events appear with zero counts, so the
// series has no gaps.
func Daily(events []domain.BusinessEvent, days ...time.Time) []DayStat {
	type acc struct {
		stat  DayStat
		cost  float64
		effic float64
	}
	byDay := make(map[time.Time]*acc)
	get := func(day time.Time) *acc {
		a, ok := byDay[day]
		if !ok {
			a = &acc{stat: DayStat{Day: day, TotalCost: decimal.Zero}}
			byDay[day] = a
		}
		return a
	}
	for _, d := range days {
		get(truncateDay(d))
	}

	for i := range events {
		ev := &events[i]
		a := get(truncateDay(ev.Timestamp))
		a.stat.Count++
		a.stat.TotalCost = a.stat.TotalCost.Add(decimal.NewFromFloat(ev.TotalCost))
		a.cost += ev.TotalCost
		a.effic += ev.EfficiencyRatio
		if ev.IsAnomaly {
			a.stat.Anomalies++
		}
	}

	out := make([]DayStat, 0, len(byDay))
	for _, a := range byDay {
		if a.stat.Count > 0 {
			a.stat.AvgCost = a.cost / float64(a.stat.Count)
			a.stat.AvgEfficiency = a.effic / float64(a.stat.Count)
		}
		a.stat.TotalCost = a.stat.TotalCost.Round(2)
		out = append(out, a.stat)
	}
	slices.SortFunc(out, func(a, b DayStat) int { return a.Day.Compare(b.Day) })
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MovingAverage projects horizon steps ahead, each step the mean of the
// previous window values (observed or projected).
func MovingAverage(series []float64, window, horizon int) []float64 {
	if len(series) == 0 || horizon <= 0 {
		return nil
	}
	window = max(1, min(window, len(series)))

	buf := slices.Clone(series)
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		var sum float64
		for _, v := range buf[len(buf)-window:] {
			sum += v
		}
		out[h] = sum / float64(window)
		buf = append(buf, out[h])
	}
	return out
}

// Trend is a least-squares line over the series index.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At evaluates the line at index x.
func (t Trend) At(x float64) float64 {
	return t.Intercept + t.Slope*x
}

// LinearTrend fits a line to the series. A single point gives a flat line.
func LinearTrend(series []float64) Trend {
	n := float64(len(series))
	if n == 0 {
		return Trend{}
	}
	if n == 1 {
		return Trend{Intercept: series[0]}
	}

	var sx, sy, sxx, sxy float64
	for i, y := range series {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return Trend{Intercept: sy / n}
	}
	slope := (n*sxy - sx*sy) / den
	return Trend{Slope: slope, Intercept: (sy - slope*sx) / n}
}

// ForecastPoint is the projection for one future day.
type ForecastPoint struct {
	Day           time.Time `json:"day"`
	MovingAverage float64   `json:"moving_average"`
	Trend         float64   `json:"trend"`
}

// Forecast projects daily total cost and event count.
type Forecast struct {
	Window    int             `json:"window"`
	Horizon   int             `json:"horizon"`
	CostTrend Trend           `json:"cost_trend"`
	Cost      []ForecastPoint `json:"cost"`
	Volume    []ForecastPoint `json:"volume"`
}

// Project builds the forecast for the days after the last entry in history.
// Trend values are floored at zero.
func Project(history []DayStat, window, horizon int) *Forecast {
	f := &Forecast{Window: window, Horizon: horizon}
	if len(history) == 0 || horizon <= 0 {
		return f
	}

	cost := make([]float64, len(history))
	volume := make([]float64, len(history))
	for i, d := range history {
		cost[i] = d.TotalCost.InexactFloat64()
		volume[i] = float64(d.Count)
	}

	f.CostTrend = LinearTrend(cost)
	volumeTrend := LinearTrend(volume)
	costMA := MovingAverage(cost, window, horizon)
	volumeMA := MovingAverage(volume, window, horizon)

	last := history[len(history)-1].Day
	n := float64(len(history))
	for h := 0; h < horizon; h++ {
		day := last.AddDate(0, 0, h+1)
		x := n + float64(h)
		f.Cost = append(f.Cost, ForecastPoint{
			Day:           day,
			MovingAverage: costMA[h],
			Trend:         max(0, f.CostTrend.At(x)),
		})
		f.Volume = append(f.Volume, ForecastPoint{
			Day:           day,
			MovingAverage: volumeMA[h],
			Trend:         max(0, volumeTrend.At(x)),
		})
	}
	return f
}

// SortedByCost returns a copy of events ordered by total cost, highest first.
func SortedByCost(events []domain.BusinessEvent) []domain.BusinessEvent {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b domain.BusinessEvent) int {
		return cmp.Compare(b.TotalCost, a.TotalCost)
	})
	return out
}
