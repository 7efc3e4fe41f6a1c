package simulate

import (
	"time"

	"github.com/opensource-finance/cashops/internal/sampling"
)

// Business hours run 07:00 to 18:00 with a morning and an afternoon peak and
// almost nothing over lunch.
var (
	businessHours = []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}
	hourChoice    = sampling.MustWeighted([]float64{
		0.06, 0.12, 0.14, 0.13, 0.08, 0.01, 0.07, 0.13, 0.12, 0.09, 0.05,
	})
)

func drawTimestamp(day time.Time, s *sampling.Sampler) time.Time {
	hour := businessHours[hourChoice.Pick(s)]
	offset := time.Duration(s.IntN(3600)) * time.Second
	return day.Add(time.Duration(hour)*time.Hour + offset)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
