package costing

import (
	"fmt"
	"math"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// MinDurationMinutes is the shortest duration any trip may report.
const MinDurationMinutes = 25.0

// TrafficBand is the range of the per-event traffic factor.
var TrafficBand = Band{Lo: 0.9, Hi: 1.4}

var durationJitter = Band{Lo: 0.92, Hi: 1.08}

// speedBucket is one distance band of the average-speed model. Short trips
// are inner-city and slow; long trips run on highways.
type speedBucket struct {
	maxKm    float64
	speedKmh float64
	delay    Band
}

var speedBuckets = []speedBucket{
	{maxKm: 15, speedKmh: 22, delay: Band{Lo: 5, Hi: 15}},
	{maxKm: 40, speedKmh: 32, delay: Band{Lo: 8, Hi: 20}},
	{maxKm: math.Inf(1), speedKmh: 48, delay: Band{Lo: 10, Hi: 25}},
}

func operationBand(bt domain.BusinessType) Band {
	switch bt {
	case domain.VaultTransport:
		return Band{Lo: 15, Hi: 30}
	case domain.OnsiteCollection:
		return Band{Lo: 20, Hi: 40}
	case domain.VaultTransfer:
		return Band{Lo: 20, Hi: 35}
	case domain.CashCounting:
		return Band{Lo: 30, Hi: 90}
	default:
		panic(fmt.Sprintf("costing: unknown business type %d", uint8(bt)))
	}
}

func bucketFor(distanceKm float64) speedBucket {
	for _, b := range speedBuckets {
		if distanceKm < b.maxKm {
			return b
		}
	}
	return speedBuckets[len(speedBuckets)-1]
}

// EstimateDuration returns the elapsed minutes for a trip: driving time at the
// bucket's average speed, on-site operation time and a traffic delay, scaled
// by trafficFactor and a small jitter. The result is never below
// MinDurationMinutes.
func EstimateDuration(distanceKm float64, bt domain.BusinessType, trafficFactor float64, s *sampling.Sampler) float64 {
	if distanceKm < 0 {
		distanceKm = 0
	}
	if trafficFactor <= 0 {
		trafficFactor = 1
	}

	bucket := bucketFor(distanceKm)
	driving := distanceKm / bucket.speedKmh * 60
	operation := operationBand(bt).Draw(s)
	delay := bucket.delay.Draw(s)

	minutes := (driving + operation + delay) * trafficFactor * durationJitter.Draw(s)
	return math.Max(MinDurationMinutes, minutes)
}
