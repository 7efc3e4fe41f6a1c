package simulate

import (
	"fmt"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/sampling"
)

// AmountModel draws the money amount of an event. Returning 0 for a vault
// transfer lets the transfer calculator supply its own amount.
type AmountModel interface {
	Amount(bt domain.BusinessType, s *sampling.Sampler) float64
}

// AmountFunc adapts a function to AmountModel.
type AmountFunc func(bt domain.BusinessType, s *sampling.Sampler) float64

// Amount calls f.
func (f AmountFunc) Amount(bt domain.BusinessType, s *sampling.Sampler) float64 {
	return f(bt, s)
}

// FixedAmount returns the same amount for every event.
func FixedAmount(amount float64) AmountModel {
	return AmountFunc(func(domain.BusinessType, *sampling.Sampler) float64 {
		return amount
	})
}

// DefaultAmounts is the reference amount distribution.
type DefaultAmounts struct{}

const (
	largeCountingShare = 0.3
	routeAmountMean    = 50_000.0
	routeAmountMin     = 1_000.0
	routeAmountMax     = 500_000.0
)

// Amount implements AmountModel.
func (DefaultAmounts) Amount(bt domain.BusinessType, s *sampling.Sampler) float64 {
	switch bt {
	case domain.CashCounting:
		if s.Chance(largeCountingShare) {
			return s.Uniform(1_000_000, 10_000_000)
		}
		return s.Uniform(10_000, 800_000)
	case domain.VaultTransfer:
		return 0
	case domain.VaultTransport, domain.OnsiteCollection:
		return s.TruncatedExponential(routeAmountMean, routeAmountMin, routeAmountMax)
	default:
		panic(fmt.Sprintf("simulate: unknown business type %d", uint8(bt)))
	}
}
