package simulate

import (
	"fmt"

	"github.com/opensource-finance/cashops/internal/domain"
)

// ConfigFrom translates the file/env configuration into a generator Config.
// Weight maps are keyed by wire names; empty maps keep the defaults.
func ConfigFrom(sc domain.SimulationConfig) (Config, error) {
	cfg := Config{
		AnomalyRate: sc.AnomalyRate,
		Workers:     sc.Workers,
		Seed:        sc.Seed,
	}

	if len(sc.BusinessWeights) > 0 {
		cfg.BusinessWeights = make(map[domain.BusinessType]float64, len(sc.BusinessWeights))
		for name, w := range sc.BusinessWeights {
			bt, err := domain.ParseBusinessType(name)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			cfg.BusinessWeights[bt] = w
		}
	}

	if len(sc.RegionWeights) > 0 {
		cfg.RegionWeights = make(map[domain.Region]float64, len(sc.RegionWeights))
		for name, w := range sc.RegionWeights {
			region, err := domain.ParseRegion(name)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			cfg.RegionWeights[region] = w
		}
	}

	return cfg, nil
}
