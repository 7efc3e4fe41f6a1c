// Package source holds event sources other than the simulator.
package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opensource-finance/cashops/internal/costing"
	"github.com/opensource-finance/cashops/internal/domain"
)

// ErrRealDataUnavailable is returned until an authoritative feed is wired in.
var ErrRealDataUnavailable = errors.New("real data source not connected")

// AnomalyRules are externally maintained anomaly detection parameters.
type AnomalyRules struct {
	CostZScore     float64 `json:"cost_z_score"`
	DurationZScore float64 `json:"duration_z_score"`
	MinEfficiency  float64 `json:"min_efficiency"`
	MaxOverageKm   float64 `json:"max_overage_km"`
}

// RealDataSource is the seam for transactional data from the operations
// system. Events it returns must have the same shape as simulated ones.
type RealDataSource struct {
	Endpoint string
}

// NewRealDataSource creates an unconnected source.
func NewRealDataSource(endpoint string) *RealDataSource {
	return &RealDataSource{Endpoint: endpoint}
}

// Events implements domain.EventSource.
func (r *RealDataSource) Events(ctx context.Context, n int) (*domain.Batch, error) {
	slog.Warn("real data source requested but not connected", "endpoint", r.Endpoint, "n", n)
	return nil, ErrRealDataUnavailable
}

// Rates returns the contracted tariff.
func (r *RealDataSource) Rates(ctx context.Context) (costing.Rates, error) {
	return costing.Rates{}, ErrRealDataUnavailable
}

// AnomalyRules returns the externally maintained anomaly parameters.
func (r *RealDataSource) AnomalyRules(ctx context.Context) (AnomalyRules, error) {
	return AnomalyRules{}, ErrRealDataUnavailable
}

var _ domain.EventSource = (*RealDataSource)(nil)
