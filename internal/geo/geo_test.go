package geo

import (
	"testing"

	"github.com/opensource-finance/cashops/internal/domain"
)

func TestEveryRegionResolves(t *testing.T) {
	for _, region := range domain.AllRegions() {
		t.Run(string(region), func(t *testing.T) {
			tier, ok := LookupTier(region)
			if !ok {
				t.Fatalf("region %s missing from tier table", region)
			}
			if tier != domain.TierNear && tier != domain.TierMedium && tier != domain.TierFar {
				t.Errorf("unexpected tier %q", tier)
			}

			if km := DepotDistance(region); km <= 0 {
				t.Errorf("expected positive depot distance, got %v", km)
			}

			for _, bt := range domain.AllBusinessTypes() {
				std := StandardDistance(tier, bt)
				if bt == domain.CashCounting {
					if std != 0 {
						t.Errorf("cash counting standard distance should be 0, got %v", std)
					}
					continue
				}
				if std <= 0 {
					t.Errorf("%s: expected positive standard distance, got %v", bt, std)
				}
			}
		})
	}
}

func TestUnknownRegionFallsBack(t *testing.T) {
	unknown := domain.Region("Atlantis")

	if _, ok := LookupTier(unknown); ok {
		t.Error("expected LookupTier to report a miss")
	}

	if got := RegionToTier(unknown); got != domain.DefaultTier {
		t.Errorf("expected default tier %q, got %q", domain.DefaultTier, got)
	}

	if km := DepotDistance(unknown); km <= 0 {
		t.Errorf("expected a positive fallback distance, got %v", km)
	}
}

func TestStandardDistanceTable(t *testing.T) {
	tests := []struct {
		tier domain.AreaTier
		bt   domain.BusinessType
		want float64
	}{
		{domain.TierNear, domain.VaultTransport, 8},
		{domain.TierNear, domain.OnsiteCollection, 10},
		{domain.TierMedium, domain.VaultTransport, 30},
		{domain.TierMedium, domain.OnsiteCollection, 35},
		{domain.TierFar, domain.VaultTransport, 45},
		{domain.TierFar, domain.OnsiteCollection, 50},
		{domain.TierFar, domain.VaultTransfer, VaultTransferDistanceKm},
		{domain.TierNear, domain.CashCounting, 0},
		{domain.TierDedicated, domain.VaultTransfer, VaultTransferDistanceKm},
		{domain.AreaTier("bogus"), domain.VaultTransport, 30},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+"/"+tt.bt.String(), func(t *testing.T) {
			if got := StandardDistance(tt.tier, tt.bt); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStandardDistanceUnknownTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown business type")
		}
	}()
	StandardDistance(domain.TierNear, domain.BusinessType(99))
}

func TestTable(t *testing.T) {
	rows := Table()
	if len(rows) != 16 {
		t.Fatalf("expected 16 regions, got %d", len(rows))
	}
	for _, row := range rows {
		if len(row.StandardKm) != 4 {
			t.Errorf("%s: expected 4 standard distances, got %d", row.Region, len(row.StandardKm))
		}
	}
}
