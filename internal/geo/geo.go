// Package geo holds the static geography of the service area: how far each
// district is from the depot, which distance tier it falls into, and the
// overage-free distance allowance per tier and business type.
package geo

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/cashops/internal/domain"
)

// VaultTransferDistanceKm is the fixed length of the depot vault transfer line.
const VaultTransferDistanceKm = 15.0

// depotDistanceKm is the road distance from the depot to each district.
var depotDistanceKm = map[domain.Region]float64{
	domain.Huangpu:   12,
	domain.Xuhui:     18,
	domain.Changning: 22,
	domain.Jingan:    15,
	domain.Putuo:     24,
	domain.Hongkou:   14,
	domain.Yangpu:    16,
	domain.Minhang:   28,
	domain.Baoshan:   32,
	domain.Jiading:   42,
	domain.Pudong:    10,
	domain.Jinshan:   68,
	domain.Songjiang: 48,
	domain.Qingpu:    55,
	domain.Fengxian:  45,
	domain.Chongming: 75,
}

var regionTier = map[domain.Region]domain.AreaTier{
	domain.Huangpu:   domain.TierNear,
	domain.Xuhui:     domain.TierNear,
	domain.Changning: domain.TierNear,
	domain.Jingan:    domain.TierNear,
	domain.Putuo:     domain.TierNear,
	domain.Hongkou:   domain.TierNear,
	domain.Yangpu:    domain.TierNear,
	domain.Minhang:   domain.TierMedium,
	domain.Baoshan:   domain.TierMedium,
	domain.Jiading:   domain.TierMedium,
	domain.Pudong:    domain.TierMedium,
	domain.Jinshan:   domain.TierFar,
	domain.Songjiang: domain.TierFar,
	domain.Qingpu:    domain.TierFar,
	domain.Fengxian:  domain.TierFar,
	domain.Chongming: domain.TierFar,
}

type tierAllowance struct {
	vaultTransport   float64
	onsiteCollection float64
}

var standardKm = map[domain.AreaTier]tierAllowance{
	domain.TierNear:   {vaultTransport: 8, onsiteCollection: 10},
	domain.TierMedium: {vaultTransport: 30, onsiteCollection: 35},
	domain.TierFar:    {vaultTransport: 45, onsiteCollection: 50},
}

// tierFallbackKm is the depot distance assumed for a region missing from the
// distance table.
var tierFallbackKm = map[domain.AreaTier]float64{
	domain.TierNear:   15,
	domain.TierMedium: 28,
	domain.TierFar:    55,
}

// LookupTier returns the tier of a known region.
func LookupTier(region domain.Region) (domain.AreaTier, bool) {
	tier, ok := regionTier[region]
	return tier, ok
}

// RegionToTier classifies a region. Unknown regions resolve to
// domain.DefaultTier and are logged, never rejected.
func RegionToTier(region domain.Region) domain.AreaTier {
	if tier, ok := regionTier[region]; ok {
		return tier
	}
	slog.Warn("region not in tier table, using default tier",
		"region", region,
		"default_tier", domain.DefaultTier,
	)
	return domain.DefaultTier
}

// StandardDistance returns the overage-free allowance in km.
// Cash counting has no travel and always gets 0; vault transfers run on the
// dedicated line regardless of tier.
func StandardDistance(tier domain.AreaTier, bt domain.BusinessType) float64 {
	switch bt {
	case domain.CashCounting:
		return 0
	case domain.VaultTransfer:
		return VaultTransferDistanceKm
	case domain.VaultTransport, domain.OnsiteCollection:
		allowance, ok := standardKm[tier]
		if !ok {
			slog.Warn("tier has no distance allowance, using default tier",
				"tier", tier,
				"default_tier", domain.DefaultTier,
			)
			allowance = standardKm[domain.DefaultTier]
		}
		if bt == domain.VaultTransport {
			return allowance.vaultTransport
		}
		return allowance.onsiteCollection
	default:
		panic(fmt.Sprintf("geo: unknown business type %d", uint8(bt)))
	}
}

// DepotDistance returns the road distance from the depot to the region.
// Unknown regions get the midpoint distance of the default tier.
func DepotDistance(region domain.Region) float64 {
	if km, ok := depotDistanceKm[region]; ok {
		return km
	}
	slog.Warn("region not in distance table, using tier fallback",
		"region", region,
	)
	return tierFallbackKm[RegionToTier(region)]
}

// RegionInfo is the exported view of one row of the geography tables.
type RegionInfo struct {
	Region          domain.Region      `json:"region"`
	Tier            domain.AreaTier    `json:"tier"`
	DepotDistanceKm float64            `json:"depot_distance_km"`
	StandardKm      map[string]float64 `json:"standard_km"`
}

// Table returns every known region with its tier and allowances.
func Table() []RegionInfo {
	regions := domain.AllRegions()
	out := make([]RegionInfo, 0, len(regions))
	for _, r := range regions {
		tier := regionTier[r]
		std := make(map[string]float64, 4)
		for _, bt := range domain.AllBusinessTypes() {
			std[bt.String()] = StandardDistance(tier, bt)
		}
		out = append(out, RegionInfo{
			Region:          r,
			Tier:            tier,
			DepotDistanceKm: depotDistanceKm[r],
			StandardKm:      std,
		})
	}
	return out
}
