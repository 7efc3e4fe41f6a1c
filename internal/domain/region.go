package domain

import (
	"fmt"
	"strings"
)

// Region is one of the municipal districts served from the depot.
type Region string

// The sixteen districts of the service area.
const (
	Huangpu   Region = "Huangpu"
	Xuhui     Region = "Xuhui"
	Changning Region = "Changning"
	Jingan    Region = "Jingan"
	Putuo     Region = "Putuo"
	Hongkou   Region = "Hongkou"
	Yangpu    Region = "Yangpu"
	Minhang   Region = "Minhang"
	Baoshan   Region = "Baoshan"
	Jiading   Region = "Jiading"
	Pudong    Region = "Pudong"
	Jinshan   Region = "Jinshan"
	Songjiang Region = "Songjiang"
	Qingpu    Region = "Qingpu"
	Fengxian  Region = "Fengxian"
	Chongming Region = "Chongming"
)

// DepotRegion is where the central vault sits; vault transfers always
// originate here.
const DepotRegion = Pudong

// AllRegions returns the districts in table order.
func AllRegions() []Region {
	return []Region{
		Huangpu, Xuhui, Changning, Jingan, Putuo, Hongkou, Yangpu,
		Minhang, Baoshan, Jiading, Pudong,
		Jinshan, Songjiang, Qingpu, Fengxian, Chongming,
	}
}

// ParseRegion resolves a district name case-insensitively.
func ParseRegion(s string) (Region, error) {
	name := strings.TrimSpace(s)
	for _, r := range AllRegions() {
		if strings.EqualFold(string(r), name) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// AreaTier classifies a region by its distance band from the depot.
type AreaTier string

const (
	TierNear   AreaTier = "near"
	TierMedium AreaTier = "medium"
	TierFar    AreaTier = "far"

	// TierDedicated marks the fixed vault transfer line, which has no tier
	// of its own.
	TierDedicated AreaTier = "dedicated"

	// TierNone is reported for cash counting.
	TierNone AreaTier = "none"
)

// DefaultTier is used when a region is not in the classification table.
const DefaultTier = TierMedium
