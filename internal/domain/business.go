package domain

import (
	"fmt"
	"strings"
)

// BusinessType is the closed set of cash-logistics work categories.
// The zero value is invalid so an unset field is never mistaken for a real type.
type BusinessType uint8

const (
	// VaultTransport moves cash between the central vault and a branch.
	VaultTransport BusinessType = iota + 1

	// OnsiteCollection picks cash up at a customer site.
	OnsiteCollection

	// VaultTransfer is the dedicated vault-to-vault line out of the depot.
	VaultTransfer

	// CashCounting happens inside the counting center and has no travel leg.
	CashCounting
)

// AllBusinessTypes returns the business types in their canonical order.
func AllBusinessTypes() []BusinessType {
	return []BusinessType{VaultTransport, OnsiteCollection, VaultTransfer, CashCounting}
}

// String returns the wire name of the business type.
func (b BusinessType) String() string {
	switch b {
	case VaultTransport:
		return "vault_transport"
	case OnsiteCollection:
		return "onsite_collection"
	case VaultTransfer:
		return "vault_transfer"
	case CashCounting:
		return "cash_counting"
	default:
		return fmt.Sprintf("business_type(%d)", uint8(b))
	}
}

// Valid reports whether b is one of the four known business types.
func (b BusinessType) Valid() bool {
	return b >= VaultTransport && b <= CashCounting
}

// Travels reports whether the business type has a road leg.
func (b BusinessType) Travels() bool {
	switch b {
	case VaultTransport, OnsiteCollection, VaultTransfer:
		return true
	case CashCounting:
		return false
	default:
		panic(fmt.Sprintf("domain: unknown business type %d", uint8(b)))
	}
}

// RouteBased reports whether the type is costed by the route calculator.
func (b BusinessType) RouteBased() bool {
	return b == VaultTransport || b == OnsiteCollection
}

// ParseBusinessType parses a wire name. Matching is case-insensitive and
// accepts hyphens in place of underscores.
func ParseBusinessType(s string) (BusinessType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, b := range AllBusinessTypes() {
		if b.String() == norm {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown business type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b BusinessType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid business type %d", uint8(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BusinessType) UnmarshalText(text []byte) error {
	parsed, err := ParseBusinessType(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// CountingMode tags how a cash counting job was staffed.
type CountingMode string

const (
	CountingNone  CountingMode = ""
	CountingLarge CountingMode = "large"
	CountingSmall CountingMode = "small"
)
