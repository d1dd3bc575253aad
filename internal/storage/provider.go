// Package storage routes encrypted file bytes across interchangeable
// object-storage providers and normalizes their failures.
package storage

import "fmt"

// Provider is a closed enum of storage backends. Adding a provider means
// adding a variant here and handling it in every switch; the compiler keeps
// the dispatch exhaustive instead of a runtime string branch.
type Provider int

const (
	// ProviderStandard is the default general-purpose backend.
	ProviderStandard Provider = iota
	// ProviderBulk is the low-egress-cost backend preferred for large files.
	ProviderBulk
	// ProviderArchive is the cheapest backend with a hard per-file ceiling.
	ProviderArchive
)

// Providers lists all variants in declared priority order.
var Providers = []Provider{ProviderStandard, ProviderBulk, ProviderArchive}

func (p Provider) String() string {
	switch p {
	case ProviderStandard:
		return "standard"
	case ProviderBulk:
		return "bulk"
	case ProviderArchive:
		return "archive"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// ParseProvider maps a stored provider tag back to its variant.
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "standard":
		return ProviderStandard, nil
	case "bulk":
		return ProviderBulk, nil
	case "archive":
		return ProviderArchive, nil
	default:
		return 0, fmt.Errorf("unknown storage provider %q", s)
	}
}

// Spec describes a provider's routing characteristics.
type Spec struct {
	// Priority breaks ties; lower wins.
	Priority int
	// MaxFileSize is a hard per-file ceiling in bytes; 0 means unlimited.
	// A file over the ceiling rules the provider out entirely.
	MaxFileSize int64
	// EgressCostPerGB is the declared download cost used for large files.
	EgressCostPerGB float64
}

// DefaultSpecs is the routing policy used unless config overrides it.
func DefaultSpecs() map[Provider]Spec {
	return map[Provider]Spec{
		ProviderStandard: {Priority: 0, MaxFileSize: 0, EgressCostPerGB: 0.09},
		ProviderBulk:     {Priority: 1, MaxFileSize: 0, EgressCostPerGB: 0.01},
		ProviderArchive:  {Priority: 2, MaxFileSize: 256 << 20, EgressCostPerGB: 0.005},
	}
}
