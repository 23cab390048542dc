package domain

import "github.com/ethereum/go-ethereum/common"

// Capability is a permission held by an address in the reputation registry.
type Capability string

const (
	// CapabilityAdmin may grant factory capability.
	CapabilityAdmin Capability = "admin"

	// CapabilityFactory provisions groups and may grant reporter capability.
	CapabilityFactory Capability = "factory"

	// CapabilityReporter may record settlement and dispute outcomes.
	CapabilityReporter Capability = "reporter"
)

var validCapabilities = map[Capability]bool{
	CapabilityAdmin:    true,
	CapabilityFactory:  true,
	CapabilityReporter: true,
}

// IsValid checks if the capability is known.
func (c Capability) IsValid() bool {
	return validCapabilities[c]
}

// Grant is one row of the access-control table.
type Grant struct {
	Address    common.Address
	Capability Capability
	GrantedBy  common.Address
}

// CapabilitySet is the set of capabilities held by one address.
type CapabilitySet map[Capability]bool

// Has reports whether any of caps is held.
func (s CapabilitySet) Has(caps ...Capability) bool {
	for _, c := range caps {
		if s[c] {
			return true
		}
	}
	return false
}
