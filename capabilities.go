package passport

import (
	"context"
	"slices"
)

// Capability names carried in the roles claim.
const (
	CapabilityUser       = "USER"
	CapabilityAdmin      = "ADMIN"
	CapabilitySuperAdmin = "SUPER_ADMIN"
)

// DefaultCapabilities is the fixed set every account currently receives.
// There is no per-account role storage yet, so everyone is granted all
// three; swap the CapabilitiesFunc on the service to change that.
func DefaultCapabilities() []string {
	return []string{CapabilityUser, CapabilityAdmin, CapabilitySuperAdmin}
}

// CapabilitiesFunc returns the capabilities to embed in a token for an account.
type CapabilitiesFunc func(ctx context.Context, account *Account) ([]string, error)

// FixedCapabilities grants DefaultCapabilities to every account.
func FixedCapabilities() CapabilitiesFunc {
	return StaticCapabilities(DefaultCapabilities()...)
}

// StaticCapabilities grants the same list to every account.
func StaticCapabilities(caps ...string) CapabilitiesFunc {
	return func(ctx context.Context, account *Account) ([]string, error) {
		return slices.Clone(caps), nil
	}
}

// HasCapability reports whether want is in caps.
func HasCapability(caps []string, want string) bool {
	return slices.Contains(caps, want)
}
