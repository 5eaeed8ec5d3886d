package provider

import (
	"context"
	"strings"
)

// DefaultProfile is the reserved profile every other profile falls back to.
const DefaultProfile = "default"

// Provider is the capability interface implemented by every secret backend.
//
// Implementations must be safe for use by a single goroutine at a time; the
// engine never calls a provider concurrently.
type Provider interface {
	// Name returns the scheme the provider is registered under, for
	// example "keyring" or "onepassword".
	Name() string

	// Description returns a one-line human readable summary used in
	// provider listings.
	Description() string

	// Get looks up a single secret. A key that is simply not stored
	// returns found=false and a nil error. Failing to reach or
	// authenticate with the backend returns an UnavailableError.
	Get(ctx context.Context, addr Address) (value string, found bool, err error)

	// Set stores exactly one secret value. Read-only backends return
	// ReadOnlyError; writes refused by the backend return
	// WriteRejectedError.
	Set(ctx context.Context, addr Address, value string) error

	// AllowsSet reports up front whether Set can ever succeed, so callers
	// can refuse writes before attempting them.
	AllowsSet() bool
}

// Address identifies one secret inside a backend.
type Address struct {
	Project string
	Profile string
	Key     string
}

// Path returns the canonical "{project}/{profile}/{key}" form.
func (a Address) Path() string {
	return strings.Join([]string{a.Project, a.Profile, a.Key}, "/")
}

// WithProfile returns a copy of the address pointing at another profile.
func (a Address) WithProfile(profile string) Address {
	a.Profile = profile
	return a
}

func (a Address) String() string {
	return a.Path()
}
