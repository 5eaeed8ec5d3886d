package providers

import (
	"context"
	"os"

	"github.com/systmms/secretspec/pkg/provider"
)

// EnvProvider reads secrets from the process environment. Keys are looked
// up as-is; project and profile play no part.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider backed by os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return NewEnvProviderWithLookup(os.LookupEnv)
}

// NewEnvProviderWithLookup creates an environment provider with a custom
// lookup function, for tests.
func NewEnvProviderWithLookup(lookup func(string) (string, bool)) *EnvProvider {
	return &EnvProvider{lookup: lookup}
}

// NewEnvProviderFactory creates an environment provider from env://
func NewEnvProviderFactory(u provider.URI) (provider.Provider, error) {
	if loc := u.Location(); loc != "" && loc != "localhost" {
		return nil, provider.InvalidURIError{URI: u.String(), Reason: "env takes no location; use env://"}
	}
	return NewEnvProvider(), nil
}

func (e *EnvProvider) Name() string { return "env" }

func (e *EnvProvider) Description() string {
	return "Process environment variables (read-only)"
}

func (e *EnvProvider) AllowsSet() bool { return false }

// Get returns the variable named by the key.
func (e *EnvProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	value, ok := e.lookup(addr.Key)
	return value, ok, nil
}

// Set always fails; the environment of the parent shell cannot be changed.
func (e *EnvProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	return provider.ReadOnlyError{Provider: e.Name()}
}

// FlatNamespace reports that every project and profile sees the same
// variables.
func (e *EnvProvider) FlatNamespace() bool { return true }
