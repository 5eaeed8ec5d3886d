package providers_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/fakes"
)

// TestRegistryCreation validates registry initialization
func TestRegistryCreation(t *testing.T) {
	t.Parallel()

	registry := providers.Default()
	require.NotNil(t, registry)
	assert.Same(t, registry, providers.Default(), "built once")

	schemes := registry.Schemes()
	assert.Len(t, schemes, len(providers.Builtin()))
	assert.IsIncreasing(t, schemes)

	for _, reg := range registry.Registrations() {
		assert.NotEmpty(t, reg.Description, reg.Scheme)
		assert.NotEmpty(t, reg.Example, reg.Scheme)
	}
}

// TestRegistryIsSupported validates scheme checking
func TestRegistryIsSupported(t *testing.T) {
	t.Parallel()

	registry := providers.Default()

	tests := []struct {
		scheme        string
		wantSupported bool
	}{
		{"keyring", true},
		{"env", true},
		{"dotenv", true},
		{"onepassword", true},
		{"onepassword+token", true},
		{"bitwarden", true},
		{"bws", true},
		{"lastpass", true},
		{"pass", true},
		{"aws-secretsmanager", true},
		{"aws-ssm", true},
		{"gcp-secretmanager", true},
		{"azure-keyvault", true},
		{"akeyless", true},
		{"postgres", true},
		{"mysql", true},
		{"age", true},
		{"vault", true},
		{"1password", false},
		{"doppler", true},
		{"infisical", true},
		{"literal", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantSupported, registry.IsSupported(tt.scheme), "scheme %q", tt.scheme)
	}
}

func TestNewRegistry_Duplicate(t *testing.T) {
	t.Parallel()

	factory := func(provider.URI) (provider.Provider, error) { return fakes.NewFakeProvider("x"), nil }
	_, err := providers.NewRegistry(
		providers.Registration{Scheme: "x", Factory: factory},
		providers.Registration{Scheme: "x", Factory: factory},
	)

	var dup dserrors.DuplicateProviderError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "x", dup.Scheme)
	assert.Equal(t, dserrors.ExitConfig, dserrors.ExitCode(err))
}

func TestBuiltin_NoDuplicates(t *testing.T) {
	t.Parallel()

	_, err := providers.NewRegistry(providers.Builtin()...)
	assert.NoError(t, err)
}

func TestRegistryOpen(t *testing.T) {
	t.Parallel()

	var got provider.URI
	registry, err := providers.NewRegistry(
		providers.Registration{
			Scheme: "fake",
			Factory: func(u provider.URI) (provider.Provider, error) {
				got = u
				return fakes.NewFakeProvider("fake"), nil
			},
		},
		providers.Registration{
			Scheme: "broken",
			Factory: func(provider.URI) (provider.Provider, error) {
				return nil, errors.New("missing parameter")
			},
		},
	)
	require.NoError(t, err)

	p, err := registry.Open("fake://vault?x=1")
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Name())
	assert.Equal(t, "vault", got.Host)
	assert.Equal(t, "1", got.Param("x"))

	tests := map[string]string{
		"unknown scheme": "nope://x",
		"factory error":  "broken://x",
		"bad syntax":     "://x",
		"1password":      "1password://Private",
		"empty":          "",
	}
	for name, raw := range tests {
		_, err := registry.Open(raw)
		assert.True(t, provider.IsInvalidURI(err), "%s: got %v", name, err)
		assert.Equal(t, dserrors.ExitConfig, dserrors.ExitCode(err), name)
	}

	_, err = registry.Open("broken://x")
	assert.Contains(t, err.Error(), "missing parameter")
}

func TestDefaultRegistryOpensEveryExample(t *testing.T) {
	t.Setenv(providers.EnvOnePasswordToken, "")
	t.Setenv("BWS_ACCESS_TOKEN", "")

	for _, reg := range providers.Builtin() {
		p, err := providers.Default().Open(reg.Example)
		require.NoError(t, err, reg.Example)
		assert.Equal(t, reg.Scheme, p.Name(), reg.Example)
	}
}
