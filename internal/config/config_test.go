package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/pkg/provider"
	"github.com/systmms/secretspec/tests/fakes"
)

func newTestConfig(t *testing.T, env map[string]string) (*Config, *fakes.FakeProvider) {
	t.Helper()
	dir := t.TempDir()

	declPath := filepath.Join(dir, "secretspec.toml")
	require.NoError(t, os.WriteFile(declPath, []byte(`
[project]
name = "svc"
revision = "1.0"

[profiles.default]
TOKEN = { description = "API token" }
`), 0o600))

	userPath := filepath.Join(dir, "user", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
[defaults]
provider = "fake://"
profile = "staging"
`), 0o600))

	fake := fakes.NewFakeProvider("fake")
	reg, err := providers.NewRegistry(providers.Registration{
		Scheme:  "fake",
		Factory: func(provider.URI) (provider.Provider, error) { return fake, nil },
	})
	require.NoError(t, err)

	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	return &Config{
		Path:           declPath,
		Logger:         logging.Discard(),
		Env:            lookup,
		UserConfigPath: userPath,
		Registry:       reg,
	}, fake
}

func TestConfig_Engine(t *testing.T) {
	t.Parallel()

	cfg, fake := newTestConfig(t, nil)
	fake.WithSecret(provider.Address{Project: "svc", Profile: "staging", Key: "TOKEN"}, "t0k3n")

	e, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, "staging", e.Profile())
	assert.Equal(t, "fake://", e.ProviderURI())

	value, found, err := e.Get(context.Background(), "TOKEN")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "t0k3n", value)
}

func TestConfig_FlagsOutrankUserConfig(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestConfig(t, map[string]string{"SECRETSPEC_PROFILE": "qa"})

	e, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, "qa", e.Profile())

	cfg.ProfileFlag = "production"
	e, err = cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, "production", e.Profile())
}

func TestConfig_UserConfigIsLoadedOnce(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestConfig(t, nil)
	first, err := cfg.UserConfig()
	require.NoError(t, err)
	second, err := cfg.UserConfig()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "fake://", first.DefaultProvider())
}

func TestConfig_MetricsFile(t *testing.T) {
	t.Parallel()

	cfg, fake := newTestConfig(t, nil)
	fake.WithSecret(provider.Address{Project: "svc", Profile: "staging", Key: "TOKEN"}, "x")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "secretspec.prom")

	e, err := cfg.Engine()
	require.NoError(t, err)
	_, err = e.Check(context.Background())
	require.NoError(t, err)
	require.NoError(t, cfg.Close())

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `secretspec_provider_operations_total{operation="get",outcome="found",provider="fake"} 1`)
}

func TestConfig_CloseWithoutMetrics(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestConfig(t, nil)
	cfg.Init()
	assert.Nil(t, cfg.Metrics())
	assert.NoError(t, cfg.Close())
}

func TestConfig_Init(t *testing.T) {
	t.Parallel()

	cfg := &Config{Env: func(string) (string, bool) { return "", false }}
	cfg.Init()
	assert.Equal(t, "secretspec.toml", cfg.Path)
	assert.NotNil(t, cfg.Logger)
	assert.Same(t, providers.Default(), cfg.Registry)
}
