package userconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/pkg/provider"
)

func TestLoadFrom_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.DefaultProvider())
	assert.Empty(t, cfg.DefaultProfile())
	assert.Empty(t, cfg.ProfileProvider("production"))
}

func TestLoadFrom(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[defaults]
provider = "keyring://"
profile = "development"

[profiles.production]
provider = "onepassword://Production"
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "keyring://", cfg.DefaultProvider())
	assert.Equal(t, "development", cfg.DefaultProfile())
	assert.Equal(t, "onepassword://Production", cfg.ProfileProvider("production"))
	assert.Empty(t, cfg.ProfileProvider("staging"))
	assert.Equal(t, path, cfg.Location())
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"syntax":        "[defaults\nprovider = 1",
		"unknown field": "[defaults]\nprovidr = \"keyring\"\n",
	}
	for name, content := range tests {
		content := content
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			_, err := LoadFrom(path)
			var perr dserrors.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, path, perr.Path)
		})
	}
}

func TestSetGetUnset(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	require.NoError(t, cfg.Set("defaults.provider", "dotenv:.env"))
	require.NoError(t, cfg.Set("defaults.profile", "staging"))
	require.NoError(t, cfg.Set("profiles.production.provider", "onepassword://Prod"))

	v, ok := cfg.Get("defaults.provider")
	assert.True(t, ok)
	assert.Equal(t, "dotenv:.env", v)

	v, ok = cfg.Get("Defaults.Profile")
	assert.True(t, ok, "keys are case-insensitive")
	assert.Equal(t, "staging", v)

	v, ok = cfg.Get("profiles.production.provider")
	assert.True(t, ok)
	assert.Equal(t, "onepassword://Prod", v)

	_, ok = cfg.Get("profiles.staging.provider")
	assert.False(t, ok)

	assert.Equal(t, [][2]string{
		{"defaults.provider", "dotenv:.env"},
		{"defaults.profile", "staging"},
		{"profiles.production.provider", "onepassword://Prod"},
	}, cfg.Entries())

	require.NoError(t, cfg.Unset("profiles.production.provider"))
	require.NoError(t, cfg.Unset("defaults.provider"))
	_, ok = cfg.Get("profiles.production.provider")
	assert.False(t, ok)
	_, ok = cfg.Get("defaults.provider")
	assert.False(t, ok)
}

func TestSet_Rejects(t *testing.T) {
	t.Parallel()

	cfg := &Config{}

	err := cfg.Set("defaults.provider", "1password://vault")
	assert.True(t, provider.IsInvalidURI(err))

	err = cfg.Set("profiles.prod.provider", "")
	assert.True(t, provider.IsInvalidURI(err))

	assert.Error(t, cfg.Set("defaults.profile", "  "))
	assert.Error(t, cfg.Set("telemetry", "true"))
	assert.Error(t, cfg.Set("profiles..provider", "keyring"))
	assert.Error(t, cfg.Unset("nope"))

	assert.Empty(t, cfg.Entries(), "rejected values are not stored")
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := &Config{}
	require.NoError(t, cfg.Set("defaults.provider", "keyring://"))
	require.NoError(t, cfg.Set("profiles.ci.provider", "env://"))
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Entries(), loaded.Entries())
}

func TestPath_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Set("defaults.profile", "dev"))
	require.NoError(t, cfg.Save())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestAvailableKeys(t *testing.T) {
	t.Parallel()
	keys := AvailableKeys()
	assert.Contains(t, keys, "defaults.provider")
	assert.Contains(t, keys, "defaults.profile")
	assert.Contains(t, keys, "profiles.<name>.provider")
}

func TestNilConfigAccessors(t *testing.T) {
	t.Parallel()
	var cfg *Config
	assert.Empty(t, cfg.DefaultProvider())
	assert.Empty(t, cfg.DefaultProfile())
	assert.Empty(t, cfg.ProfileProvider("x"))
}
