// Package userconfig manages per-user secretspec settings. Configuration is
// stored in $SECRETSPEC_CONFIG_DIR/config.toml (by default under the
// platform config directory) and can be modified via `secretspec config`.
package userconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/pkg/provider"
)

// EnvConfigDir overrides the directory holding config.toml.
const EnvConfigDir = "SECRETSPEC_CONFIG_DIR"

// Config represents user-configurable settings.
type Config struct {
	Defaults Defaults                 `toml:"defaults" json:"defaults" yaml:"defaults"`
	Profiles map[string]ProfileConfig `toml:"profiles,omitempty" json:"profiles,omitempty" yaml:"profiles,omitempty"`

	path string
}

// Defaults apply when nothing more specific is configured.
type Defaults struct {
	Provider string `toml:"provider,omitempty" json:"provider,omitempty" yaml:"provider,omitempty"`
	Profile  string `toml:"profile,omitempty" json:"profile,omitempty" yaml:"profile,omitempty"`
}

// ProfileConfig holds settings that only apply to one profile.
type ProfileConfig struct {
	Provider string `toml:"provider,omitempty" json:"provider,omitempty" yaml:"provider,omitempty"`
}

// Path returns the location of the user config file.
func Path() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return filepath.Join(dir, "config.toml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "secretspec", "config.toml"), nil
}

// Load reads the user config file. A missing file yields an empty config.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return &Config{}, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, dserrors.ParseError{Path: path, Line: perr.Position.Line, Message: perr.Message}
		}
		return nil, dserrors.ParseError{Path: path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, dserrors.ParseError{
			Path:    path,
			Message: fmt.Sprintf("unknown setting %q", undecoded[0].String()),
		}
	}
	return cfg, nil
}

// Save writes the configuration back to where it was loaded from, or to
// the default location.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}
	return c.SaveTo(path)
}

// SaveTo writes config to a specific file path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Provider URIs may carry tokens.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	c.path = path
	return nil
}

// Location returns the file this config was loaded from or saved to.
func (c *Config) Location() string {
	return c.path
}

// DefaultProvider returns the configured default provider, or "".
func (c *Config) DefaultProvider() string {
	if c == nil {
		return ""
	}
	return c.Defaults.Provider
}

// DefaultProfile returns the configured default profile, or "".
func (c *Config) DefaultProfile() string {
	if c == nil {
		return ""
	}
	return c.Defaults.Profile
}

// ProfileProvider returns the provider configured for one profile, or "".
func (c *Config) ProfileProvider(profile string) string {
	if c == nil || c.Profiles == nil {
		return ""
	}
	return c.Profiles[profile].Provider
}

// Get returns the value of a dotted config key.
// Returns empty string and false if the key doesn't exist or is unset.
func (c *Config) Get(key string) (string, bool) {
	k, profile, err := parseKey(key)
	if err != nil {
		return "", false
	}
	var v string
	switch k {
	case "defaults.provider":
		v = c.Defaults.Provider
	case "defaults.profile":
		v = c.Defaults.Profile
	case "profiles.provider":
		v = c.ProfileProvider(profile)
	}
	return v, v != ""
}

// Set updates a config value from a string. Provider values must parse as
// provider URIs.
func (c *Config) Set(key, value string) error {
	k, profile, err := parseKey(key)
	if err != nil {
		return err
	}

	switch k {
	case "defaults.provider", "profiles.provider":
		if _, err := provider.ParseURI(value); err != nil {
			return err
		}
	case "defaults.profile":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("invalid value for %s: must not be empty", key)
		}
	}

	switch k {
	case "defaults.provider":
		c.Defaults.Provider = value
	case "defaults.profile":
		c.Defaults.Profile = value
	case "profiles.provider":
		if c.Profiles == nil {
			c.Profiles = map[string]ProfileConfig{}
		}
		pc := c.Profiles[profile]
		pc.Provider = value
		c.Profiles[profile] = pc
	}
	return nil
}

// Unset clears a config value. Profile tables left empty are removed.
func (c *Config) Unset(key string) error {
	k, profile, err := parseKey(key)
	if err != nil {
		return err
	}
	switch k {
	case "defaults.provider":
		c.Defaults.Provider = ""
	case "defaults.profile":
		c.Defaults.Profile = ""
	case "profiles.provider":
		delete(c.Profiles, profile)
	}
	return nil
}

// Entries returns every set key with its value in a stable order.
func (c *Config) Entries() [][2]string {
	var out [][2]string
	if c.Defaults.Provider != "" {
		out = append(out, [2]string{"defaults.provider", c.Defaults.Provider})
	}
	if c.Defaults.Profile != "" {
		out = append(out, [2]string{"defaults.profile", c.Defaults.Profile})
	}
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Profiles[name].Provider; p != "" {
			out = append(out, [2]string{"profiles." + name + ".provider", p})
		}
	}
	return out
}

// AvailableKeys returns a list of all configurable keys with descriptions.
func AvailableKeys() map[string]string {
	return map[string]string{
		"defaults.provider":        "Provider URI used when no flag, env var or profile setting applies",
		"defaults.profile":         "Profile used when no flag or env var selects one",
		"profiles.<name>.provider": "Provider URI used for one profile",
	}
}

// parseKey normalises a dotted key. Profile-scoped keys are returned as
// "profiles.provider" together with the profile name.
func parseKey(key string) (string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(key))
	switch lower {
	case "defaults.provider", "defaults.profile":
		return lower, "", nil
	}

	parts := strings.Split(strings.TrimSpace(key), ".")
	if len(parts) == 3 && strings.EqualFold(parts[0], "profiles") &&
		parts[1] != "" && strings.EqualFold(parts[2], "provider") {
		return "profiles.provider", parts[1], nil
	}
	return "", "", fmt.Errorf("unknown config key: %s", key)
}
