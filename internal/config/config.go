// Package config carries the settings every secretspec command shares: the
// parsed global flags, the logger, the user config and the provider
// registry. Commands build their engine through it.
package config

import (
	"github.com/systmms/secretspec/internal/declaration"
	"github.com/systmms/secretspec/internal/engine"
	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/metrics"
	"github.com/systmms/secretspec/internal/providers"
	"github.com/systmms/secretspec/internal/selection"
	"github.com/systmms/secretspec/internal/userconfig"
)

// Config holds the runtime configuration
type Config struct {
	Path         string // Declaration file (--file)
	ProfileFlag  string // --profile
	ProviderFlag string // --provider
	Debug        bool
	NoColor      bool
	MetricsFile  string // Prometheus textfile written on exit (--metrics-file)

	Logger *logging.Logger

	// Env reads environment variables for selection. Nil means the
	// process environment.
	Env selection.LookupFunc
	// UserConfigPath overrides the user config location.
	UserConfigPath string
	// Registry defaults to the built-in providers.
	Registry *providers.Registry

	metrics    *metrics.Metrics
	userConfig *userconfig.Config
}

// Init fills in everything that depends on the parsed flags. It is called
// from the root command's PersistentPreRun.
func (c *Config) Init() {
	noColor := c.NoColor
	if _, ok := c.lookup()("NO_COLOR"); ok {
		noColor = true
	}
	if c.Logger == nil {
		c.Logger = logging.New(c.Debug, noColor)
	}
	if c.Path == "" {
		c.Path = declaration.FileName
	}
	if c.Registry == nil {
		c.Registry = providers.Default()
	}
	if c.MetricsFile != "" && c.metrics == nil {
		c.metrics = metrics.New()
	}
}

func (c *Config) lookup() selection.LookupFunc {
	if c.Env != nil {
		return c.Env
	}
	return selection.OSLookup
}

// UserConfig loads the user config once. A missing file is an empty config.
func (c *Config) UserConfig() (*userconfig.Config, error) {
	if c.userConfig != nil {
		return c.userConfig, nil
	}

	var (
		uc  *userconfig.Config
		err error
	)
	if c.UserConfigPath != "" {
		uc, err = userconfig.LoadFrom(c.UserConfigPath)
	} else {
		uc, err = userconfig.Load()
	}
	if err != nil {
		return nil, err
	}
	c.userConfig = uc
	return uc, nil
}

// Engine loads the declaration and opens the selected provider.
func (c *Config) Engine() (*engine.Engine, error) {
	c.Init()

	uc, err := c.UserConfig()
	if err != nil {
		return nil, err
	}
	if loc := uc.Location(); loc != "" {
		c.Logger.Debug("User config: %s", loc)
	}

	return engine.Load(engine.Options{
		DeclarationPath: c.Path,
		ProfileFlag:     c.ProfileFlag,
		ProviderFlag:    c.ProviderFlag,
		Env:             c.lookup(),
		UserConfig:      uc,
		Registry:        c.Registry,
		Logger:          c.Logger,
		Metrics:         c.metrics,
	})
}

// Metrics returns the collectors, or nil when --metrics-file is unset.
func (c *Config) Metrics() *metrics.Metrics {
	return c.metrics
}

// Close writes the metrics textfile when one was requested.
func (c *Config) Close() error {
	if c.metrics == nil {
		return nil
	}
	if err := c.metrics.WriteTextfile(c.MetricsFile); err != nil {
		c.Logger.Warn("Failed to write metrics to %s: %v", c.MetricsFile, err)
		return err
	}
	c.Logger.Debug("Metrics written to %s", c.MetricsFile)
	return nil
}
