package providers

import (
	"context"
	"os"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// DefaultDopplerConfig is the Doppler config that backs the default
// profile. Doppler config names must start with an environment slug, so
// "default" itself is not usable.
const DefaultDopplerConfig = "dev"

// DopplerProvider implements the provider.Provider interface for Doppler
// through the doppler CLI. A secretspec project maps to a Doppler project
// and a profile to a config inside it.
type DopplerProvider struct {
	config   DopplerConfig
	logger   *logging.Logger
	executor pkgexec.CommandExecutor
}

// DopplerConfig represents the configuration for the Doppler provider.
type DopplerConfig struct {
	Token   string // Service token; DOPPLER_TOKEN otherwise
	Project string // Doppler project; the secretspec project name otherwise
	// Config pins every profile to one Doppler config.
	Config string
	// DefaultConfig backs the default profile. Defaults to "dev".
	DefaultConfig string
}

// NewDopplerProvider creates a new Doppler provider.
func NewDopplerProvider(config DopplerConfig) *DopplerProvider {
	return NewDopplerProviderWithExecutor(config, pkgexec.DefaultExecutor())
}

// NewDopplerProviderWithExecutor creates a Doppler provider that runs the
// CLI through executor.
func NewDopplerProviderWithExecutor(config DopplerConfig, executor pkgexec.CommandExecutor) *DopplerProvider {
	if config.DefaultConfig == "" {
		config.DefaultConfig = DefaultDopplerConfig
	}
	return &DopplerProvider{
		config:   config,
		logger:   logging.New(false, false),
		executor: executor,
	}
}

// NewDopplerProviderFactory handles doppler://[:token@][project]?config=&default_config=
func NewDopplerProviderFactory(u provider.URI) (provider.Provider, error) {
	return NewDopplerProvider(DopplerConfig{
		Token:         u.Password,
		Project:       u.Host,
		Config:        u.Param("config"),
		DefaultConfig: u.Param("default_config"),
	}), nil
}

// Name returns the provider name.
func (p *DopplerProvider) Name() string {
	return "doppler"
}

func (p *DopplerProvider) Description() string {
	if p.config.Project != "" {
		return "Doppler via the doppler CLI (project " + p.config.Project + ")"
	}
	return "Doppler via the doppler CLI"
}

func (p *DopplerProvider) AllowsSet() bool {
	return true
}

// FlatNamespace reports whether a pinned config makes every profile share
// one set of values.
func (p *DopplerProvider) FlatNamespace() bool {
	return p.config.Config != ""
}

// Location returns the Doppler project and config that hold addr.
func (p *DopplerProvider) Location(addr provider.Address) (project, config string) {
	project = p.config.Project
	if project == "" {
		project = dopplerSlug(addr.Project)
	}
	switch {
	case p.config.Config != "":
		config = p.config.Config
	case addr.Profile == provider.DefaultProfile:
		config = p.config.DefaultConfig
	default:
		config = dopplerSlug(addr.Profile)
	}
	return project, config
}

// dopplerSlug lowercases s and replaces anything other than letters,
// digits, '-' and '_' with '-'.
func dopplerSlug(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, s)
}

var dopplerAuthMarkers = []string{
	"Unable to authenticate",
	"Invalid Auth token",
	"you must provide a token",
	"Unauthorized",
	"doppler login",
}

// dopplerAbsentMarkers cover a missing secret as well as a project or
// config that was never created: nothing is stored there either way.
var dopplerAbsentMarkers = []string{
	"Could not find requested secret",
	"Could not find requested config",
	"Could not find requested project",
	"Could not find secret",
}

// Get retrieves a secret value from Doppler.
func (p *DopplerProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	project, config := p.Location(addr)
	p.logger.Debug("Fetching secret %s from Doppler %s/%s", addr.Key, project, config)

	stdout, stderr, err := p.run(ctx, nil, "secrets", "get", addr.Key, "--plain", "--project", project, "--config", config)
	if err != nil {
		if mentions(stderr, dopplerAbsentMarkers...) {
			return "", false, nil
		}
		return "", false, cliFailure(p.Name(), "doppler", "secrets get", stderr, err, dopplerAuthMarkers...)
	}
	return strings.TrimSuffix(string(stdout), "\n"), true, nil
}

// Set stores the value, reading it from stdin so that it stays out of the
// process list.
func (p *DopplerProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	project, config := p.Location(addr)
	p.logger.Debug("Storing %s in Doppler %s/%s = %s", addr.Key, project, config, logging.Secret(value))

	_, stderr, err := p.run(ctx, []byte(value), "secrets", "set", addr.Key, "--project", project, "--config", config, "--silent", "--no-interactive")
	if err != nil {
		if mentions(stderr, "Forbidden", "does not have access", "read-only", "Could not find requested config", "Could not find requested project") {
			return provider.WriteRejectedError{Provider: p.Name(), Key: addr.Key, Err: &CLIError{Tool: "doppler", Op: "secrets set", Stderr: string(stderr), Err: err}}
		}
		return cliFailure(p.Name(), "doppler", "secrets set", stderr, err, dopplerAuthMarkers...)
	}
	return nil
}

func (p *DopplerProvider) run(ctx context.Context, stdin []byte, args ...string) ([]byte, []byte, error) {
	cmd := pkgexec.Command{Name: "doppler", Args: args, Stdin: stdin}
	token := p.config.Token
	if token == "" {
		token = os.Getenv("DOPPLER_TOKEN")
	}
	if token != "" {
		cmd.Env = []string{"DOPPLER_TOKEN=" + token}
	}
	return p.executor.Run(ctx, cmd)
}
