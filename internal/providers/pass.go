package providers

import (
	"context"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// DefaultPassPrefix is the folder used inside the password store when the
// URI names none.
const DefaultPassPrefix = "secretspec"

// PassProvider implements the provider.Provider interface for pass (zx2c4).
// Entries live at {prefix}/{project}/{profile}/{key}.
type PassProvider struct {
	config   PassConfig
	logger   *logging.Logger
	executor pkgexec.CommandExecutor
}

// PassConfig represents the configuration for the pass provider.
type PassConfig struct {
	PasswordStore string // Custom password store path (optional)
	Prefix        string // Folder inside the store
}

// NewPassProvider creates a new pass provider.
func NewPassProvider(config PassConfig) *PassProvider {
	return NewPassProviderWithExecutor(config, pkgexec.DefaultExecutor())
}

// NewPassProviderWithExecutor creates a new pass provider with a custom executor.
// This is primarily for testing, allowing command execution to be mocked.
func NewPassProviderWithExecutor(config PassConfig, executor pkgexec.CommandExecutor) *PassProvider {
	config.Prefix = strings.Trim(config.Prefix, "/")
	if config.Prefix == "" {
		config.Prefix = DefaultPassPrefix
	}
	return &PassProvider{
		config:   config,
		logger:   logging.New(false, false),
		executor: executor,
	}
}

// NewPassProviderFactory handles pass://[prefix][?store=/path/to/store]
func NewPassProviderFactory(u provider.URI) (provider.Provider, error) {
	return NewPassProvider(PassConfig{
		PasswordStore: u.Param("store"),
		Prefix:        u.Location(),
	}), nil
}

// Name returns the provider name.
func (p *PassProvider) Name() string {
	return "pass"
}

func (p *PassProvider) Description() string {
	return "pass password store (" + p.config.Prefix + "/)"
}

func (p *PassProvider) AllowsSet() bool {
	return true
}

// EntryPath returns the pass entry name for addr.
func (p *PassProvider) EntryPath(addr provider.Address) string {
	return p.config.Prefix + "/" + addr.Path()
}

var passAuthMarkers = []string{
	"gpg: decryption failed",
	"no secret key",
	"gpg-agent",
	"password store is empty",
	"Try \"pass init\"",
}

// Get retrieves a secret value from pass. The whole entry is the value;
// pass appends a newline on insert, which is removed here.
func (p *PassProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	path := p.EntryPath(addr)
	p.logger.Debug("Fetching secret %s from pass", path)

	stdout, stderr, err := p.executePass(ctx, nil, "show", path)
	if err != nil {
		if mentions(stderr, "is not in the password store") || mentions(stdout, "is not in the password store") {
			return "", false, nil
		}
		return "", false, cliFailure(p.Name(), "pass", "show", stderr, err, passAuthMarkers...)
	}
	return strings.TrimSuffix(string(stdout), "\n"), true, nil
}

// Set inserts or overwrites the entry. The value is passed on stdin in
// multiline mode so that it never appears in the process list.
func (p *PassProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	path := p.EntryPath(addr)
	p.logger.Debug("Storing %s in pass = %s", path, logging.Secret(value))

	_, stderr, err := p.executePass(ctx, []byte(value+"\n"), "insert", "--multiline", "--force", path)
	if err != nil {
		if mentions(stderr, "permission denied", "read-only file system") {
			return provider.WriteRejectedError{Provider: p.Name(), Key: addr.Key, Err: &CLIError{Tool: "pass", Op: "insert", Stderr: string(stderr), Err: err}}
		}
		return cliFailure(p.Name(), "pass", "insert", stderr, err, passAuthMarkers...)
	}
	return nil
}

// executePass runs pass with the configured store.
func (p *PassProvider) executePass(ctx context.Context, stdin []byte, args ...string) ([]byte, []byte, error) {
	cmd := pkgexec.Command{Name: "pass", Args: args, Stdin: stdin}
	if p.config.PasswordStore != "" {
		cmd.Env = []string{"PASSWORD_STORE_DIR=" + p.config.PasswordStore}
	}
	return p.executor.Run(ctx, cmd)
}
