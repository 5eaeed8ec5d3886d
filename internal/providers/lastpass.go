package providers

import (
	"context"
	"strings"

	"github.com/systmms/secretspec/internal/logging"
	pkgexec "github.com/systmms/secretspec/pkg/exec"
	"github.com/systmms/secretspec/pkg/provider"
)

// DefaultLastPassFolder is the top-level folder used when the URI names none.
const DefaultLastPassFolder = "secretspec"

// LastPassProvider stores secrets as LastPass entries named
// {folder}/{project}/{profile}/{key}, with the value in the password field.
type LastPassProvider struct {
	folder   string
	executor pkgexec.CommandExecutor
	logger   *logging.Logger
}

// NewLastPassProvider creates a LastPass provider rooted at folder.
func NewLastPassProvider(folder string) *LastPassProvider {
	return NewLastPassProviderWithExecutor(folder, pkgexec.DefaultExecutor())
}

// NewLastPassProviderWithExecutor creates a LastPass provider that runs
// lpass through executor.
func NewLastPassProviderWithExecutor(folder string, executor pkgexec.CommandExecutor) *LastPassProvider {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = DefaultLastPassFolder
	}
	return &LastPassProvider{
		folder:   folder,
		executor: executor,
		logger:   logging.New(false, false),
	}
}

// NewLastPassProviderFactory handles lastpass://[folder]
func NewLastPassProviderFactory(u provider.URI) (provider.Provider, error) {
	return NewLastPassProvider(u.Location()), nil
}

func (lp *LastPassProvider) Name() string { return "lastpass" }

func (lp *LastPassProvider) Description() string {
	return "LastPass via the lpass CLI (folder " + lp.folder + ")"
}

func (lp *LastPassProvider) AllowsSet() bool { return true }

// EntryName returns the LastPass entry name for addr.
func (lp *LastPassProvider) EntryName(addr provider.Address) string {
	return lp.folder + "/" + addr.Path()
}

var lastPassAuthMarkers = []string{
	"Could not find decryption key",
	"Not logged in",
	"lpass login",
	"Session token missing",
}

// Get reads the entry's password field.
func (lp *LastPassProvider) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	name := lp.EntryName(addr)
	stdout, stderr, err := lp.executor.Execute(ctx, "lpass", "show", "--sync=now", "--password", name)
	if err != nil {
		if mentions(stderr, "Could not find specified account") {
			return "", false, nil
		}
		return "", false, cliFailure(lp.Name(), "lpass", "show", stderr, err, lastPassAuthMarkers...)
	}
	return strings.TrimSuffix(string(stdout), "\n"), true, nil
}

// Set edits the entry if it exists and adds it otherwise. The value is
// written on stdin in non-interactive mode.
func (lp *LastPassProvider) Set(ctx context.Context, addr provider.Address, value string) error {
	_, exists, err := lp.Get(ctx, addr)
	if err != nil {
		return err
	}

	op := "add"
	if exists {
		op = "edit"
	}
	name := lp.EntryName(addr)
	lp.logger.Debug("lpass %s %s = %s", op, name, logging.Secret(value))

	_, stderr, err := lp.executor.Run(ctx, pkgexec.Command{
		Name:  "lpass",
		Args:  []string{op, "--sync=now", "--non-interactive", "--password", name},
		Stdin: []byte(value),
	})
	if err != nil {
		if mentions(stderr, "read-only", "permission") {
			return provider.WriteRejectedError{Provider: lp.Name(), Key: addr.Key, Err: &CLIError{Tool: "lpass", Op: op, Stderr: string(stderr), Err: err}}
		}
		return cliFailure(lp.Name(), "lpass", op, stderr, err, lastPassAuthMarkers...)
	}
	return nil
}
