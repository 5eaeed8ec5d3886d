// Package exec provides abstractions for command execution.
// This package enables testable code by allowing CLI commands to be mocked.
package exec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// CommandExecutor defines an interface for executing CLI tools such as
// op, bw, bws, lpass and pass. Providers depend on it so tests can script
// the tool's output.
type CommandExecutor interface {
	// Execute runs a command with the given context and arguments.
	// Returns stdout, stderr, and any error that occurred.
	Execute(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

	// Run executes a fully described command, including stdin and extra
	// environment variables.
	Run(ctx context.Context, cmd Command) (stdout []byte, stderr []byte, err error)
}

// Command describes one invocation for Run.
type Command struct {
	Name string
	Args []string
	// Stdin is written to the process's standard input when non-nil.
	// Secret values are passed this way rather than as arguments when the
	// tool supports it.
	Stdin []byte
	// Env is appended to the inherited process environment.
	Env []string
}

// RealCommandExecutor executes actual shell commands using os/exec.
// This is the production implementation.
type RealCommandExecutor struct{}

// Execute runs an actual shell command.
func (r *RealCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return r.Run(ctx, Command{Name: name, Args: args})
}

// Run runs an actual command with optional stdin and environment.
func (r *RealCommandExecutor) Run(ctx context.Context, c Command) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
// This is used as the default when no executor is injected.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}

// IsNotInstalled reports whether err means the executable itself could not
// be found, as opposed to the command running and failing.
func IsNotInstalled(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
