package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/logging"
	"github.com/systmms/secretspec/internal/secure"
)

// ExitTimeout is the status reported when --timeout kills the child, as
// timeout(1) does.
const ExitTimeout = 124

// Executor handles running commands with ephemeral environment variables
type Executor struct {
	logger *logging.Logger
}

// New creates a new executor
func New(logger *logging.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command       []string       // Command and arguments to run
	Secrets       *secure.Values // Resolved secrets to inject
	AllowOverride bool           // Let variables already in the environment win over resolved secrets
	PrintVars     bool           // Print injected variable names with masked values
	WorkingDir    string         // Working directory for the command
	Timeout       time.Duration  // Kill the child after this long (0 for no limit)

	// BaseEnv replaces os.Environ() as the inherited environment.
	BaseEnv []string

	IO
}

// IO overrides the child's standard streams. Nil fields inherit the
// parent's.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Exec runs a command with the resolved secrets in its environment and
// waits for it. No file is written. A non-zero exit becomes a
// SubprocessError carrying the child's status.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) error {
	if err := ValidateCommand(options.Command); err != nil {
		return err
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	base := options.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env, err := buildEnvironment(base, options.Secrets, options.AllowOverride)
	if err != nil {
		return dserrors.UserError{
			Message:    "Failed to build environment",
			Details:    err.Error(),
			Suggestion: "Check secretspec.toml for errors",
			Err:        err,
		}
	}

	if options.PrintVars {
		e.printEnvironment(options.stderr(), options.Secrets)
	}

	cmdName := options.Command[0]
	cmd := exec.CommandContext(ctx, cmdName, options.Command[1:]...)
	cmd.Env = env
	cmd.Stdin = options.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = options.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = options.stderr()
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(options.Command, " "))
	if options.Secrets != nil {
		e.logger.Debug("Environment variables set: %d", options.Secrets.Len())
	}

	if err := cmd.Start(); err != nil {
		return dserrors.CommandError{
			Command:    strings.Join(options.Command, " "),
			Message:    err.Error(),
			Suggestion: "Check the command output above for details",
		}
	}

	// Terminal signals reach the whole process group already. Keep this
	// process alive until the child exits and pass on anything sent to it
	// alone.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-signals:
				if sig != os.Interrupt {
					_ = cmd.Process.Signal(sig)
				}
			case <-done:
				return
			}
		}
	}()

	err = cmd.Wait()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("%s timed out after %s", cmdName, options.Timeout)
		return dserrors.SubprocessError{Command: cmdName, ExitCode: ExitTimeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return dserrors.SubprocessError{Command: cmdName, ExitCode: exitStatus(exitErr)}
	}
	return dserrors.CommandError{
		Command:    strings.Join(options.Command, " "),
		Message:    err.Error(),
		Suggestion: "Check the command output above for details",
	}
}

func (o ExecOptions) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

// exitStatus preserves the child's code, using the shell convention of
// 128+signal for a child killed by a signal.
func exitStatus(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	if code := err.ExitCode(); code > 0 {
		return code
	}
	return 1
}

// buildEnvironment overlays the secrets on base. Resolved values replace
// inherited ones unless allowOverride is set.
func buildEnvironment(base []string, secrets *secure.Values, allowOverride bool) ([]string, error) {
	envMap := make(map[string]string, len(base))
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if ok {
			envMap[key] = value
		}
	}

	if secrets != nil {
		err := secrets.Each(func(key, value string) error {
			if strings.ContainsAny(key, "=\x00") {
				return fmt.Errorf("%q is not a valid environment variable name", key)
			}
			if allowOverride {
				if _, exists := envMap[key]; exists {
					return nil
				}
			}
			envMap[key] = value
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	result := make([]string, 0, len(envMap))
	for key, value := range envMap {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)

	return result, nil
}

// printEnvironment lists the injected variables with masked values.
func (e *Executor) printEnvironment(w io.Writer, secrets *secure.Values) {
	if secrets == nil || secrets.Len() == 0 {
		fmt.Fprintln(w, "No secrets resolved")
		return
	}

	fmt.Fprintf(w, "Injecting %d secrets:\n", secrets.Len())
	_ = secrets.Each(func(key, value string) error {
		fmt.Fprintf(w, "  %s=%s\n", key, maskValue(value))
		return nil
	})
	fmt.Fprintln(w)
}

// maskValue masks a secret value for display
func maskValue(value string) string {
	if len(value) == 0 {
		return "(empty)"
	}

	if len(value) <= 3 {
		return strings.Repeat("*", len(value))
	}

	if len(value) <= 8 {
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}

	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}

// ValidateCommand checks that a command was given and can be found.
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return dserrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., secretspec run -- npm start)",
		}
	}

	if _, err := exec.LookPath(command[0]); err != nil {
		return dserrors.WrapCommandNotFound(command[0], err)
	}
	return nil
}
