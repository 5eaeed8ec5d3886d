package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
)

func NewSetCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <KEY> [VALUE]",
		Short: "Store a secret value in the active provider",
		Long: `Store a value for a declared secret under the active profile.

The value is taken from the argument, from piped stdin, or from a hidden
prompt when stdin is a terminal. Prefer the prompt or a pipe: arguments end
up in shell history.

Examples:
  secretspec set API_KEY
  printf '%s' "$TOKEN" | secretspec set API_KEY
  secretspec set --profile production DATABASE_URL`,
		ValidArgsFunction: completeKeys(cfg),
		Args:              cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			e, err := cfg.Engine()
			if err != nil {
				return err
			}
			// Refuse before prompting so nobody types a secret for nothing.
			if err := e.CheckSet(key); err != nil {
				return err
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				value, err = readValue(cmd, key)
				if err != nil {
					return err
				}
			}

			if err := e.Set(cmd.Context(), key, value); err != nil {
				return err
			}
			cfg.Logger.Info("Stored %s (profile %s, provider %s)", key, e.Profile(), e.Provider().Name())
			return nil
		},
	}

	return cmd
}

// readValue prompts without echo when stdin is a terminal and reads all of
// stdin otherwise. A single trailing newline from a pipe is dropped.
func readValue(cmd *cobra.Command, key string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Enter value for %s: ", key)
		data, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		if len(data) == 0 {
			return "", dserrors.UserError{Message: "No value entered for " + key}
		}
		return string(data), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read value from stdin: %w", err)
	}
	value := strings.TrimSuffix(string(data), "\n")
	value = strings.TrimSuffix(value, "\r")
	if value == "" {
		return "", dserrors.UserError{
			Message:    "No value given for " + key,
			Suggestion: fmt.Sprintf("Pass it as an argument or pipe it in: secretspec set %s <value>", key),
		}
	}
	return value, nil
}
