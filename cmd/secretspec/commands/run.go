package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/engine"
	"github.com/systmms/secretspec/internal/execenv"
)

func NewRunCommand(cfg *config.Config) *cobra.Command {
	var (
		printVars     bool
		allowOverride bool
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command with secrets in its environment",
		Long: `Resolve every declared secret and run a command with the values injected
as environment variables. Nothing is written to disk.

The command must be separated from secretspec arguments with '--'. It does
not start when a required secret is missing. Its exit status becomes the
exit status of secretspec.

Examples:
  secretspec run -- npm start
  secretspec run --profile production -- ./migrate up
  secretspec run --print --timeout 5m -- make test`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return dserrors.UserError{
					Message:    "No command specified",
					Suggestion: "Use: secretspec run -- <command> [args...]",
				}
			}

			e, err := cfg.Engine()
			if err != nil {
				return err
			}

			return e.Run(cmd.Context(), args, engine.RunOptions{
				AllowOverride: allowOverride,
				PrintVars:     printVars,
				Timeout:       timeout,
				IO: execenv.IO{
					Stdin:  cmd.InOrStdin(),
					Stdout: cmd.OutOrStdout(),
					Stderr: cmd.ErrOrStderr(),
				},
			})
		},
	}

	cmd.Flags().BoolVar(&printVars, "print", false, "Print injected variables (values masked)")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "Let variables already in the environment override resolved values")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the command after this long, exiting 124 (0 for no limit)")

	return cmd
}
