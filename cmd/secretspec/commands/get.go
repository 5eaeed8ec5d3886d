package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "get <KEY>",
		Short: "Print a single secret value",
		Long: `Resolve one declared secret and print its value to stdout.

The value goes through the same chain as 'run': the active profile, then the
default profile, then the declared default.

Examples:
  secretspec get DATABASE_URL
  export DB_URL=$(secretspec get --raw DATABASE_URL)`,
		ValidArgsFunction: completeKeys(cfg),
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			e, err := cfg.Engine()
			if err != nil {
				return err
			}

			value, found, err := e.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			if !found {
				return dserrors.UserError{
					Message:    fmt.Sprintf("%s has no value in profile %s", key, e.Profile()),
					Suggestion: fmt.Sprintf("Store one with 'secretspec set %s'", key),
				}
			}

			if raw {
				_, err = fmt.Fprint(cmd.OutOrStdout(), value)
			} else {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the value without a trailing newline")

	return cmd
}
