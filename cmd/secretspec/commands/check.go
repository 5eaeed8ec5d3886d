package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/engine"
)

func NewCheckCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that every required secret resolves",
		Long: `Resolve every secret declared for the active profile and report where
each value comes from. Values are never printed.

Exits 0 when every required secret resolves and 3 when any is missing.

Examples:
  secretspec check
  secretspec check --profile production --provider onepassword://Prod
  secretspec check --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			e, err := cfg.Engine()
			if err != nil {
				return err
			}

			report, err := e.Check(cmd.Context())
			var missing dserrors.MissingRequiredError
			if err != nil && !errors.As(err, &missing) {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
				return err
			}

			printCheckReport(cmd, report)
			if report.OK() {
				cfg.Logger.Info("All required secrets are available (profile %s, provider %s)", report.Profile, report.Provider)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")

	return cmd
}

func printCheckReport(cmd *cobra.Command, report *engine.CheckReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "KEY\tSTATUS\tSOURCE\tDESCRIPTION\n")
	for _, entry := range report.Entries {
		status := "ok"
		switch {
		case !entry.Present && entry.Required:
			status = "MISSING"
		case !entry.Present:
			status = "unset"
		}
		source := string(entry.Source)
		if source == "" {
			source = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Key, status, source, entry.Description)
	}
	_ = w.Flush()
}
