package commands

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
)

func NewImportCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import <FROM_URI> [TO_URI]",
		Short: "Copy declared secrets from one provider to another",
		Long: `Copy the value of every secret declared for the active profile from one
provider to another. TO_URI defaults to the active provider.

Each value is written under the profile it was found in, so shared values
stay in the default profile. Declared defaults are not copied. Keys that fail
are reported and the rest are still copied; the exit status is 6 when any
key failed.

Examples:
  secretspec import dotenv://.env
  secretspec import keyring:// onepassword://Engineering --profile production`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			e, err := cfg.Engine()
			if err != nil {
				return err
			}

			to := ""
			if len(args) == 2 {
				to = args[1]
			}

			report, err := e.Import(cmd.Context(), args[0], to)
			var incomplete dserrors.ImportIncompleteError
			if err != nil && !errors.As(err, &incomplete) {
				return err
			}

			if output == "json" {
				failed := map[string]string{}
				for key, ferr := range report.Failed {
					failed[key] = ferr.Error()
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(struct {
					From     string            `json:"from"`
					To       string            `json:"to"`
					Imported []string          `json:"imported"`
					Skipped  []string          `json:"skipped"`
					Failed   map[string]string `json:"failed"`
				}{report.From, report.To, report.Imported, report.Skipped, failed}); encErr != nil {
					return encErr
				}
				return err
			}

			for _, key := range report.Imported {
				cfg.Logger.Info("Imported %s", key)
			}
			for _, key := range report.Skipped {
				cfg.Logger.Warn("Skipped %s (not found in %s)", key, report.From)
			}
			for _, key := range report.FailedKeys() {
				cfg.Logger.Error("Failed %s: %v", key, report.Failed[key])
			}
			cfg.Logger.Info("%d imported, %d skipped, %d failed", len(report.Imported), len(report.Skipped), len(report.Failed))
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")

	return cmd
}
