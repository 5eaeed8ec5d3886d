// Package commands implements the secretspec command-line interface.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	"github.com/systmms/secretspec/internal/declaration"
)

// NewRootCommand builds the command tree around cfg. The persistent flags
// are parsed into cfg before any subcommand runs.
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "secretspec",
		Short: "Declarative secrets for every environment",
		Long: `secretspec reads the secrets a project needs from secretspec.toml and
fetches their values at runtime from a pluggable provider: the OS keyring,
a dotenv file, a password manager or a cloud secret store.

The active profile and provider are chosen, highest first, from the
--profile/--provider flags, SECRETSPEC_PROFILE/SECRETSPEC_PROVIDER, and the
user config written by 'secretspec config'.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Init()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfg.Path, "file", "f", declaration.FileName, "Path to the secretspec.toml declaration")
	flags.StringVarP(&cfg.ProfileFlag, "profile", "P", "", "Profile to use (overrides SECRETSPEC_PROFILE)")
	flags.StringVarP(&cfg.ProviderFlag, "provider", "p", "", "Provider URI to use (overrides SECRETSPEC_PROVIDER)")
	flags.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&cfg.NoColor, "no-color", false, "Disable colored output")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", "", "Write provider metrics in Prometheus text format to this file on exit")
	_ = rootCmd.RegisterFlagCompletionFunc("profile", completeProfiles(cfg))

	rootCmd.AddCommand(
		NewInitCommand(cfg),
		NewConfigCommand(cfg),
		NewCheckCommand(cfg),
		NewGetCommand(cfg),
		NewSetCommand(cfg),
		NewRunCommand(cfg),
		NewImportCommand(cfg),
		NewProvidersCommand(cfg),
		NewSchemaCommand(cfg),
		NewCompletionCommand(cfg),
	)

	return rootCmd
}

// validateOutput checks an --output flag value.
func validateOutput(output string) error {
	switch output {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unsupported output format %q (use text or json)", output)
}
