package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/internal/selection"
	"github.com/systmms/secretspec/internal/userconfig"
	"github.com/systmms/secretspec/pkg/provider"
)

func NewConfigCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage per-user secretspec settings.

Settings are stored in config.toml under $SECRETSPEC_CONFIG_DIR, or the
platform config directory when it is unset.

Available keys:
  defaults.provider          Provider URI used when nothing else selects one
  defaults.profile           Profile used when nothing else selects one
  profiles.<name>.provider   Provider URI used for one profile`,
	}

	cmd.AddCommand(
		newConfigInitCommand(cfg),
		newConfigShowCommand(cfg),
		newConfigGetCommand(cfg),
		newConfigSetCommand(cfg),
		newConfigUnsetCommand(cfg),
	)

	return cmd
}

func newConfigInitCommand(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a user config file",
		Long: `Write a user config whose defaults are the --provider and --profile values.
The provider defaults to keyring://.

Examples:
  secretspec config init --provider keyring://
  secretspec config init --provider onepassword://Engineering --profile development`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := cfg.UserConfig()
			if err != nil {
				return err
			}
			path, err := userConfigPath(cfg, uc)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return dserrors.UserError{
					Message:    path + " already exists",
					Suggestion: "Use --force to replace it, or 'secretspec config set' to change one key",
				}
			}

			fresh := &userconfig.Config{}
			providerURI, profile := cfg.ProviderFlag, cfg.ProfileFlag
			if providerURI == "" {
				providerURI = selection.DefaultProvider
			}
			if err := fresh.Set("defaults.provider", providerURI); err != nil {
				return err
			}
			if profile != "" {
				if err := fresh.Set("defaults.profile", profile); err != nil {
					return err
				}
			}
			if err := fresh.SaveTo(path); err != nil {
				return err
			}
			*uc = *fresh

			cfg.Logger.Info("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config file")

	return cmd
}

func newConfigShowCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the user configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			uc, err := cfg.UserConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(uc)
			}

			if loc := uc.Location(); loc != "" {
				_, _ = fmt.Fprintf(out, "# %s\n", loc)
			}
			entries := uc.Entries()
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(out, "No settings configured. Available keys:")
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				keys := userconfig.AvailableKeys()
				names := make([]string, 0, len(keys))
				for k := range keys {
					names = append(names, k)
				}
				sort.Strings(names)
				for _, k := range names {
					_, _ = fmt.Fprintf(w, "  %s\t%s\n", k, keys[k])
				}
				return w.Flush()
			}
			for _, entry := range entries {
				_, _ = fmt.Fprintf(out, "%s = %s\n", entry[0], redactURI(entry[1]))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")

	return cmd
}

func newConfigGetCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one user config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := cfg.UserConfig()
			if err != nil {
				return err
			}
			value, ok := uc.Get(args[0])
			if !ok {
				return dserrors.ConfigError{
					Field:      args[0],
					Message:    "not set",
					Suggestion: "Use 'secretspec config set " + args[0] + " <value>'",
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func newConfigSetCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one user config value",
		Example: `  secretspec config set defaults.provider dotenv://.env.local
  secretspec config set profiles.production.provider aws-secretsmanager://?region=eu-west-1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := cfg.UserConfig()
			if err != nil {
				return err
			}
			if err := uc.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := saveUserConfig(cfg, uc); err != nil {
				return err
			}
			cfg.Logger.Info("Set %s", args[0])
			return nil
		},
	}
}

func newConfigUnsetCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove one user config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := cfg.UserConfig()
			if err != nil {
				return err
			}
			if err := uc.Unset(args[0]); err != nil {
				return err
			}
			if err := saveUserConfig(cfg, uc); err != nil {
				return err
			}
			cfg.Logger.Info("Unset %s", args[0])
			return nil
		},
	}
}

func userConfigPath(cfg *config.Config, uc *userconfig.Config) (string, error) {
	if cfg.UserConfigPath != "" {
		return cfg.UserConfigPath, nil
	}
	if loc := uc.Location(); loc != "" {
		return loc, nil
	}
	return userconfig.Path()
}

func saveUserConfig(cfg *config.Config, uc *userconfig.Config) error {
	path, err := userConfigPath(cfg, uc)
	if err != nil {
		return err
	}
	return uc.SaveTo(path)
}

// redactURI hides a password embedded in a provider URI.
func redactURI(raw string) string {
	u, err := provider.ParseURI(raw)
	if err != nil {
		return raw
	}
	return u.String()
}
