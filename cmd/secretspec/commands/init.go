package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	"github.com/systmms/secretspec/internal/declaration"
	dserrors "github.com/systmms/secretspec/internal/errors"
	"github.com/systmms/secretspec/pkg/provider"
)

func NewInitCommand(cfg *config.Config) *cobra.Command {
	var (
		fromFile string
		name     string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a secretspec.toml for this project",
		Long: `Create a secretspec.toml declaring the secrets this project needs.

With --from, every key of an existing dotenv file is declared as a required
secret in the default profile. Only the names are copied; values stay out of
the declaration.

Examples:
  secretspec init
  secretspec init --from .env
  secretspec init --name billing-api --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Path
			if !force {
				if _, err := os.Stat(path); err == nil {
					return dserrors.UserError{
						Message:    path + " already exists",
						Suggestion: "Use --force to overwrite it",
					}
				}
			}

			if name == "" {
				name = projectName(path)
			}

			decl := declaration.New(name)
			if fromFile != "" {
				var err error
				decl, err = declaration.FromDotenv(name, fromFile)
				if err != nil {
					return dserrors.UserError{
						Message:    "Failed to read " + fromFile,
						Suggestion: "Check that the file exists and uses KEY=value lines",
						Err:        err,
					}
				}
			}

			if err := declaration.Write(decl, path, force); err != nil {
				return err
			}

			cfg.Logger.Info("Created %s with %d secret(s)", path, len(decl.Profiles[provider.DefaultProfile]))
			cfg.Logger.Info("Next: run 'secretspec set <KEY>' to store values, then 'secretspec check'")
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "from", "", "Declare every key found in this dotenv file")
	cmd.Flags().StringVar(&name, "name", "", "Project name (defaults to the directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing declaration")

	return cmd
}

// projectName derives a project name from the directory holding path.
func projectName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "project"
	}
	name := filepath.Base(filepath.Dir(abs))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "project"
	}
	return name
}
