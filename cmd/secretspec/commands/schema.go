package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/secretspec/internal/config"
	"github.com/systmms/secretspec/internal/declaration"
)

func NewSchemaCommand(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the effective declaration",
		Long: `Print the declaration after every extends entry has been merged, for code
generators and other tooling. No provider is contacted.

With --format jsonschema the JSON Schema that secretspec.toml files are
validated against is printed instead.

Examples:
  secretspec schema
  secretspec schema --format yaml
  secretspec schema --format jsonschema > secretspec.schema.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if format == "jsonschema" {
				_, err := out.Write(declaration.Schema())
				return err
			}

			decl, err := declaration.Load(cfg.Path)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(decl)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(decl); err != nil {
					return err
				}
				return enc.Close()
			case "toml":
				data, err := declaration.Encode(decl)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			return fmt.Errorf("unsupported format %q (use json, yaml, toml or jsonschema)", format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format (json, yaml, toml, jsonschema)")

	return cmd
}
