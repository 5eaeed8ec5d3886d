package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
)

type providerInfo struct {
	Scheme      string `json:"scheme"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

func NewProvidersCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List available providers",
		Long: `Display every provider scheme secretspec can open, with an example URI.

Select one with --provider, SECRETSPEC_PROVIDER or 'secretspec config set
defaults.provider <uri>'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			regs := cfg.Registry.Registrations()
			infos := make([]providerInfo, 0, len(regs))
			for _, reg := range regs {
				infos = append(infos, providerInfo{Scheme: reg.Scheme, Description: reg.Description, Example: reg.Example})
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "SCHEME\tDESCRIPTION\tEXAMPLE\n")
			for _, info := range infos {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", info.Scheme, info.Description, info.Example)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")

	return cmd
}
