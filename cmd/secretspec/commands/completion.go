package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/secretspec/internal/config"
	"github.com/systmms/secretspec/internal/declaration"
	"github.com/systmms/secretspec/pkg/provider"
)

// NewCompletionCommand creates the completion command for generating shell completions.
func NewCompletionCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for secretspec.

To load completions:

Bash:
  $ source <(secretspec completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ secretspec completion bash > /etc/bash_completion.d/secretspec
  # macOS:
  $ secretspec completion bash > $(brew --prefix)/etc/bash_completion.d/secretspec

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ secretspec completion zsh > "${fpath[1]}/_secretspec"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ secretspec completion fish | source

  # To load completions for each session, execute once:
  $ secretspec completion fish > ~/.config/fish/completions/secretspec.fish

PowerShell:
  PS> secretspec completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> secretspec completion powershell > secretspec.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// completeProfiles offers the profiles declared in the current declaration.
func completeProfiles(cfg *config.Config) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		decl, err := declaration.Load(cfg.Path)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return decl.ProfileNames(), cobra.ShellCompDirectiveNoFileComp
	}
}

// completeKeys offers the keys visible to the selected profile as the
// first argument.
func completeKeys(cfg *config.Config) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		decl, err := declaration.Load(cfg.Path)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		profile := cfg.ProfileFlag
		if profile == "" {
			profile = provider.DefaultProfile
		}
		return decl.EffectiveProfile(profile).Keys(), cobra.ShellCompDirectiveNoFileComp
	}
}
