package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for corral.

To load completions:

Bash:
  $ source <(corral completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ corral completion bash > /etc/bash_completion.d/corral
  # macOS:
  $ corral completion bash > $(brew --prefix)/etc/bash_completion.d/corral

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ corral completion zsh > "${fpath[1]}/_corral"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ corral completion fish | source

  # To load completions for each session, execute once:
  $ corral completion fish > ~/.config/fish/completions/corral.fish

PowerShell:
  PS> corral completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> corral completion powershell > corral.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	return cmd
}
