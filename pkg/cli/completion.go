package cli

import (
	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for hostprobe.

To load completions:

Bash:
  $ source <(hostprobe completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ hostprobe completion bash > /etc/bash_completion.d/hostprobe
  # macOS:
  $ hostprobe completion bash > $(brew --prefix)/etc/bash_completion.d/hostprobe

Zsh:
  $ hostprobe completion zsh > "${fpath[1]}/_hostprobe"

Fish:
  $ hostprobe completion fish > ~/.config/fish/completions/hostprobe.fish

PowerShell:
  PS> hostprobe completion powershell | Out-String | Invoke-Expression
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
