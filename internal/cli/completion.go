package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand generates shell completion scripts. pyshim never edits
// shell profiles itself; loading the script is left to the user.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for pyshim.

Bash:
  $ source <(pyshim completion bash)

Zsh:
  $ pyshim completion zsh > "${fpath[1]}/_pyshim"

Fish:
  $ pyshim completion fish > ~/.config/fish/completions/pyshim.fish

PowerShell:
  PS> pyshim completion powershell | Out-String | Invoke-Expression
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

// completeInstalled suggests installed versions.
func (c *CLI) completeInstalled(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if err := c.loadConfig(); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	records, err := c.registry().List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Version.String())
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
