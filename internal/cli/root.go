package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pyshim/pkg/buildinfo"
	"github.com/matzehuels/pyshim/pkg/observability"
)

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   appName,
		Short: "pyshim manages per-project Python toolchains",
		Long: `pyshim builds CPython releases from source and dispatches python, pip and
friends to the release pinned by the nearest .python-version file.

Run "pyshim setup" once, then put the shims directory first on your PATH.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				c.SetLogLevel(LogDebug)
				observability.LogHooks{Logger: c.Logger}.Register()
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().String("home", "", "pyshim home directory (default $PYSHIM_HOME or ~/.pyshim)")
	_ = c.v.BindPFlag("home", root.PersistentFlags().Lookup("home"))

	root.AddCommand(c.listCommand())
	root.AddCommand(c.pathCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.selectCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.runCommand())
	root.AddCommand(c.uninstallCommand())
	root.AddCommand(c.setupCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// Execute runs the command tree with args (excluding the program name).
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
