package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

func (c *CLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed toolchains",
		Long:  `List installed toolchains, oldest first. The one the global default selects is marked with *.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			records, err := c.registry().List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				printInfo(out, "No toolchains installed")
				printNextStep(out, "Install one", appName+" install 3")
				return nil
			}
			def, hasDefault := c.defaultVersion(records)
			for _, rec := range records {
				printToolchain(out, rec, hasDefault && rec.Version.Compare(def) == 0)
			}
			return nil
		},
	}
}

// printToolchain renders one list row, e.g. "* 3.9.1   /home/u/.pyshim/installed/3.9.1".
func printToolchain(w io.Writer, rec toolchain.Record, isDefault bool) {
	mark := " "
	version := StyleValue.Render(fmt.Sprintf("%-10s", rec.Version))
	if isDefault {
		mark = StyleHighlight.Render(iconDefault)
		version = StyleHighlight.Render(fmt.Sprintf("%-10s", rec.Version))
	}
	line := mark + " " + version + " " + StyleDim.Render(rec.InstallDir)
	if !rec.InstalledBySelf {
		line += " " + StyleDim.Render("(external)")
	}
	fmt.Fprintln(w, line)
}

func (c *CLI) findToolchain(args []string) (toolchain.Record, pyversion.Requirement, error) {
	req, from, err := c.requirement(args)
	if err != nil {
		return toolchain.Record{}, pyversion.Requirement{}, err
	}
	c.Logger.Debug("resolved requirement", "requirement", req, "source", from)
	rec, err := c.registry().Find(req)
	return rec, req, err
}

func (c *CLI) pathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path [requirement]",
		Short: "Print the bin directory of the resolved toolchain",
		Long: `Print the bin directory of the toolchain a requirement selects. Without an
argument the requirement comes from .python-version or the global default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, _, err := c.findToolchain(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.BinDir())
			return nil
		},
	}
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version [requirement]",
		Short: "Print the version of the resolved toolchain",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, _, err := c.findToolchain(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Version)
			return nil
		},
	}
}

func (c *CLI) uninstallCommand() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "uninstall <version>",
		Short: "Forget an installed toolchain",
		Long: `Remove a toolchain from the registry. With --purge the install directory is
deleted too, but only for toolchains pyshim built itself.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeInstalled,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := pyversion.ParseVersion(args[0])
			if err != nil {
				return pserrors.Wrap(pserrors.ErrCodeInvalidRequirement, err, "uninstall needs an exact version")
			}
			reg := c.registry()
			rec, found, err := reg.Get(v)
			if err != nil {
				return err
			}
			if err := reg.Remove(v, purge); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSuccess(out, "Uninstalled Python %s", v)
			if found && purge && rec.InstalledBySelf {
				printDetail(out, "Deleted %s", rec.InstallDir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the install directory")
	return cmd
}
