package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/settings"
)

type installOptions struct {
	force        bool
	selectAfter  bool
	packagesFile string
	refreshIndex bool
	noCache      bool
}

func (c *CLI) installCommand() *cobra.Command {
	var opts installOptions

	cmd := &cobra.Command{
		Use:   "install [requirement]",
		Short: "Download and build a Python release",
		Long: `Pick the newest python.org release satisfying the requirement, download its
source, build it, and register it. Without an argument the requirement comes
from .python-version or the global default; on a terminal you are asked for
one if neither exists.

Nothing is done when an installed toolchain already satisfies the
requirement, unless --force is given.`,
		Example: `  pyshim install 3.9
  pyshim install --select "~3.8"
  pyshim install --extra-packages-file requirements-dev.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "rebuild even if a matching toolchain is installed")
	cmd.Flags().BoolVar(&opts.selectAfter, "select", false, "make the installed version the global default")
	cmd.Flags().StringVar(&opts.packagesFile, "extra-packages-file", "", "file listing packages to pip-install into the toolchain")
	cmd.Flags().BoolVar(&opts.refreshIndex, "refresh", false, "refetch the release index")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "do not read or write the release index cache")
	return cmd
}

func (c *CLI) runInstall(cmd *cobra.Command, args []string, opts installOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	req, from, err := c.requirement(args)
	if isNoRequirement(err) && isTerminal(c.In) {
		req, err = promptRequirement(c.In, errOut)
		from = "prompt"
	}
	if err != nil {
		return err
	}
	c.Logger.Debug("install requirement", "requirement", req, "source", from)

	reg := c.registry()
	if !opts.force {
		if rec, err := reg.Find(req); err == nil {
			printInfo(out, "Python %s already satisfies %s", rec.Version, req)
			return c.selectInstalled(out, opts, rec.Version)
		}
	}

	pkgs, err := c.extraPackages(opts.packagesFile)
	if err != nil {
		return err
	}
	fetcher, err := c.fetcher(opts.noCache, errOut)
	if err != nil {
		return err
	}
	v, err := fetcher.Resolve(ctx, req, opts.refreshIndex)
	if err != nil {
		return err
	}
	if _, err := fetcher.Download(ctx, v, opts.force); err != nil {
		return err
	}

	p, err := c.pipeline(reg, pkgs, errOut)
	if err != nil {
		return err
	}
	sw := newStopwatch(c.Logger)
	rec, err := p.Install(ctx, v)
	if err != nil {
		return err
	}
	sw.done(fmt.Sprintf("Installed Python %s", rec.Version))

	if _, err := reg.Find(req); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeToolchainNotInstalled, err, "installed %s but it does not resolve", rec.Version)
	}
	printSuccess(out, "Installed Python %s", rec.Version)
	printDetail(out, "%s", rec.BinDir())
	return c.selectInstalled(out, opts, rec.Version)
}

func (c *CLI) selectInstalled(out io.Writer, opts installOptions, v pyversion.Version) error {
	if !opts.selectAfter {
		return nil
	}
	req := pyversion.Exact(v)
	if err := c.settings().Set(settings.KeyDefault, req.String()); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "save default")
	}
	printSuccess(out, "Default set to %s", req)
	return nil
}
