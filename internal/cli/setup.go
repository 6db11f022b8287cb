package cli

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/install"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// shimMajors are the major versions that get their own shim names, e.g.
// python2 and python3.
var shimMajors = []int{2, 3}

func (c *CLI) setupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the pyshim home and install the shims",
		Long: `Create the pyshim home directory, copy this executable into its shims
directory, and link every Python command name (python, python3, pip3, ...)
to that copy. Shell profiles are not edited: add the shims directory to the
front of PATH yourself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := c.layout.EnsureDirs(); err != nil {
				return pserrors.Wrap(pserrors.ErrCodeIO, err, "create home")
			}

			exe, err := os.Executable()
			if err != nil {
				return pserrors.Wrap(pserrors.ErrCodeIO, err, "locate executable")
			}
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				exe = resolved
			}
			ai, err := install.AliasInstallerFor(c.cfg.AliasMode)
			if err != nil {
				return err
			}
			names, err := installShims(exe, c.layout.Shims(), ai)
			if err != nil {
				return err
			}

			if _, err := os.Stat(c.layout.ExtraPackages()); errors.Is(err, os.ErrNotExist) {
				if err := install.WritePackageList(c.layout.ExtraPackages(), install.DefaultExtraPackages); err != nil {
					return err
				}
			}

			printSuccess(out, "Installed %d shims in %s", len(names), c.layout.Shims())
			printDetail(out, "Extra packages: %s", c.layout.ExtraPackages())
			printNextStep(out, "Add the shims to your shell profile", `export PATH="`+c.layout.Shims()+`:$PATH"`)
			return nil
		},
	}
}

// shimNames lists every command name a shim answers to: the plain name of
// each alias plus its major-qualified names.
func shimNames() []string {
	var names []string
	for _, a := range toolchain.Aliases {
		names = append(names, a.Name(pyversion.Version{}, toolchain.QualifyNone))
		for _, major := range shimMajors {
			names = append(names, a.Name(pyversion.Version{Major: major}, toolchain.QualifyMajor))
		}
	}
	return names
}

// installShims copies exe into dir and aliases every shim name to the copy.
// It returns the alias names created.
func installShims(exe, dir string, ai install.AliasInstaller) ([]string, error) {
	suffix := ""
	if runtime.GOOS == "windows" {
		suffix = ".exe"
	}
	self := filepath.Join(dir, paths.AppName+suffix)
	if !sameFile(exe, self) {
		if err := (install.Copy{}).Install(exe, self); err != nil {
			return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "copy %s into %s", exe, dir)
		}
	}

	names := shimNames()
	for _, name := range names {
		if err := ai.Install(self, filepath.Join(dir, name+suffix)); err != nil {
			return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "link shim %s", name)
		}
	}
	return names, nil
}

func sameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}
