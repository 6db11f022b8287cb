package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pyshim/pkg/config"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/settings"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

func (c *CLI) selectCommand() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "select [requirement | path]",
		Short: "Set the global default or the project requirement",
		Long: `Set the requirement used when no .python-version file is found. With --local,
write .python-version in the current directory instead.

A path argument adopts an existing Python installation (its bin/ must hold a
python3 or python interpreter). It is registered as an external toolchain and
selected exactly. With no argument on a terminal, pick an installed toolchain
from a list.`,
		Example: `  pyshim select 3.9
  pyshim select --local ">=3.8, <3.11"
  pyshim select /usr/local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			text := strings.Join(args, " ")

			switch {
			case text == "":
				if !isTerminal(c.In) {
					return pserrors.New(pserrors.ErrCodeInvalidRequirement, "select needs a requirement or a path")
				}
				records, err := c.registry().List()
				if err != nil {
					return err
				}
				rec, err := pickToolchain(c.In, out, records)
				if err != nil {
					return err
				}
				text = "=" + rec.Version.String()
			case looksLikePath(text):
				rec, err := c.adopt(cmd, text)
				if err != nil {
					return err
				}
				printSuccess(out, "Registered Python %s at %s", rec.Version, rec.InstallDir)
				text = "=" + rec.Version.String()
			}

			req, err := pyversion.Parse(text)
			if err != nil {
				return err
			}
			if local {
				env, err := c.env()
				if err != nil {
					return err
				}
				path, err := config.WriteRequirement(env.WorkDir, req.String())
				if err != nil {
					return err
				}
				printSuccess(out, "Wrote %s to %s", req, path)
			} else {
				if err := c.settings().Set(settings.KeyDefault, req.String()); err != nil {
					return pserrors.Wrap(pserrors.ErrCodeIO, err, "save default")
				}
				printSuccess(out, "Default set to %s", req)
			}

			if _, err := c.registry().Find(req); err != nil {
				printWarning(out, "No installed toolchain satisfies %s yet", req)
				printNextStep(out, "Install it", fmt.Sprintf("%s install %q", appName, req.String()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "write .python-version in the current directory")
	return cmd
}

// looksLikePath reports whether arg names a directory rather than a
// requirement. Requirements never contain path separators.
func looksLikePath(arg string) bool {
	return arg == "." || arg == ".." || strings.ContainsAny(arg, `/\`) || strings.HasPrefix(arg, "~")
}

// adopt registers the installation at dir as an external toolchain.
func (c *CLI) adopt(cmd *cobra.Command, dir string) (toolchain.Record, error) {
	if rest, ok := strings.CutPrefix(dir, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return toolchain.Record{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "expand %s", dir)
		}
		dir = filepath.Join(home, rest)
	}
	if !filepath.IsAbs(dir) {
		env, err := c.env()
		if err != nil {
			return toolchain.Record{}, err
		}
		dir = filepath.Join(env.WorkDir, dir)
	}
	loggerFromContext(cmd.Context()).Debug("detecting version", "dir", dir)
	v, err := toolchain.DetectVersion(cmd.Context(), dir)
	if err != nil {
		return toolchain.Record{}, err
	}
	return c.registry().Register(v, dir)
}
