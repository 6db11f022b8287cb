package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/shim"
)

func (c *CLI) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <requirement> [--] <command> [args...]",
		Short: "Run a command with a toolchain first on PATH",
		Long: `Run a command with the bin directory of the toolchain a requirement selects
prepended to PATH. The command's exit status becomes pyshim's.`,
		Example: `  pyshim run 3.8 -- python -m venv .venv
  pyshim run ">=3.9" pytest -x`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flag parsing stops at the requirement, so a separating "--"
			// arrives as an ordinary argument.
			reqArgs, command := args[:1], args[1:]
			if i := slices.Index(args, "--"); i >= 0 {
				reqArgs, command = args[:i], args[i+1:]
			}
			if len(reqArgs) == 0 || len(command) == 0 {
				return cmd.Usage()
			}

			rec, _, err := c.findToolchain(reqArgs)
			if err != nil {
				return err
			}
			env := prependPath(c.environ(), rec.BinDir())
			bin, err := lookPath(command[0], rec.BinDir())
			if err != nil {
				return err
			}
			c.Logger.Debug("running", "binary", bin, "toolchain", rec.Version)

			code, err := shim.SpawnAndWait{}.Launch(bin, command, env)
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	return cmd
}

// prependPath returns a copy of env with dir first on PATH.
func prependPath(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		if strings.EqualFold(key, "PATH") && !found {
			found = true
			if value != "" {
				value = dir + string(os.PathListSeparator) + value
			} else {
				value = dir
			}
			kv = key + "=" + value
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+dir)
	}
	return out
}

// lookPath prefers the toolchain's own binary, then the process PATH.
func lookPath(name, binDir string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	candidate := filepath.Join(binDir, name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeBinaryMissing, err, "command %q not found", name)
	}
	return path, nil
}
