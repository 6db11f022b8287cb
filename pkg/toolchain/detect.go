package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/pyversion"
)

// Distribution builds append markers such as "+" to the version banner.
var banner = regexp.MustCompile(`Python (\d+\.\d+(?:\.\d+)?(?:(?:a|b|rc)\d+)?)`)

// DetectVersion asks the interpreter in installDir for its version. It is
// used to adopt toolchains pyshim did not build.
func DetectVersion(ctx context.Context, installDir string) (pyversion.Version, error) {
	for _, name := range []string{"python3", "python", "python2"} {
		bin := filepath.Join(installDir, BinDir, name)
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		// Python 2 prints its banner on stderr.
		out, err := exec.CommandContext(ctx, bin, "-V").CombinedOutput()
		if err != nil {
			return pyversion.Version{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "run %s -V", bin)
		}
		m := banner.FindSubmatch(out)
		if m == nil {
			return pyversion.Version{}, pserrors.New(pserrors.ErrCodeIO, "unrecognised version banner from %s: %q", bin, out)
		}
		return pyversion.ParseVersion(string(m[1]))
	}
	return pyversion.Version{}, pserrors.New(pserrors.ErrCodeBinaryMissing, "no python interpreter in %s", filepath.Join(installDir, BinDir))
}
