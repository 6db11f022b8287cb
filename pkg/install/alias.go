package install

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// ErrSourceMissing is returned by an AliasInstaller whose source does not exist.
var ErrSourceMissing = errors.New("alias source missing")

// AliasInstaller makes dst resolve to the same executable content as src,
// replacing any existing dst.
type AliasInstaller interface {
	Install(src, dst string) error
}

// HardLink aliases with hard links. It is the default.
type HardLink struct{}

// SymLink aliases with relative symbolic links when both names share a
// directory, absolute ones otherwise.
type SymLink struct{}

// Copy aliases by copying the file, for filesystems without links.
type Copy struct{}

func prepare(src, dst string) (os.FileInfo, error) {
	info, err := os.Stat(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	if err != nil {
		return nil, err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return info, nil
}

func (HardLink) Install(src, dst string) error {
	if _, err := prepare(src, dst); err != nil {
		return err
	}
	return os.Link(src, dst)
}

func (SymLink) Install(src, dst string) error {
	if _, err := prepare(src, dst); err != nil {
		return err
	}
	target := src
	if filepath.Dir(src) == filepath.Dir(dst) {
		target = filepath.Base(src)
	}
	return os.Symlink(target, dst)
}

func (Copy) Install(src, dst string) error {
	info, err := prepare(src, dst)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// AliasInstallerFor maps a configuration value to an installer.
func AliasInstallerFor(mode string) (AliasInstaller, error) {
	switch mode {
	case "", "hardlink":
		return HardLink{}, nil
	case "symlink":
		return SymLink{}, nil
	case "copy":
		return Copy{}, nil
	default:
		return nil, fmt.Errorf("unknown alias mode %q (want hardlink, symlink or copy)", mode)
	}
}

// linkAliases creates the unsuffixed and major-only names for every alias
// template in binDir. A missing source binary is logged and skipped; any
// other failure aborts.
func linkAliases(binDir string, v pyversion.Version, ai AliasInstaller, logger *log.Logger) error {
	for _, a := range toolchain.Aliases {
		names := toolchain.AliasNames(a, v)
		source, targets := names.Qualified, []string{names.Plain, names.Major}
		if a.Unversioned {
			source, targets = names.Plain, []string{names.Qualified, names.Major}
		}
		src := filepath.Join(binDir, source)
		for _, dst := range targets {
			err := ai.Install(src, filepath.Join(binDir, dst))
			if errors.Is(err, ErrSourceMissing) {
				// Extras only exist when the package list pulled them in.
				if a.Unversioned {
					logger.Debug("extra not installed, skipping", "command", a.Command)
				} else {
					logger.Warn("alias source not found, skipping", "source", source, "alias", dst)
				}
				break
			}
			if err != nil {
				return pserrors.Wrap(pserrors.ErrCodeIO, err, "link %s -> %s", dst, source)
			}
			logger.Debug("alias created", "alias", dst, "source", source)
		}
	}
	return nil
}
