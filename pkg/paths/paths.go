// Package paths describes pyshim's on-disk layout.
//
// Everything lives under a single home directory (default ~/.pyshim,
// overridable with $PYSHIM_HOME):
//
//	<home>/
//	  installed/<version>/        one prefix per toolchain
//	  installed/toolchains.toml   registry index
//	  downloads/Python-<v>.tgz    retrieved source archives
//	  extracted/Python-<v>/       build working directories
//	  shims/                      pyshim copy plus alias hard links
//	  logs/                       per-install build logs
//	  cache/                      release index cache
//	  settings.toml               global default and other settings
//	  config.toml                 manager configuration (viper)
//	  extra-packages.txt          packages installed during Finalize
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/pyshim/pkg/pyversion"
)

// AppName is the manager's executable name. Invocations whose basename
// starts with it run the CLI rather than the shim.
const AppName = "pyshim"

// HomeEnv overrides the default home directory.
const HomeEnv = "PYSHIM_HOME"

// Layout resolves every path pyshim reads or writes.
type Layout struct {
	Home string
}

// New returns a Layout rooted at home.
func New(home string) Layout {
	return Layout{Home: home}
}

// FromEnv returns the layout rooted at $PYSHIM_HOME, or ~/.pyshim.
func FromEnv() (Layout, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return New(home), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("get home dir: %w", err)
	}
	return New(filepath.Join(home, "."+AppName)), nil
}

func (l Layout) Installed() string { return filepath.Join(l.Home, "installed") }
func (l Layout) Downloads() string { return filepath.Join(l.Home, "downloads") }
func (l Layout) Extracted() string { return filepath.Join(l.Home, "extracted") }
func (l Layout) Shims() string     { return filepath.Join(l.Home, "shims") }
func (l Layout) Logs() string      { return filepath.Join(l.Home, "logs") }
func (l Layout) Cache() string     { return filepath.Join(l.Home, "cache") }

// Index is the registry's version -> install directory table.
func (l Layout) Index() string { return filepath.Join(l.Installed(), "toolchains.toml") }

// Settings is the opaque key-value settings file.
func (l Layout) Settings() string { return filepath.Join(l.Home, "settings.toml") }

// Config is the manager configuration file read by the CLI.
func (l Layout) Config() string { return filepath.Join(l.Home, "config.toml") }

// ExtraPackages lists the packages installed into every new toolchain.
func (l Layout) ExtraPackages() string { return filepath.Join(l.Home, "extra-packages.txt") }

// InstallDir is the prefix a self-built toolchain is installed into.
func (l Layout) InstallDir(v pyversion.Version) string {
	return filepath.Join(l.Installed(), v.String())
}

// SourceBasename is CPython's name for a release's source tree.
func SourceBasename(v pyversion.Version) string {
	return "Python-" + v.String()
}

// Archive is where the download collaborator deposits the source tarball.
func (l Layout) Archive(v pyversion.Version) string {
	return filepath.Join(l.Downloads(), SourceBasename(v)+".tgz")
}

// ExtractDir is the working directory the archive unpacks into.
func (l Layout) ExtractDir(v pyversion.Version) string {
	return filepath.Join(l.Extracted(), SourceBasename(v))
}

// EnsureDirs creates every directory of the layout.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.Home, l.Installed(), l.Downloads(), l.Extracted(), l.Shims(), l.Logs(), l.Cache()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
