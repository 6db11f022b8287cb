// Package cli implements the pyshim command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/matzehuels/pyshim/pkg/cache"
	"github.com/matzehuels/pyshim/pkg/config"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/fetch"
	"github.com/matzehuels/pyshim/pkg/install"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/settings"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// appName is the executable name used in help text.
const appName = paths.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// ExitError carries a child process's exit status out of `pyshim run`.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// WorkDir overrides the process working directory.
	WorkDir string
	// In feeds interactive prompts, which only run when it is a terminal.
	In io.Reader
	// Environ overrides os.Environ for `pyshim run`.
	Environ func() []string

	v      *viper.Viper
	cfg    Config
	layout paths.Layout
}

// New creates a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		In:     os.Stdin,
		v:      viper.New(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// =============================================================================
// Collaborator Factories
// =============================================================================

func (c *CLI) env() (config.Env, error) {
	wd := c.WorkDir
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			return config.Env{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "get working directory")
		}
	}
	return config.Env{
		WorkDir:  wd,
		Paths:    c.layout,
		Settings: c.settings(),
		Logger:   c.Logger,
	}, nil
}

func (c *CLI) settings() *settings.FileStore {
	return settings.NewFileStore(c.layout.Settings())
}

func (c *CLI) registry() *toolchain.Registry {
	reg := toolchain.NewRegistry(c.layout)
	reg.Logger = c.Logger
	return reg
}

func (c *CLI) newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(c.layout.Cache())
}

func (c *CLI) fetcher(noCache bool, progressOut io.Writer) (*fetch.Fetcher, error) {
	ch, err := c.newCache(noCache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	f := fetch.New(c.layout, ch)
	f.Mirror = c.cfg.Mirror
	f.IndexTTL = c.cfg.IndexTTL
	f.Logger = c.Logger
	f.Progress = progressOut
	return f, nil
}

func (c *CLI) pipeline(reg *toolchain.Registry, extraPackages []string, out io.Writer) (*install.Pipeline, error) {
	ai, err := install.AliasInstallerFor(c.cfg.AliasMode)
	if err != nil {
		return nil, err
	}
	p := install.New(c.layout, reg, install.Options{
		MakeJobs:            c.cfg.MakeJobs,
		EnableOptimizations: c.cfg.EnableOptimizations,
		ExtraPackages:       extraPackages,
		OpenSSLPrefix:       c.cfg.OpenSSLPrefix,
	})
	p.Aliases = ai
	p.Out = out
	p.Logger = c.Logger
	return p, nil
}

// extraPackages picks the Finalize package list: an explicit file, then the
// configured list, then <home>/extra-packages.txt, then the built-in default.
func (c *CLI) extraPackages(file string) ([]string, error) {
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "extra packages file")
		}
		return install.ReadPackageList(file)
	}
	if len(c.cfg.ExtraPackages) > 0 {
		for _, spec := range c.cfg.ExtraPackages {
			if err := install.ValidatePackage(spec); err != nil {
				return nil, fmt.Errorf("extra_packages: %w", err)
			}
		}
		return c.cfg.ExtraPackages, nil
	}
	if _, err := os.Stat(c.layout.ExtraPackages()); err == nil {
		return install.ReadPackageList(c.layout.ExtraPackages())
	}
	return install.DefaultExtraPackages, nil
}

// requirement parses args as a requirement, or resolves the working
// directory's requirement when args is empty. from describes the origin.
func (c *CLI) requirement(args []string) (req pyversion.Requirement, from string, err error) {
	if len(args) > 0 {
		req, err = pyversion.Parse(strings.Join(args, " "))
		return req, "command line", err
	}
	env, err := c.env()
	if err != nil {
		return pyversion.Requirement{}, "", err
	}
	req, src, err := env.Resolver().Resolve(env.WorkDir)
	if err != nil {
		return pyversion.Requirement{}, "", err
	}
	return req, src.String(), nil
}

// defaultVersion returns the installed version the global default selects.
func (c *CLI) defaultVersion(records []toolchain.Record) (pyversion.Version, bool) {
	text, ok, err := c.settings().Get(settings.KeyDefault)
	if err != nil || !ok {
		return pyversion.Version{}, false
	}
	req, err := pyversion.Parse(text)
	if err != nil {
		return pyversion.Version{}, false
	}
	versions := make([]pyversion.Version, len(records))
	for i, r := range records {
		versions[i] = r.Version
	}
	v, err := pyversion.Best(req, versions)
	return v, err == nil
}

func (c *CLI) environ() []string {
	if c.Environ != nil {
		return c.Environ()
	}
	return os.Environ()
}

func isNoRequirement(err error) bool {
	return pserrors.Is(err, pserrors.ErrCodeNoRequirementFound)
}

var errCancelled = errors.New("cancelled")
