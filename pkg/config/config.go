// Package config resolves which Python requirement applies to a directory.
//
// Resolution walks from a start directory toward the filesystem root looking
// for a [FileName] declaration. The nearest file wins and only its first
// non-empty line is read. When no file exists anywhere on the path, the
// global default from the settings store is used. When that is also unset,
// resolution fails with NO_REQUIREMENT_FOUND.
//
// The resolver never prompts. Callers that can interact with a user (the
// CLI) decide what to do with a NO_REQUIREMENT_FOUND error; the shim path
// simply reports it.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/settings"
)

// FileName is the per-directory requirement declaration.
const FileName = ".python-version"

// Source records where a resolved requirement came from.
type Source struct {
	// Path is the declaration file, or the settings file for the global default.
	Path string
	// Global is true when the requirement came from the settings store.
	Global bool
}

func (s Source) String() string {
	if s.Global {
		return "global default (" + s.Path + ")"
	}
	return s.Path
}

// Env is the explicit context a command runs in: the effective working
// directory, the home layout, and the settings handle. It is passed down
// instead of reading or mutating process-wide state.
type Env struct {
	WorkDir  string
	Paths    paths.Layout
	Settings settings.Store
	Logger   *log.Logger
}

// NewEnv builds an Env from the process working directory and $PYSHIM_HOME.
func NewEnv() (Env, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Env{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "get working directory")
	}
	layout, err := paths.FromEnv()
	if err != nil {
		return Env{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "locate pyshim home")
	}
	return Env{
		WorkDir:  wd,
		Paths:    layout,
		Settings: settings.NewFileStore(layout.Settings()),
		Logger:   log.Default(),
	}, nil
}

// Resolver returns a resolver over the env's settings store.
func (e Env) Resolver() *Resolver {
	r := NewResolver(e.Settings)
	if e.Logger != nil {
		r.Logger = e.Logger
	}
	if fs, ok := e.Settings.(*settings.FileStore); ok {
		r.settingsPath = fs.Path()
	}
	return r
}

// Resolver finds the requirement for a directory. Results are memoized per
// start directory for the lifetime of the Resolver only.
type Resolver struct {
	Logger *log.Logger

	settings     settings.Reader
	settingsPath string

	mu   sync.Mutex
	memo map[string]resolved
}

type resolved struct {
	req pyversion.Requirement
	src Source
}

// NewResolver returns a resolver that falls back to store's default key.
// A nil store disables the global fallback.
func NewResolver(store settings.Reader) *Resolver {
	return &Resolver{
		Logger:       log.Default(),
		settings:     store,
		settingsPath: "settings",
		memo:         make(map[string]resolved),
	}
}

// Resolve returns the requirement governing startDir and where it came from.
func (r *Resolver) Resolve(startDir string) (pyversion.Requirement, Source, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return pyversion.Requirement{}, Source{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "resolve %s", startDir)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if hit, ok := r.memo[dir]; ok {
		return hit.req, hit.src, nil
	}

	req, src, err := r.resolve(dir)
	if err != nil {
		return pyversion.Requirement{}, Source{}, err
	}
	r.memo[dir] = resolved{req: req, src: src}
	return req, src, nil
}

func (r *Resolver) resolve(dir string) (pyversion.Requirement, Source, error) {
	for {
		path := filepath.Join(dir, FileName)
		req, found, err := readRequirementFile(path)
		if err != nil {
			return pyversion.Requirement{}, Source{}, err
		}
		if found {
			r.Logger.Debug("requirement found", "file", path, "requirement", req)
			return req, Source{Path: path}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if r.settings != nil {
		text, ok, err := r.settings.Get(settings.KeyDefault)
		if err != nil {
			return pyversion.Requirement{}, Source{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "read global default")
		}
		if ok && strings.TrimSpace(text) != "" {
			req, err := pyversion.Parse(text)
			if err != nil {
				return pyversion.Requirement{}, Source{}, err
			}
			r.Logger.Debug("using global default", "requirement", req)
			return req, Source{Path: r.settingsPath, Global: true}, nil
		}
	}

	return pyversion.Requirement{}, Source{}, pserrors.New(pserrors.ErrCodeNoRequirementFound,
		"no %s found in %s or any parent, and no global default is set", FileName, dir)
}

// readRequirementFile parses the first non-empty line of path. found is false
// only when the file does not exist.
func readRequirementFile(path string) (pyversion.Requirement, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pyversion.Requirement{}, false, nil
	}
	if err != nil {
		// A directory named like the file, or an unreadable file, is an
		// error rather than a reason to keep walking.
		return pyversion.Requirement{}, false, pserrors.Wrap(pserrors.ErrCodeIO, err, "read %s", path)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		req, err := pyversion.Parse(line)
		if err != nil {
			return pyversion.Requirement{}, false, pserrors.Wrap(pserrors.ErrCodeInvalidRequirement, err, "in %s", path)
		}
		return req, true, nil
	}
	if err := sc.Err(); err != nil {
		return pyversion.Requirement{}, false, pserrors.Wrap(pserrors.ErrCodeIO, err, "read %s", path)
	}
	return pyversion.Requirement{}, false, pserrors.New(pserrors.ErrCodeInvalidRequirement, "%s has no requirement line", path)
}

// WriteRequirement validates text and writes it as dir's declaration file.
func WriteRequirement(dir, text string) (string, error) {
	req, err := pyversion.Parse(text)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(req.String()+"\n"), 0o644); err != nil {
		return "", pserrors.Wrap(pserrors.ErrCodeIO, err, "write %s", path)
	}
	return path, nil
}

// Describe renders a requirement with its source for user-facing output.
func Describe(req pyversion.Requirement, src Source) string {
	return fmt.Sprintf("%s (from %s)", req, src)
}
