// Package toolchain tracks the Python toolchains pyshim knows about.
//
// The [Registry] owns the install root. Each registered toolchain is one
// entry in an index file mapping version to install directory; self-built
// toolchains live under the install root, while toolchains adopted with
// `pyshim select <path>` may live anywhere. A toolchain only enters the index
// through [Registry.Register], which the install pipeline calls after
// Finalize has fully succeeded.
package toolchain

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/pyversion"
)

// BinDir is the directory under an install prefix that holds executables.
const BinDir = "bin"

// Record describes one registered toolchain.
type Record struct {
	Version    pyversion.Version
	InstallDir string
	// Binaries maps every alias name present in the bin directory to its path.
	Binaries map[string]string
	// InstalledBySelf is true when the install directory carries pyshim's
	// provenance marker.
	InstalledBySelf bool
}

// BinDir returns the record's executable directory.
func (r Record) BinDir() string {
	return filepath.Join(r.InstallDir, BinDir)
}

type index struct {
	Toolchains []indexEntry `toml:"toolchain"`
}

type indexEntry struct {
	Version    string `toml:"version"`
	InstallDir string `toml:"install_dir"`
}

// Registry enumerates, resolves, and records installed toolchains.
type Registry struct {
	Logger *log.Logger

	layout paths.Layout
	mu     sync.Mutex
}

// NewRegistry returns a registry over layout's install root.
func NewRegistry(layout paths.Layout) *Registry {
	return &Registry{Logger: log.Default(), layout: layout}
}

// InstallDir is the canonical prefix for a self-built toolchain of v.
func (r *Registry) InstallDir(v pyversion.Version) string {
	return r.layout.InstallDir(v)
}

func (r *Registry) load() (index, error) {
	var idx index
	_, err := toml.DecodeFile(r.layout.Index(), &idx)
	if errors.Is(err, os.ErrNotExist) {
		return index{}, nil
	}
	if err != nil {
		return index{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "read toolchain index")
	}
	return idx, nil
}

func (r *Registry) save(idx index) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(idx); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "encode toolchain index")
	}
	if err := os.MkdirAll(r.layout.Installed(), 0o755); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "create install root")
	}
	tmp := r.layout.Index() + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "write toolchain index")
	}
	if err := os.Rename(tmp, r.layout.Index()); err != nil {
		os.Remove(tmp)
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "replace toolchain index")
	}
	return nil
}

// List returns every registered toolchain whose install directory still
// exists, sorted by ascending version.
func (r *Registry) List() ([]Record, error) {
	r.mu.Lock()
	idx, err := r.load()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(idx.Toolchains))
	for _, e := range idx.Toolchains {
		v, err := pyversion.ParseVersion(e.Version)
		if err != nil {
			r.Logger.Warn("skipping malformed index entry", "version", e.Version, "err", err)
			continue
		}
		if info, err := os.Stat(e.InstallDir); err != nil || !info.IsDir() {
			r.Logger.Debug("skipping toolchain with missing install dir", "version", v, "dir", e.InstallDir)
			continue
		}
		records = append(records, newRecord(v, e.InstallDir))
	}
	sortRecords(records)
	return records, nil
}

func newRecord(v pyversion.Version, dir string) Record {
	return Record{
		Version:         v,
		InstallDir:      dir,
		Binaries:        scanBinaries(filepath.Join(dir, BinDir), v),
		InstalledBySelf: HasMarker(dir),
	}
}

func scanBinaries(binDir string, v pyversion.Version) map[string]string {
	bins := make(map[string]string)
	for _, a := range Aliases {
		for _, q := range []Qualifier{QualifyNone, QualifyMajor, QualifyMajorMinor} {
			name := a.Name(v, q)
			path := filepath.Join(binDir, name)
			if _, err := os.Stat(path); err == nil {
				bins[name] = path
			}
		}
	}
	return bins
}

func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return a.Version.Compare(b.Version)
	})
}

// Versions returns the versions of every listed toolchain.
func (r *Registry) Versions() ([]pyversion.Version, error) {
	records, err := r.List()
	if err != nil {
		return nil, err
	}
	vs := make([]pyversion.Version, len(records))
	for i, rec := range records {
		vs[i] = rec.Version
	}
	return vs, nil
}

// Find returns the highest registered toolchain satisfying req.
func (r *Registry) Find(req pyversion.Requirement) (Record, error) {
	records, err := r.List()
	if err != nil {
		return Record{}, err
	}
	vs := make([]pyversion.Version, len(records))
	for i, rec := range records {
		vs[i] = rec.Version
	}
	best, err := pyversion.Best(req, vs)
	if errors.Is(err, pyversion.ErrNotFound) {
		return Record{}, pserrors.New(pserrors.ErrCodeToolchainNotInstalled,
			"no installed toolchain satisfies %q", req.String())
	}
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.Version == best {
			return rec, nil
		}
	}
	return Record{}, pserrors.New(pserrors.ErrCodeIO, "toolchain %s vanished during lookup", best)
}

// Get returns the record registered for exactly v.
func (r *Registry) Get(v pyversion.Version) (Record, bool, error) {
	records, err := r.List()
	if err != nil {
		return Record{}, false, err
	}
	for _, rec := range records {
		if rec.Version == v {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// Register records v as installed at installDir. Registering the same
// version again replaces the previous entry.
func (r *Registry) Register(v pyversion.Version, installDir string) (Record, error) {
	dir, err := filepath.Abs(installDir)
	if err != nil {
		return Record{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "resolve %s", installDir)
	}
	if info, err := os.Stat(dir); err != nil {
		return Record{}, pserrors.Wrap(pserrors.ErrCodeIO, err, "install dir for %s", v)
	} else if !info.IsDir() {
		return Record{}, pserrors.New(pserrors.ErrCodeIO, "install dir for %s is not a directory: %s", v, dir)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.load()
	if err != nil {
		return Record{}, err
	}
	kept := idx.Toolchains[:0]
	for _, e := range idx.Toolchains {
		if ev, err := pyversion.ParseVersion(e.Version); err == nil && ev == v {
			continue
		}
		kept = append(kept, e)
	}
	idx.Toolchains = append(kept, indexEntry{Version: v.String(), InstallDir: dir})
	if err := r.save(idx); err != nil {
		return Record{}, err
	}

	rec := newRecord(v, dir)
	r.Logger.Debug("registered toolchain", "version", v, "dir", dir, "self", rec.InstalledBySelf)
	return rec, nil
}

// Remove unregisters v. With purge, a self-built install directory is
// deleted as well; directories pyshim did not build are never deleted.
func (r *Registry) Remove(v pyversion.Version, purge bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.load()
	if err != nil {
		return err
	}
	var (
		removed indexEntry
		found   bool
	)
	kept := idx.Toolchains[:0]
	for _, e := range idx.Toolchains {
		if ev, err := pyversion.ParseVersion(e.Version); err == nil && ev == v {
			removed, found = e, true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return pserrors.New(pserrors.ErrCodeToolchainNotInstalled, "toolchain %s is not registered", v)
	}
	idx.Toolchains = kept
	if err := r.save(idx); err != nil {
		return err
	}

	if !purge {
		return nil
	}
	if !HasMarker(removed.InstallDir) {
		r.Logger.Warn("not deleting toolchain pyshim did not build", "dir", removed.InstallDir)
		return nil
	}
	if err := os.RemoveAll(removed.InstallDir); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "delete %s", removed.InstallDir)
	}
	return nil
}

// BinaryPath returns the path of command's binary in rec at qualifier q.
// The file must exist.
func (r *Registry) BinaryPath(rec Record, command string, q Qualifier) (string, error) {
	a, ok := LookupAlias(command)
	if !ok {
		return "", pserrors.New(pserrors.ErrCodeUnknownShimTarget, "unknown command %q", command)
	}
	path := filepath.Join(rec.BinDir(), a.Name(rec.Version, q))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", pserrors.New(pserrors.ErrCodeBinaryMissing,
				"toolchain %s has no %s (expected %s)", rec.Version, command, path)
		}
		return "", pserrors.Wrap(pserrors.ErrCodeIO, err, "stat %s", path)
	}
	return path, nil
}
