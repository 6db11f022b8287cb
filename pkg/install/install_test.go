package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

type tarEntry struct {
	name string
	body string
	mode int64
	typ  byte
	link string
}

func writeArchive(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		typ := e.typ
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{Name: e.name, Typeflag: typ, Mode: mode, Size: int64(len(e.body)), Linkname: e.link}
		if typ != tar.TypeReg {
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if typ == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func sourceArchive(t *testing.T, layout paths.Layout, v pyversion.Version) {
	t.Helper()
	root := paths.SourceBasename(v) + "/"
	writeArchive(t, layout.Archive(v), []tarEntry{
		{name: root, typ: tar.TypeDir},
		{name: root + "configure", body: "#!/bin/sh\n", mode: 0o755},
		{name: root + "Include/Python.h", body: "/* header */\n"},
		{name: root + "README.rst", body: "This is Python\n"},
	})
}

// fakeRunner scripts stage processes without running anything.
type fakeRunner struct {
	commands []Command
	// script returns the output and exit status for a command and may
	// touch the filesystem the way the real tool would.
	script func(c Command) (string, int)
}

type fakeProcess struct {
	out    io.Reader
	status int
}

func (p *fakeProcess) Output() io.Reader  { return p.out }
func (p *fakeProcess) Wait() (int, error) { return p.status, nil }

func (r *fakeRunner) Start(_ context.Context, c Command) (Process, error) {
	r.commands = append(r.commands, c)
	out, status := r.script(c)
	return &fakeProcess{out: strings.NewReader(out), status: status}, nil
}

func stageOf(c Command) Stage {
	switch {
	case c.Name == "./configure":
		return StageConfigure
	case c.Name == "make" && len(c.Args) > 0 && c.Args[0] == "install":
		return StageMakeInstall
	case c.Name == "make":
		return StageMake
	default:
		return StageFinalize
	}
}

func (r *fakeRunner) stages() []Stage {
	var out []Stage
	for _, c := range r.commands {
		out = append(out, stageOf(c))
	}
	return out
}

type harness struct {
	layout   paths.Layout
	registry *toolchain.Registry
	runner   *fakeRunner
	pipeline *Pipeline
	out      *bytes.Buffer
}

func newHarness(t *testing.T, v pyversion.Version) *harness {
	t.Helper()
	layout := paths.New(t.TempDir())
	sourceArchive(t, layout, v)

	h := &harness{
		layout:   layout,
		registry: toolchain.NewRegistry(layout),
		runner:   &fakeRunner{},
		out:      &bytes.Buffer{},
	}
	h.registry.Logger = log.New(io.Discard)
	h.pipeline = New(layout, h.registry, Options{MakeJobs: 4})
	h.pipeline.Runner = h.runner
	h.pipeline.Out = h.out
	h.pipeline.Logger = log.New(io.Discard)
	h.pipeline.GOOS = "linux"
	h.pipeline.Environ = func() []string { return []string{"PATH=/usr/bin"} }
	h.pipeline.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

// installBinaries mimics `make install` writing the qualified executables.
func installBinaries(t *testing.T, installDir string, names ...string) {
	bin := filepath.Join(installDir, toolchain.BinDir)
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Error(err)
		return
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(bin, n), []byte("#!/bin/sh\necho "+n+"\n"), 0o755); err != nil {
			t.Error(err)
		}
	}
}

func TestInstallSuccess(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	h.pipeline.Options.ExtraPackages = []string{"pip", "wheel"}
	installDir := h.layout.InstallDir(v)

	h.runner.script = func(c Command) (string, int) {
		if stageOf(c) == StageMakeInstall {
			// No idle3.9: its aliases must be skipped, not fatal.
			installBinaries(t, installDir, "python3.9", "pip3.9", "pydoc3.9", "2to3-3.9")
		}
		if stageOf(c) == StageFinalize {
			// pip puts entry points under their plain name.
			installBinaries(t, installDir, "pytest")
		}
		return "line one\nline two\n", 0
	}

	rec, err := h.pipeline.Install(context.Background(), v)
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageConfigure, StageMake, StageMakeInstall, StageFinalize}, h.runner.stages())
	assert.Equal(t, v, rec.Version)
	assert.True(t, rec.InstalledBySelf)

	bin := filepath.Join(installDir, toolchain.BinDir)
	src, err := os.Stat(filepath.Join(bin, "python3.9"))
	require.NoError(t, err)
	for _, alias := range []string{"python", "python3"} {
		info, err := os.Stat(filepath.Join(bin, alias))
		require.NoError(t, err, alias)
		assert.True(t, os.SameFile(src, info), "%s should be a hard link to python3.9", alias)
	}
	for _, alias := range []string{"2to3", "2to3-3", "pip", "pip3"} {
		assert.FileExists(t, filepath.Join(bin, alias))
	}
	assert.NoFileExists(t, filepath.Join(bin, "idle"))
	assert.NoFileExists(t, filepath.Join(bin, "poetry3"))

	pytest, err := os.Stat(filepath.Join(bin, "pytest"))
	require.NoError(t, err)
	for _, alias := range []string{"pytest3", "pytest3.9"} {
		info, err := os.Stat(filepath.Join(bin, alias))
		require.NoError(t, err, alias)
		assert.True(t, os.SameFile(pytest, info), "%s should be a hard link to pytest", alias)
	}

	m, ok, err := toolchain.ReadMarker(installDir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3.9.1", m.Version)
	assert.Equal(t, "pyshim", m.Manager)

	found, err := h.registry.Find(pyversion.MustParse("3.9"))
	require.NoError(t, err)
	assert.Equal(t, installDir, found.InstallDir)
}

func TestInstallCommands(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	h.pipeline.Options.ExtraPackages = []string{"wheel"}
	h.pipeline.Options.EnableOptimizations = true
	installDir := h.layout.InstallDir(v)
	h.runner.script = func(c Command) (string, int) {
		if stageOf(c) == StageMakeInstall {
			installBinaries(t, installDir, "python3.9")
		}
		return "", 0
	}

	_, err := h.pipeline.Install(context.Background(), v)
	require.NoError(t, err)
	require.Len(t, h.runner.commands, 4)

	src := h.layout.ExtractDir(v)
	configure := h.runner.commands[0]
	assert.Equal(t, []string{"--prefix", installDir, "--enable-optimizations"}, configure.Args)
	assert.Equal(t, src, configure.Dir)
	assert.Equal(t, []string{"-j4"}, h.runner.commands[1].Args)
	assert.Equal(t, src, h.runner.commands[2].Dir)

	pip := h.runner.commands[3]
	assert.Equal(t, filepath.Join(installDir, "bin", "python3.9"), pip.Name)
	assert.Equal(t, []string{"-m", "pip", "install", "--upgrade", "wheel"}, pip.Args)

	// The extracted tree is named for the version and stripped of the
	// archive's root directory.
	assert.FileExists(t, filepath.Join(src, "configure"))
	assert.FileExists(t, filepath.Join(src, "Include", "Python.h"))
}

func TestMakeFailureStopsPipeline(t *testing.T) {
	v := pyversion.MustParseVersion("3.8.6")
	h := newHarness(t, v)

	var out strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&out, "compile step %d\n", i)
	}
	out.WriteString("error: something broke\n")

	h.runner.script = func(c Command) (string, int) {
		if stageOf(c) == StageMake {
			return out.String(), 2
		}
		return "", 0
	}

	_, err := h.pipeline.Install(context.Background(), v)
	require.Error(t, err)

	var se *pserrors.StageError
	require.True(t, errors.As(err, &se), "got %T: %v", err, err)
	assert.Equal(t, "make", se.Stage)
	assert.Equal(t, 2, se.ExitStatus)
	require.Len(t, se.OutputTail, tailLines)
	assert.Equal(t, "error: something broke", se.OutputTail[tailLines-1])
	assert.Equal(t, "compile step 12", se.OutputTail[0])

	assert.Equal(t, []Stage{StageConfigure, StageMake}, h.runner.stages(), "make install and finalize must not run")
	assert.NoFileExists(t, filepath.Join(h.layout.InstallDir(v), toolchain.MarkerFile))

	vs, err := h.registry.Versions()
	require.NoError(t, err)
	assert.Empty(t, vs)
	assert.Contains(t, h.out.String(), "✗")
}

func TestFinalizePipFailure(t *testing.T) {
	v := pyversion.MustParseVersion("3.10.4")
	h := newHarness(t, v)
	h.pipeline.Options.ExtraPackages = []string{"nonexistent-package"}
	installDir := h.layout.InstallDir(v)
	h.runner.script = func(c Command) (string, int) {
		switch stageOf(c) {
		case StageMakeInstall:
			installBinaries(t, installDir, "python3.10")
		case StageFinalize:
			return "ERROR: No matching distribution\n", 1
		}
		return "", 0
	}

	_, err := h.pipeline.Install(context.Background(), v)
	var se *pserrors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "finalize", se.Stage)
	assert.NoFileExists(t, filepath.Join(installDir, "bin", "python"), "aliases come after packages")

	_, ok, err := h.registry.Get(v)
	require.NoError(t, err)
	assert.False(t, ok, "a half-finalized toolchain must not be registered")
}

func TestRetryOverwritesExtraction(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	stale := filepath.Join(h.layout.ExtractDir(v), "stale.o")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	h.runner.script = func(Command) (string, int) { return "", 1 }
	_, err := h.pipeline.Install(context.Background(), v)
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeStageFailed))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(h.layout.ExtractDir(v), "README.rst"))
}

func TestMissingArchive(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	require.NoError(t, os.Remove(h.layout.Archive(v)))

	_, err := h.pipeline.Install(context.Background(), v)
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeIO), "got %v", err)
	assert.Empty(t, h.runner.commands)
}

func TestBuildLogCapturesOutput(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	h.runner.script = func(c Command) (string, int) { return "checking for gcc... gcc\n", 1 }

	_, _ = h.pipeline.Install(context.Background(), v)

	logs, err := filepath.Glob(filepath.Join(h.layout.Logs(), "install-3.9.1-*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	data, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "==> configure")
	assert.Contains(t, string(data), "checking for gcc... gcc")
}

func TestCancelledBeforeStart(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline.Install(ctx, v)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelledDuringStage(t *testing.T) {
	v := pyversion.MustParseVersion("3.9.1")
	h := newHarness(t, v)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.runner.script = func(c Command) (string, int) {
		if stageOf(c) == StageMake {
			// make dies from the SIGTERM that cancellation sends.
			cancel()
			return "compiling\n", 143
		}
		return "", 0
	}

	_, err := h.pipeline.Install(ctx, v)
	assert.ErrorIs(t, err, context.Canceled)
	var stageErr *pserrors.StageError
	assert.False(t, errors.As(err, &stageErr), "cancellation is not a stage failure: %v", err)
	assert.Equal(t, []Stage{StageConfigure, StageMake}, h.runner.stages())
	_, found, err := h.registry.Get(v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDarwinBuildFlags(t *testing.T) {
	layout := paths.New("/home")
	p := New(layout, nil, Options{OpenSSLPrefix: "/opt/ssl"})
	p.GOOS = "darwin"
	p.Environ = func() []string { return []string{"PATH=/usr/bin"} }

	modern := pyversion.MustParseVersion("3.9.1")
	assert.Contains(t, p.configureArgs(modern), "--with-openssl=/opt/ssl")
	assert.Equal(t, []string{"PATH=/usr/bin"}, p.buildEnv(modern))

	legacy := pyversion.MustParseVersion("3.6.15")
	assert.NotContains(t, strings.Join(p.configureArgs(legacy), " "), "openssl")
	assert.Equal(t, []string{"PATH=/usr/bin", "CPPFLAGS=-I/opt/ssl/include", "LDFLAGS=-L/opt/ssl/lib"}, p.buildEnv(legacy))

	p.GOOS = "linux"
	assert.Equal(t, []string{"PATH=/usr/bin"}, p.buildEnv(legacy))
	assert.NotContains(t, strings.Join(p.configureArgs(modern), " "), "openssl")
}

func TestExtractRejectsEscapes(t *testing.T) {
	tests := []struct {
		name  string
		entry tarEntry
	}{
		{"dotdot", tarEntry{name: "Python-3.9.1/../../evil", body: "x"}},
		{"absolute symlink", tarEntry{name: "Python-3.9.1/link", typ: tar.TypeSymlink, link: "/etc/passwd"}},
		{"escaping symlink", tarEntry{name: "Python-3.9.1/link", typ: tar.TypeSymlink, link: "../../outside"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "a.tgz")
			writeArchive(t, archive, []tarEntry{tt.entry})

			err := extractTarGz(archive, filepath.Join(dir, "out"), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "escapes")
		})
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.tgz")
	require.NoError(t, os.WriteFile(archive, []byte("not a gzip stream"), 0o644))
	assert.Error(t, extractTarGz(archive, filepath.Join(dir, "out"), nil))
}

func TestRing(t *testing.T) {
	r := newRing(3)
	assert.Empty(t, r.lines())
	r.add("a")
	r.add("b")
	assert.Equal(t, []string{"a", "b"}, r.lines())
	r.add("c")
	r.add("d")
	assert.Equal(t, []string{"b", "c", "d"}, r.lines())
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	proc, err := ExecRunner{}.Start(context.Background(), Command{Name: sh, Args: []string{"-c", "echo out; echo err >&2; pwd; exit 3"}, Dir: dir})
	require.NoError(t, err)
	data, err := io.ReadAll(proc.Output())
	require.NoError(t, err)
	status, err := proc.Wait()
	require.NoError(t, err)

	assert.Equal(t, 3, status)
	out := string(data)
	assert.Contains(t, out, "out\n")
	assert.Contains(t, out, "err\n")
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.True(t, strings.Contains(out, dir) || strings.Contains(out, resolved), "child should run in Dir, got %q", out)
}

func TestAliasInstallers(t *testing.T) {
	for name, ai := range map[string]AliasInstaller{"hardlink": HardLink{}, "symlink": SymLink{}, "copy": Copy{}} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "python3.9")
			dst := filepath.Join(dir, "python")
			require.NoError(t, os.WriteFile(src, []byte("interpreter"), 0o755))
			require.NoError(t, os.WriteFile(dst, []byte("stale"), 0o755))

			require.NoError(t, ai.Install(src, dst))
			data, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "interpreter", string(data))

			err = ai.Install(filepath.Join(dir, "idle3.9"), filepath.Join(dir, "idle"))
			assert.ErrorIs(t, err, ErrSourceMissing)
		})
	}

	_, err := AliasInstallerFor("junction")
	assert.Error(t, err)
	ai, err := AliasInstallerFor("")
	require.NoError(t, err)
	assert.IsType(t, HardLink{}, ai)
}

func TestPackageList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra-packages.txt")

	pkgs, err := ReadPackageList(path)
	require.NoError(t, err)
	assert.Empty(t, pkgs)

	require.NoError(t, os.WriteFile(path, []byte("# tools\nipython\n\n  black==24.1  # formatter\n"), 0o644))
	pkgs, err = ReadPackageList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ipython", "black==24.1"}, pkgs)

	require.NoError(t, WritePackageList(path, DefaultExtraPackages))
	pkgs, err = ReadPackageList(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultExtraPackages, pkgs)

	require.NoError(t, os.WriteFile(path, []byte("pip\n--index-url=http://evil\n"), 0o644))
	_, err = ReadPackageList(path)
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeIO), "got %v", err)
}

func TestValidatePackage(t *testing.T) {
	for _, spec := range []string{"pip", "black==24.1", "requests[socks]>=2", "./vendor/tool"} {
		assert.NoError(t, ValidatePackage(spec), spec)
	}
	for _, spec := range []string{"", "-e .", "--upgrade", "pip\x00", strings.Repeat("a", 257)} {
		err := ValidatePackage(spec)
		assert.Error(t, err, "%q", spec)
		assert.Empty(t, pserrors.GetCode(err), "input errors carry no code: %q", spec)
	}
}
