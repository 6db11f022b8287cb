package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pyshim/pkg/cache"
	"github.com/matzehuels/pyshim/pkg/config"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/settings"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

func newTestCLI(t *testing.T) (*CLI, paths.Layout) {
	t.Helper()
	home := t.TempDir()
	t.Setenv(paths.HomeEnv, home)
	c := New(io.Discard, LogInfo)
	c.WorkDir = t.TempDir()
	c.In = strings.NewReader("")
	return c, paths.New(home)
}

func execute(c *CLI, args ...string) (string, error) {
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// installFake registers a toolchain with a python<maj.min> binary. Self-built
// ones carry a provenance marker.
func installFake(t *testing.T, layout paths.Layout, version string, self bool) toolchain.Record {
	t.Helper()
	v := pyversion.MustParseVersion(version)
	dir := layout.InstallDir(v)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, toolchain.BinDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, toolchain.BinDir, "python"+v.MajorMinor()), []byte("#!/bin/sh\n"), 0o755))
	if self {
		require.NoError(t, toolchain.WriteMarker(dir, toolchain.Marker{Version: version, Manager: "pyshim"}))
	}
	rec, err := toolchain.NewRegistry(layout).Register(v, dir)
	require.NoError(t, err)
	return rec
}

func settingsDefault(t *testing.T, layout paths.Layout) string {
	t.Helper()
	v, _, err := settings.NewFileStore(layout.Settings()).Get(settings.KeyDefault)
	require.NoError(t, err)
	return v
}

func TestListEmpty(t *testing.T) {
	c, _ := newTestCLI(t)
	out, err := execute(c, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No toolchains installed")
	assert.Contains(t, out, "pyshim install 3")
}

func TestListMarksDefault(t *testing.T) {
	c, layout := newTestCLI(t)
	installFake(t, layout, "3.8.6", true)
	installFake(t, layout, "3.9.1", false)
	require.NoError(t, settings.NewFileStore(layout.Settings()).Set(settings.KeyDefault, "^3.8"))

	out, err := execute(c, "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "* 3.8.6"), "got %q", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  3.9.1"), "got %q", lines[1])
	assert.Contains(t, lines[1], "(external)")
	assert.NotContains(t, lines[0], "(external)")
}

func TestSelectGlobalDefault(t *testing.T) {
	c, layout := newTestCLI(t)

	out, err := execute(c, "select", "3.9")
	require.NoError(t, err)
	assert.Equal(t, "3.9", settingsDefault(t, layout))
	assert.Contains(t, out, "Default set to 3.9")
	assert.Contains(t, out, "No installed toolchain satisfies 3.9 yet")

	installFake(t, layout, "3.9.1", true)
	out, err = execute(c, "select", ">=3.8", "<3.10")
	require.NoError(t, err)
	assert.Equal(t, ">=3.8 <3.10", settingsDefault(t, layout))
	assert.NotContains(t, out, "No installed toolchain")
}

func TestSelectLocal(t *testing.T) {
	c, layout := newTestCLI(t)

	_, err := execute(c, "select", "--local", "^3.8")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(c.WorkDir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "^3.8\n", string(data))
	assert.Empty(t, settingsDefault(t, layout), "--local must not touch the global default")
}

func TestSelectErrors(t *testing.T) {
	c, _ := newTestCLI(t)

	_, err := execute(c, "select", "3.x.1")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeInvalidRequirement), "got %v", err)

	_, err = execute(c, "select")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeInvalidRequirement), "got %v", err)
}

func TestPathAndVersion(t *testing.T) {
	c, layout := newTestCLI(t)
	installFake(t, layout, "3.8.6", true)
	rec := installFake(t, layout, "3.9.1", true)
	_, err := config.WriteRequirement(c.WorkDir, "~3.8")
	require.NoError(t, err)

	out, err := execute(c, "version")
	require.NoError(t, err)
	assert.Equal(t, "3.8.6\n", out)

	out, err = execute(c, "version", "3.9")
	require.NoError(t, err)
	assert.Equal(t, "3.9.1\n", out)

	out, err = execute(c, "path", "3")
	require.NoError(t, err)
	assert.Equal(t, rec.BinDir()+"\n", out)

	_, err = execute(c, "version", "3.10")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeToolchainNotInstalled), "got %v", err)
}

func TestVersionWithoutRequirement(t *testing.T) {
	c, _ := newTestCLI(t)
	_, err := execute(c, "version")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeNoRequirementFound), "got %v", err)
}

func TestUninstall(t *testing.T) {
	c, layout := newTestCLI(t)
	rec := installFake(t, layout, "3.9.1", true)

	out, err := execute(c, "uninstall", "--purge", "3.9.1")
	require.NoError(t, err)
	assert.Contains(t, out, "Uninstalled Python 3.9.1")
	assert.NoDirExists(t, rec.InstallDir)

	_, err = execute(c, "uninstall", "3.9.1")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeToolchainNotInstalled), "got %v", err)

	_, err = execute(c, "uninstall", "three")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeInvalidRequirement), "got %v", err)
}

func TestUninstallKeepsExternalDir(t *testing.T) {
	c, layout := newTestCLI(t)
	rec := installFake(t, layout, "3.7.3", false)

	_, err := execute(c, "uninstall", "--purge", "3.7.3")
	require.NoError(t, err)
	assert.DirExists(t, rec.InstallDir)
}

func TestCacheCommands(t *testing.T) {
	c, layout := newTestCLI(t)

	out, err := execute(c, "cache", "path")
	require.NoError(t, err)
	assert.Equal(t, layout.Cache()+"\n", out)

	out, err = execute(c, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache is empty")

	fc, err := cache.NewFileCache(layout.Cache())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, fc.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, fc.Set(ctx, "b", []byte("2"), time.Hour))

	out, err = execute(c, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 2 cached entries")
}

func TestInstallAlreadySatisfied(t *testing.T) {
	c, layout := newTestCLI(t)
	installFake(t, layout, "3.9.1", true)

	out, err := execute(c, "install", "--select", "3.9")
	require.NoError(t, err)
	assert.Contains(t, out, "Python 3.9.1 already satisfies 3.9")
	assert.Equal(t, "=3.9.1", settingsDefault(t, layout))
}

func TestInstallUnknownRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="3.8.6/">3.8.6/</a> <a href="3.9.1/">3.9.1/</a>`))
	}))
	defer server.Close()

	c, _ := newTestCLI(t)
	t.Setenv("PYSHIM_MIRROR", server.URL)

	_, err := execute(c, "install", "--no-cache", "^3.11")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeNotFound), "got %v", err)
}

func TestInstallWithoutRequirementNonInteractive(t *testing.T) {
	c, _ := newTestCLI(t)
	_, err := execute(c, "install")
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeNoRequirementFound), "got %v", err)
}

func TestLooksLikePath(t *testing.T) {
	tests := []struct {
		arg  string
		want bool
	}{
		{"3.9", false},
		{">=3.8, <3.10", false},
		{"^3", false},
		{".", true},
		{"/usr/local", true},
		{"./venv", true},
		{"~/python", true},
		{`C:\Python39`, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, looksLikePath(tt.arg), tt.arg)
	}
}

func TestPrependPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	got := prependPath([]string{"HOME=/h", "PATH=/usr/bin" + sep + "/bin"}, "/t/bin")
	assert.Equal(t, []string{"HOME=/h", "PATH=/t/bin" + sep + "/usr/bin" + sep + "/bin"}, got)

	assert.Equal(t, []string{"HOME=/h", "PATH=/t/bin"}, prependPath([]string{"HOME=/h"}, "/t/bin"))
	assert.Equal(t, []string{"PATH=/t/bin"}, prependPath([]string{"PATH="}, "/t/bin"))
}

func TestExtraPackagesPrecedence(t *testing.T) {
	c, layout := newTestCLI(t)
	_, err := execute(c, "cache", "path")
	require.NoError(t, err)

	pkgs, err := c.extraPackages("")
	require.NoError(t, err)
	assert.Equal(t, []string{"pip", "setuptools", "wheel"}, pkgs)

	require.NoError(t, os.WriteFile(layout.ExtraPackages(), []byte("pip\nblack # formatter\n"), 0o644))
	pkgs, err = c.extraPackages("")
	require.NoError(t, err)
	assert.Equal(t, []string{"pip", "black"}, pkgs)

	c.cfg.ExtraPackages = []string{"ruff"}
	pkgs, err = c.extraPackages("")
	require.NoError(t, err)
	assert.Equal(t, []string{"ruff"}, pkgs)

	file := filepath.Join(t.TempDir(), "dev.txt")
	require.NoError(t, os.WriteFile(file, []byte("pytest\n"), 0o644))
	pkgs, err = c.extraPackages(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"pytest"}, pkgs)

	_, err = c.extraPackages(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, pserrors.Is(err, pserrors.ErrCodeIO), "got %v", err)
}
