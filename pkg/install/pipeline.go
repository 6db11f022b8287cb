// Package install builds a Python toolchain from a source archive.
//
// A [Pipeline] runs five stages strictly in order:
//
//	extract -> configure -> make -> make install -> finalize
//
// Each stage that runs an external process streams its merged output line
// by line into a progress reporter and the run's log file. A non-zero exit
// aborts the pipeline with a STAGE_FAILED error carrying the last lines of
// output. Nothing is rolled back: a partially populated install directory
// stays in place, and a retry starts over from extract.
//
// The toolchain is registered only after finalize has written the
// provenance marker, installed the extra packages, and created every alias.
package install

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/pyshim/pkg/buildinfo"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/observability"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/progress"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageConfigure   Stage = "configure"
	StageMake        Stage = "make"
	StageMakeInstall Stage = "make install"
	StageFinalize    Stage = "finalize"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageExtract, StageConfigure, StageMake, StageMakeInstall, StageFinalize}

// tailLines is how much output a StageFailed error carries.
const tailLines = 20

// DefaultOpenSSLPrefix is where Homebrew keeps OpenSSL on macOS.
const DefaultOpenSSLPrefix = "/usr/local/opt/openssl"

// Options tune the build.
type Options struct {
	// MakeJobs is passed as -j to make; zero lets make decide.
	MakeJobs            int
	EnableOptimizations bool
	// ExtraPackages are pip-installed into the new toolchain during finalize.
	ExtraPackages []string
	// OpenSSLPrefix is used for the macOS cryptography flags.
	OpenSSLPrefix string
}

// Run is the state of one pipeline execution. It owns its log sink.
type Run struct {
	ID      uuid.UUID
	Version pyversion.Version
	Stage   Stage
	LogPath string
	Log     io.WriteCloser
}

// Pipeline turns a downloaded archive into a registered toolchain.
type Pipeline struct {
	Paths    paths.Layout
	Registry *toolchain.Registry
	Runner   Runner
	Aliases  AliasInstaller
	Options  Options

	// Out receives progress display; defaults to os.Stderr.
	Out    io.Writer
	Logger *log.Logger

	// GOOS selects platform build flags; defaults to runtime.GOOS.
	GOOS string
	// Environ is the base process environment; defaults to os.Environ.
	Environ func() []string
	Now     func() time.Time
}

// New returns a pipeline with default collaborators.
func New(layout paths.Layout, reg *toolchain.Registry, opts Options) *Pipeline {
	return &Pipeline{
		Paths:    layout,
		Registry: reg,
		Runner:   ExecRunner{},
		Aliases:  HardLink{},
		Options:  opts,
	}
}

func (p *Pipeline) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stderr
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

func (p *Pipeline) goos() string {
	if p.GOOS != "" {
		return p.GOOS
	}
	return runtime.GOOS
}

func (p *Pipeline) environ() []string {
	if p.Environ != nil {
		return p.Environ()
	}
	return os.Environ()
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Install builds v from the archive at Paths.Archive(v) and registers it.
func (p *Pipeline) Install(ctx context.Context, v pyversion.Version) (rec toolchain.Record, err error) {
	run, err := p.openRun(v)
	if err != nil {
		return toolchain.Record{}, err
	}
	defer func() {
		if cerr := run.Log.Close(); cerr != nil && err == nil {
			err = pserrors.Wrap(pserrors.ErrCodeIO, cerr, "close build log")
		}
	}()
	p.logger().Info("building Python", "version", v, "log", run.LogPath)

	start := time.Now()
	observability.Install().OnInstallStart(ctx, v.String())
	defer func() {
		observability.Install().OnInstallComplete(ctx, v.String(), time.Since(start), err)
	}()

	steps := map[Stage]func(context.Context, *Run) error{
		StageExtract:     p.extract,
		StageConfigure:   p.configure,
		StageMake:        p.build,
		StageMakeInstall: p.makeInstall,
		StageFinalize:    p.finalize,
	}
	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			return toolchain.Record{}, err
		}
		run.Stage = stage
		fmt.Fprintf(run.Log, "==> %s\n", stage)

		stageStart := time.Now()
		observability.Install().OnStageStart(ctx, v.String(), string(stage))
		err := steps[stage](ctx, run)
		observability.Install().OnStageComplete(ctx, v.String(), string(stage), time.Since(stageStart), err)
		if err != nil {
			p.logger().Debug("stage failed", "stage", stage, "err", err)
			return toolchain.Record{}, err
		}
	}

	rec, err = p.Registry.Register(v, p.Paths.InstallDir(v))
	if err != nil {
		return toolchain.Record{}, err
	}
	return rec, nil
}

func (p *Pipeline) openRun(v pyversion.Version) (*Run, error) {
	if err := os.MkdirAll(p.Paths.Logs(), 0o755); err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "create log dir")
	}
	id := uuid.New()
	path := filepath.Join(p.Paths.Logs(), fmt.Sprintf("install-%s-%s.log", v, id))
	f, err := os.Create(path)
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "create build log")
	}
	return &Run{ID: id, Version: v, LogPath: path, Log: f}, nil
}

// label renders the progress label, e.g. "[3/5] make".
func label(stage Stage) string {
	for i, s := range Stages {
		if s == stage {
			return fmt.Sprintf("[%d/%d] %s", i+1, len(Stages), stage)
		}
	}
	return string(stage)
}

func (p *Pipeline) extract(_ context.Context, run *Run) error {
	archive := p.Paths.Archive(run.Version)
	dest := p.Paths.ExtractDir(run.Version)

	st := progress.Start(progress.New(p.out(), label(StageExtract)))
	defer st.Close()

	if err := os.RemoveAll(dest); err != nil {
		st.Fail(err.Error())
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "clear %s", dest)
	}
	err := extractTarGz(archive, dest, func(rel string) {
		fmt.Fprintln(run.Log, rel)
		st.Status(rel)
	})
	if err != nil {
		st.Fail(filepath.Base(archive))
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "extract %s", archive)
	}
	st.Finish(filepath.Base(archive))
	return nil
}

// buildEnv is the environment for the stages that compile the interpreter.
// Platform adjustments go here and never into the manager's own environment.
func (p *Pipeline) buildEnv(v pyversion.Version) []string {
	env := p.environ()
	if p.goos() != "darwin" || v.Compare(pyversion.Version{Major: 3, Minor: 7}) >= 0 {
		return env
	}
	prefix := p.openSSLPrefix()
	return append(env, "CPPFLAGS=-I"+prefix+"/include", "LDFLAGS=-L"+prefix+"/lib")
}

func (p *Pipeline) openSSLPrefix() string {
	if p.Options.OpenSSLPrefix != "" {
		return p.Options.OpenSSLPrefix
	}
	return DefaultOpenSSLPrefix
}

func (p *Pipeline) configureArgs(v pyversion.Version) []string {
	args := []string{"--prefix", p.Paths.InstallDir(v)}
	if p.Options.EnableOptimizations {
		args = append(args, "--enable-optimizations")
	}
	if p.goos() == "darwin" && v.Compare(pyversion.Version{Major: 3, Minor: 7}) >= 0 {
		args = append(args, "--with-openssl="+p.openSSLPrefix())
	}
	return args
}

func (p *Pipeline) configure(ctx context.Context, run *Run) error {
	return p.runStage(ctx, run, StageConfigure, Command{
		Name: "./configure",
		Args: p.configureArgs(run.Version),
		Dir:  p.Paths.ExtractDir(run.Version),
		Env:  p.buildEnv(run.Version),
	})
}

func (p *Pipeline) build(ctx context.Context, run *Run) error {
	var args []string
	if p.Options.MakeJobs > 0 {
		args = append(args, "-j"+strconv.Itoa(p.Options.MakeJobs))
	}
	return p.runStage(ctx, run, StageMake, Command{
		Name: "make",
		Args: args,
		Dir:  p.Paths.ExtractDir(run.Version),
		Env:  p.buildEnv(run.Version),
	})
}

func (p *Pipeline) makeInstall(ctx context.Context, run *Run) error {
	return p.runStage(ctx, run, StageMakeInstall, Command{
		Name: "make",
		Args: []string{"install"},
		Dir:  p.Paths.ExtractDir(run.Version),
		Env:  p.buildEnv(run.Version),
	})
}

func (p *Pipeline) finalize(ctx context.Context, run *Run) error {
	v := run.Version
	installDir := p.Paths.InstallDir(v)
	binDir := filepath.Join(installDir, toolchain.BinDir)

	err := toolchain.WriteMarker(installDir, toolchain.Marker{
		Version:        v.String(),
		Manager:        buildinfo.Name,
		ManagerVersion: buildinfo.Version,
		InstalledAt:    p.now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "finalize %s", v)
	}

	if pkgs := p.Options.ExtraPackages; len(pkgs) > 0 {
		python := filepath.Join(binDir, "python"+v.MajorMinor())
		args := append([]string{"-m", "pip", "install", "--upgrade"}, pkgs...)
		if err := p.runStage(ctx, run, StageFinalize, Command{
			Name: python,
			Args: args,
			Dir:  installDir,
			Env:  p.environ(),
		}); err != nil {
			return err
		}
	}

	ai := p.Aliases
	if ai == nil {
		ai = HardLink{}
	}
	return linkAliases(binDir, v, ai, p.logger())
}

// runStage drives one external process under a progress reporter. The
// reporter is stopped only after output reaches EOF and the process has
// been waited for, and runStage returns only after the reporter exits.
// Cancelling ctx terminates the process and yields ctx.Err().
func (p *Pipeline) runStage(ctx context.Context, run *Run, stage Stage, c Command) error {
	st := progress.Start(progress.New(p.out(), label(stage)))
	defer st.Close()

	fmt.Fprintf(run.Log, "$ %s %v (in %s)\n", c.Name, c.Args, c.Dir)
	proc, err := p.Runner.Start(ctx, c)
	if err != nil {
		st.Fail(err.Error())
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "start %s", stage)
	}

	tail := newRing(tailLines)
	sc := bufio.NewScanner(proc.Output())
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		fmt.Fprintln(run.Log, line)
		tail.add(line)
		st.Status(line)
	}
	if err := sc.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(run.Log, proc.Output())
	}

	status, err := proc.Wait()
	if ctx.Err() != nil {
		st.Fail("cancelled")
		return ctx.Err()
	}
	if err != nil {
		st.Fail(err.Error())
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "wait for %s", stage)
	}
	if status != 0 {
		st.Fail(fmt.Sprintf("exited with status %d", status))
		return pserrors.StageFailed(string(stage), status, tail.lines())
	}
	st.Finish("done")
	return nil
}

// ring keeps the last n lines.
type ring struct {
	buf  []string
	next int
	full bool
}

func newRing(n int) *ring { return &ring{buf: make([]string, n)} }

func (r *ring) add(line string) {
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) lines() []string {
	if !r.full {
		return append([]string(nil), r.buf[:r.next]...)
	}
	return append(append([]string(nil), r.buf[r.next:]...), r.buf[:r.next]...)
}
