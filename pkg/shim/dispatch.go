// Package shim turns an invocation under an interpreter-family name into
// execution of the right toolchain binary.
//
// The pyshim executable is hard-linked into the shims directory under every
// alias name ("python", "python3", "pip3.9", ...). When run under such a
// name, main hands control to a [Dispatcher], which:
//
//  1. identifies the logical command and any version suffix from the name,
//  2. resolves the directory's requirement (never prompting),
//  3. finds the best installed toolchain (never installing),
//  4. locates the binary for the command, and
//  5. launches it with the original arguments and environment.
//
// Every failure is fatal to the invocation. The caller prints one line to
// stderr and exits non-zero.
package shim

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pyshim/pkg/config"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/observability"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// Dispatcher runs the shim path. Zero-valued optional fields take defaults.
type Dispatcher struct {
	// WorkDir is the directory whose requirement governs dispatch.
	WorkDir  string
	Resolver *config.Resolver
	Registry *toolchain.Registry

	// Launcher defaults to DefaultLauncher().
	Launcher Launcher
	// Environ defaults to os.Environ.
	Environ func() []string
	Logger  *log.Logger
}

// NewDispatcher wires a dispatcher to env.
func NewDispatcher(env config.Env) *Dispatcher {
	return &Dispatcher{
		WorkDir:  env.WorkDir,
		Resolver: env.Resolver(),
		Registry: toolchain.NewRegistry(env.Paths),
		Logger:   env.Logger,
	}
}

// Target is a fully resolved dispatch destination.
type Target struct {
	Invocation Invocation
	Record     toolchain.Record
	Binary     string
}

// Locate performs every dispatch step except launching.
func (d *Dispatcher) Locate(argv0 string) (Target, error) {
	inv, err := Identify(argv0)
	if err != nil {
		return Target{}, err
	}

	req, src, err := d.Resolver.Resolve(d.WorkDir)
	if err != nil {
		return Target{}, err
	}
	if c, ok := inv.Constraint(); ok {
		req = req.And(c)
	}
	d.logger().Debug("shim resolve", "command", inv.Command, "requirement", req, "source", src)

	rec, err := d.Registry.Find(req)
	if err != nil {
		return Target{}, err
	}

	bin, err := d.Registry.BinaryPath(rec, inv.Command, inv.Qualifier)
	if err != nil {
		return Target{}, err
	}
	return Target{Invocation: inv, Record: rec, Binary: bin}, nil
}

// Run dispatches argv0 with args. With a replacing launcher it does not
// return on success; otherwise it returns the child's exit code.
func (d *Dispatcher) Run(ctx context.Context, argv0 string, args []string) (int, error) {
	target, err := d.Locate(argv0)
	if err != nil {
		observability.Shim().OnDispatchError(ctx, argv0, err)
		return 1, err
	}

	observability.Shim().OnDispatch(ctx, target.Invocation.Command, target.Record.Version.String(), target.Binary)

	argv := append([]string{target.Binary}, args...)
	code, err := d.launcher().Launch(target.Binary, argv, d.environ())
	if err != nil {
		observability.Shim().OnDispatchError(ctx, target.Invocation.Command, err)
		return 1, err
	}
	return code, nil
}

func (d *Dispatcher) launcher() Launcher {
	if d.Launcher != nil {
		return d.Launcher
	}
	return DefaultLauncher()
}

func (d *Dispatcher) environ() []string {
	if d.Environ != nil {
		return d.Environ()
	}
	return os.Environ()
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Message renders err as the single diagnostic line a shim prints.
func Message(argv0 string, err error) string {
	msg, _, _ := strings.Cut(pserrors.UserMessage(err), "\n")
	return "pyshim (" + filepath.Base(argv0) + "): " + msg
}
