package install

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// stopGrace is how long a cancelled stage gets to exit after SIGTERM before
// it is killed.
const stopGrace = 10 * time.Second

// Command is one external process a stage runs.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory. The manager's own cwd is never changed.
	Dir string
	// Env is the complete environment; nil inherits the manager's.
	Env []string
}

// Process is a started Command.
type Process interface {
	// Output yields the merged stdout and stderr stream until the process
	// and every descendant have closed it.
	Output() io.Reader
	// Wait blocks until the process exits and returns its exit status. A
	// non-nil error means the status could not be determined.
	Wait() (int, error)
}

// Runner starts stage processes. Cancelling ctx stops the process.
type Runner interface {
	Start(ctx context.Context, c Command) (Process, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

type execProcess struct {
	cmd *exec.Cmd
	out *os.File
}

// Start runs c in its own process group. When ctx is cancelled the whole
// group receives SIGTERM, so make and the compilers it spawned stop together.
func (ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = stopGrace
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	pw.Close()
	return &execProcess{cmd: cmd, out: pr}, nil
}

func (p *execProcess) Output() io.Reader { return p.out }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.out.Close()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		// Killed by a signal.
		return 128 + signalNumber(exitErr.ProcessState), nil
	default:
		return 0, err
	}
}
