package shim

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
)

// Launcher hands control to a resolved binary. argv is the full argument
// vector including argv[0]; env is the complete environment.
//
// A launcher that replaces the current process never returns on success.
// One that proxies a child returns the child's exit code.
type Launcher interface {
	Launch(path string, argv, env []string) (exitCode int, err error)
}

// SpawnAndWait runs the binary as a child with inherited standard streams
// and waits for it. The child shares the terminal's process group and gets
// interrupts from it directly, so the parent only swallows them; SIGTERM sent
// to the parent alone is forwarded.
type SpawnAndWait struct{}

func (SpawnAndWait) Launch(path string, argv, env []string) (int, error) {
	cmd := exec.Command(path)
	cmd.Args = argv
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, pserrors.Wrap(pserrors.ErrCodeIO, err, "start %s", path)
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigs:
				if sig == syscall.SIGTERM {
					_ = cmd.Process.Signal(sig)
				}
			case <-done:
				return
			}
		}
	}()

	err := cmd.Wait()
	signal.Stop(sigs)
	close(done)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitStatus(exitErr.ProcessState), nil
	default:
		return 0, pserrors.Wrap(pserrors.ErrCodeIO, err, "wait for %s", path)
	}
}

// DefaultLauncher returns ReplaceSelf where the platform supports process
// image replacement and SpawnAndWait elsewhere.
func DefaultLauncher() Launcher {
	if canReplace {
		return ReplaceSelf{}
	}
	return SpawnAndWait{}
}
