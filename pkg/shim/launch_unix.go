//go:build unix

package shim

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
)

const canReplace = true

// ReplaceSelf replaces the current process image with the binary. The
// binary inherits the pid, open standard streams, and signal disposition,
// so it behaves exactly as if it had been invoked directly.
type ReplaceSelf struct{}

func (ReplaceSelf) Launch(path string, argv, env []string) (int, error) {
	err := unix.Exec(path, argv, env)
	// Exec only returns on failure.
	return 0, pserrors.Wrap(pserrors.ErrCodeIO, err, "exec %s", path)
}

// exitStatus maps a finished child to a shell-style exit code: the exit
// status, or 128 plus the signal number when a signal killed it.
func exitStatus(ps *os.ProcessState) int {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
