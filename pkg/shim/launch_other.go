//go:build !unix

package shim

import "os"

const canReplace = false

// ReplaceSelf is unavailable on this platform and proxies through
// SpawnAndWait.
type ReplaceSelf struct{}

func (ReplaceSelf) Launch(path string, argv, env []string) (int, error) {
	return SpawnAndWait{}.Launch(path, argv, env)
}

func exitStatus(ps *os.ProcessState) int {
	return ps.ExitCode()
}
