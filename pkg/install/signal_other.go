//go:build !unix

package install

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func terminate(p *os.Process) error { return p.Kill() }

func signalNumber(*os.ProcessState) int { return 0 }
