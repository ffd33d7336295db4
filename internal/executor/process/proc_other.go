//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// Without process groups only the direct child can be killed.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
