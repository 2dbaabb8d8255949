//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(os.Interrupt)
}

func kill(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
