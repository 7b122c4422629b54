//go:build unix

package process

import (
	"errors"
	"os"
	"syscall"
)

// terminate sends SIGTERM to the process group led by p.
func terminate(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

// kill sends SIGKILL to the process group led by p.
func kill(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// The group is gone; fall back to the leader in case it was reparented.
		if perr := p.Signal(sig); perr != nil && !errors.Is(perr, os.ErrProcessDone) {
			return perr
		}
		return nil
	}
	return err
}
