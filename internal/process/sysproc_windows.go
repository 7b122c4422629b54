//go:build windows

package process

import (
	"os"
	"syscall"
)

// sysProcAttr starts the child in a new process group.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate has no graceful equivalent for console-less children on
// Windows, so it kills outright.
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
