//go:build windows

package cluster

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals that end an orchestrator process.
func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func exitCodeFor(os.Signal) int {
	return 1
}
