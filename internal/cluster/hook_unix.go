//go:build unix

package cluster

import (
	"os"
	"syscall"
)

// TerminationSignals are the signals that end an orchestrator process.
func TerminationSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}

func exitCodeFor(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
