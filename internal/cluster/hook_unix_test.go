//go:build unix

package cluster

import (
	"os"
	"slices"
	"syscall"
	"testing"
)

func TestTerminationSignals_Unix(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP} {
		if !slices.Contains(TerminationSignals(), sig) {
			t.Errorf("TerminationSignals() is missing %v", sig)
		}
	}
}
