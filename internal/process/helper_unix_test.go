//go:build unix

package process

import (
	"os/signal"
	"syscall"
)

func ignoreTerm() {
	signal.Ignore(syscall.SIGTERM)
}
