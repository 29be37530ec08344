//go:build !windows

package main

import (
	"os"
	"syscall"
)

// SIGTERM is what systemd and kubernetes send on stop; both drain the
// orchestrator before exit.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
