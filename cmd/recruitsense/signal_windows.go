//go:build windows

package main

import "os"

// Only Ctrl+C is delivered on Windows.
var terminationSignals = []os.Signal{os.Interrupt}
