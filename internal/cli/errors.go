package cmd

import "errors"

// Sentinel errors root.go's run wraps failures in, mapped to exit codes by
// exitCodeFor.
var (
	errConfig      = errors.New("configuration error")
	errStorage     = errors.New("storage error")
	errInterrupted = errors.New("run interrupted")
)
