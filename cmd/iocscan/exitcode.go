package main

import (
	"errors"

	"iocscan/internal/ioc"
	"iocscan/internal/textsrc"
)

// Process exit codes.
const (
	exitOK          = 0
	exitInput       = 1
	exitUsage       = 2
	exitDegenerate  = 3
	exitConfigError = 4
)

var (
	errUsage  = errors.New("usage error")
	errConfig = errors.New("configuration error")
)

// exitCode maps an error to the process exit code. Only sentinel errors are
// consulted, never message text.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage),
		errors.Is(err, ioc.ErrInvalidKeyLength),
		errors.Is(err, ioc.ErrInvalidOffset):
		return exitUsage
	case errors.Is(err, ioc.ErrDegenerateDenominator):
		return exitDegenerate
	case errors.Is(err, errConfig):
		return exitConfigError
	case errors.Is(err, textsrc.ErrInputUnavailable):
		return exitInput
	default:
		return exitInput
	}
}
