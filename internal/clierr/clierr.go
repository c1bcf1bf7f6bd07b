// Package clierr defines the small error taxonomy the CLI's single
// top-level handler (main.go) uses to pick a process exit code: an
// ordinary CliError exits 1, a Cancelled error (interactive picker
// cancellation) exits 130, anything else is treated as a CliError.
package clierr

import (
	"errors"
	"fmt"
)

// CliError is a user-facing error: surfaced as-is, no stack trace, exit 1.
type CliError struct {
	msg string
}

// New builds a CliError from a formatted message.
func New(format string, args ...any) *CliError {
	return &CliError{msg: fmt.Sprintf(format, args...)}
}

func (e *CliError) Error() string { return e.msg }

// Cancelled is returned by the interactive picker when the operator backs
// out (Esc, Ctrl-C, or the picker's own cancel exit codes). It is a
// distinct type so the top-level handler can map it to exit 130 instead of
// the ordinary CliError's exit 1, per spec.
type Cancelled struct{}

func (Cancelled) Error() string { return "cancelled" }

// ErrCancelled is the sentinel value callers compare against with errors.Is.
var ErrCancelled error = Cancelled{}

// ExitCode maps an error returned from the command tree to a process exit
// code: nil -> 0, Cancelled -> 130, anything else -> 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrCancelled) {
		return 130
	}
	return 1
}
