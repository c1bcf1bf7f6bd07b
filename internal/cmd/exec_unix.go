//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// syscallExec replaces the current process image with argv[0], exactly
// like the original's os.execvp(sudo_path, ...): no fork, no wait, the
// sudo'd re-exec becomes this process.
func syscallExec(path string, argv []string) error {
	return syscall.Exec(path, argv, os.Environ())
}
