//go:build windows

package cmd

import (
	"os"
	"os/exec"
)

// syscallExec has no process-image-replace equivalent on Windows; it
// spawns argv as a child and exits with its status instead. Windows is not
// a realistic target for this tool (btrfs/systemd are Linux-only) but the
// build must still succeed cross-platform.
func syscallExec(path string, argv []string) error {
	c := exec.Command(argv[0], argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	os.Exit(0)
	return nil
}
