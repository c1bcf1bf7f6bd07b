//go:build linux

package picker

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// applySpawnAttrs asks the kernel to SIGKILL the picker if this process
// dies first, so an interrupted backup run never leaves an orphaned picker
// attached to the terminal. The signal goes to the picker process only,
// not to preview children it has spawned.
func applySpawnAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: unix.SIGKILL,
	}
}
