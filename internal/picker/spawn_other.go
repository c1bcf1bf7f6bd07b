//go:build !linux

package picker

import "os/exec"

// applySpawnAttrs is a no-op on platforms without Pdeathsig.
func applySpawnAttrs(cmd *exec.Cmd) {}
