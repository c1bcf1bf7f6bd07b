package picker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakePicker writes a shell script that echoes its first stdin line
// back on stdout, then exits with the given code.
func writeFakePicker(t *testing.T, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake picker script is a POSIX shell script")
	}
	path := filepath.Join(t.TempDir(), "fakepicker.sh")
	script := "#!/bin/sh\nread line\necho \"$line\"\nexit " + itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestPickVMReturnsSelection(t *testing.T) {
	bin := writeFakePicker(t, 0)
	p := New(bin)
	selected, err := p.PickVM(context.Background(), []string{"vm1", "vm2"})
	require.NoError(t, err)
	assert.Equal(t, "vm1", selected)
}

func TestPickVMCancelledOnExit1(t *testing.T) {
	bin := writeFakePicker(t, 1)
	p := New(bin)
	_, err := p.PickVM(context.Background(), []string{"vm1"})
	assert.ErrorIs(t, err, clierr.ErrCancelled)
}

func TestPickVMCancelledOnExit130(t *testing.T) {
	bin := writeFakePicker(t, 130)
	p := New(bin)
	_, err := p.PickVM(context.Background(), []string{"vm1"})
	assert.ErrorIs(t, err, clierr.ErrCancelled)
}

func TestPickVMFailsOnOtherExitCode(t *testing.T) {
	bin := writeFakePicker(t, 2)
	p := New(bin)
	_, err := p.PickVM(context.Background(), []string{"vm1"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, clierr.ErrCancelled)
}

func TestPickVMMissingBinary(t *testing.T) {
	p := New("this-binary-does-not-exist-anywhere")
	_, err := p.PickVM(context.Background(), []string{"vm1"})
	assert.Error(t, err)
}
