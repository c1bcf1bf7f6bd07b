package btrfs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/homelab-ops/microvm-backup/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSubvolumeFalseForMissingPath(t *testing.T) {
	m := New(runner.New(false))
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	assert.False(t, m.IsSubvolume(context.Background(), missing))
}

func TestDeleteStrictIfExistsNoopWhenMissing(t *testing.T) {
	m := New(runner.New(false))
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	require.NoError(t, m.DeleteStrictIfExists(context.Background(), missing, "test subvolume"))
}

func TestDeleteBestEffortNoopWhenMissing(t *testing.T) {
	m := New(runner.New(false))
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	m.DeleteBestEffort(context.Background(), missing, "test subvolume")
}

func TestDeleteStrictIfExistsRefusesNonSubvolume(t *testing.T) {
	m := New(runner.New(false))
	dir := t.TempDir()
	err := m.DeleteStrictIfExists(context.Background(), dir, "test subvolume")
	assert.Error(t, err)
}
