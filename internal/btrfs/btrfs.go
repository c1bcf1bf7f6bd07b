// Package btrfs wraps the handful of btrfs subvolume operations the backup
// and restore flows need. There is no Go btrfs client library in the
// ecosystem; every call here shells out to the btrfs CLI, exactly as the
// original BtrfsManager did.
package btrfs

import (
	"context"
	"os"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/logging"
	"github.com/homelab-ops/microvm-backup/internal/runner"
)

// Manager performs subvolume operations through a Runner.
type Manager struct {
	Runner *runner.Runner
}

// New builds a Manager.
func New(r *runner.Runner) *Manager {
	return &Manager{Runner: r}
}

// IsSubvolume reports whether path is a btrfs subvolume. It does not
// distinguish "not a subvolume" from "path does not exist" — both return
// false, matching `btrfs subvolume show`'s failure exit code.
func (m *Manager) IsSubvolume(ctx context.Context, path string) bool {
	result, err := m.Runner.Run(ctx, []string{"btrfs", "subvolume", "show", path}, runner.WithCapture())
	if err != nil {
		return false
	}
	return result.ExitCode == 0
}

// DeleteStrictIfExists deletes path if it exists, refusing (as a CliError)
// if it exists but is not a btrfs subvolume. label is used in the error and
// is purely descriptive (e.g. "restore stage subvolume").
func (m *Manager) DeleteStrictIfExists(ctx context.Context, path, label string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if !m.IsSubvolume(ctx, path) {
		return clierr.New("refusing to delete non-btrfs %s at %s", label, path)
	}
	_, err := m.Runner.Check(ctx, []string{"btrfs", "subvolume", "delete", path}, runner.Mutating())
	return err
}

// DeleteBestEffort deletes path if it exists and is a subvolume, logging
// (never failing) on any problem. Used during rollback and post-restore
// cleanup, where a cleanup failure must not mask or block the outcome that
// triggered it.
func (m *Manager) DeleteBestEffort(ctx context.Context, path, label string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if !m.IsSubvolume(ctx, path) {
		logging.Log.Warnf("%s at %s exists but is not a btrfs subvolume", label, path)
		return
	}
	result, err := m.Runner.Run(ctx, []string{"btrfs", "subvolume", "delete", path}, runner.Mutating())
	if err != nil || result.ExitCode != 0 {
		logging.Log.Warnf("failed to delete %s at %s", label, path)
	}
}

// Create creates a new empty subvolume at path.
func (m *Manager) Create(ctx context.Context, path string) error {
	_, err := m.Runner.Check(ctx, []string{"btrfs", "subvolume", "create", path}, runner.Mutating())
	return err
}
