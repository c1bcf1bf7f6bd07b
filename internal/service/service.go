// Package service manages the two systemd units each VM has: the VM itself
// (microvm@<vm>.service) and its scheduled backup job
// (borgbackup-job-microvm-<vm>.service). Like btrfs, this shells out to the
// systemctl CLI rather than a D-Bus library — no repo in the pack talks to
// systemd any other way, and the original did the same.
package service

import (
	"context"
	"fmt"

	"github.com/homelab-ops/microvm-backup/internal/logging"
	"github.com/homelab-ops/microvm-backup/internal/runner"
)

// Manager performs systemctl operations through a Runner.
type Manager struct {
	Runner *runner.Runner
}

// New builds a Manager.
func New(r *runner.Runner) *Manager {
	return &Manager{Runner: r}
}

// VMServiceUnit is the unit name for a VM's own service.
func VMServiceUnit(vm string) string {
	return fmt.Sprintf("microvm@%s.service", vm)
}

// BackupUnit is the unit name for a VM's scheduled backup job.
func BackupUnit(vm string) string {
	return fmt.Sprintf("borgbackup-job-microvm-%s.service", vm)
}

// RestartBackupJob runs the backup job unit to completion, synchronously.
func (m *Manager) RestartBackupJob(ctx context.Context, vm string) error {
	_, err := m.Runner.Check(ctx, []string{"systemctl", "restart", "-v", "--wait", BackupUnit(vm)}, runner.Mutating())
	return err
}

// IsActive reports whether service is currently active.
func (m *Manager) IsActive(ctx context.Context, service string) bool {
	result, err := m.Runner.Run(ctx, []string{"systemctl", "is-active", "--quiet", service}, runner.WithCapture())
	if err != nil {
		return false
	}
	return result.ExitCode == 0
}

// Stop stops service, failing hard on error.
func (m *Manager) Stop(ctx context.Context, service string) error {
	_, err := m.Runner.Check(ctx, []string{"systemctl", "stop", "-v", service}, runner.Mutating())
	return err
}

// Start starts service, failing hard on error.
func (m *Manager) Start(ctx context.Context, service string) error {
	_, err := m.Runner.Check(ctx, []string{"systemctl", "start", "-v", service}, runner.Mutating())
	return err
}

// StartBestEffort starts service, logging (never failing) on error. Used
// during rollback, where a restart failure must not mask the restore
// failure that triggered the rollback.
func (m *Manager) StartBestEffort(ctx context.Context, service string) {
	result, err := m.Runner.Run(ctx, []string{"systemctl", "start", "-v", service}, runner.Mutating())
	if err != nil || result.ExitCode != 0 {
		logging.Log.Warnf("failed to restart VM service after rollback: %s", service)
	}
}
