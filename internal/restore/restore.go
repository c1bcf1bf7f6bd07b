// Package restore implements the scoped restore transaction: stage an
// archive into a fresh subvolume, quiesce the VM, commit by renaming
// subvolumes into place, and roll back best-effort on any failure. This is
// a direct translation of the original's RestoreTransaction
// __enter__/run/__exit__ into Go's Begin/Run/Close, using defer for
// guaranteed cleanup instead of a context-manager.
package restore

import (
	"context"
	"fmt"
	"os"

	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/homelab-ops/microvm-backup/internal/logging"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/runner"
	"github.com/homelab-ops/microvm-backup/internal/service"
)

// BtrfsOps is the subvolume capability the restore transaction depends on.
// *btrfs.Manager satisfies this; tests substitute a fake that tracks
// subvolume-ness with a marker file inside each directory, so os.Rename
// (which restore.go calls directly, not through this capability) carries
// subvolume identity across renames exactly like real btrfs does.
type BtrfsOps interface {
	IsSubvolume(ctx context.Context, path string) bool
	Create(ctx context.Context, path string) error
	DeleteStrictIfExists(ctx context.Context, path, label string) error
	DeleteBestEffort(ctx context.Context, path, label string)
}

// ServiceOps is the VM-service-lifecycle capability the restore transaction
// depends on. *service.Manager satisfies this.
type ServiceOps interface {
	IsActive(ctx context.Context, service string) bool
	Stop(ctx context.Context, service string) error
	Start(ctx context.Context, service string) error
	StartBestEffort(ctx context.Context, service string)
}

// Transaction stages a single VM restore. Begin acquires (preparing the
// stage subvolume); Run performs the extract and commit; Close always
// cleans up, rolling back if Run (or Begin) failed.
type Transaction struct {
	runner  *runner.Runner
	btrfs   BtrfsOps
	service ServiceOps
	archive archive.Client

	vm          string
	archiveName string
	vmData      manifest.VMConfig
	paths       manifest.Paths
	svcUnit     string

	wasActive        bool
	targetMovedToOld bool
	restoreFinished  bool
	failed           bool
}

// Begin validates preconditions and prepares the stage subvolume. On
// error, Close must still be called to release anything Begin managed to
// set up.
func Begin(ctx context.Context, r *runner.Runner, b BtrfsOps, svc ServiceOps, cli archive.Client, volumePath, vm, archiveName string, vmData manifest.VMConfig) (*Transaction, error) {
	paths := manifest.PathsFor(volumePath, vm)
	t := &Transaction{
		runner:      r,
		btrfs:       b,
		service:     svc,
		archive:     cli,
		vm:          vm,
		archiveName: archiveName,
		vmData:      vmData,
		paths:       paths,
		svcUnit:     service.VMServiceUnit(vm),
	}

	if !b.IsSubvolume(ctx, paths.Target) {
		t.failed = true
		return t, fmt.Errorf("target VM path is not a btrfs subvolume: %s", paths.Target)
	}

	if err := b.DeleteStrictIfExists(ctx, paths.Stage, "restore stage subvolume"); err != nil {
		t.failed = true
		return t, err
	}
	if err := b.DeleteStrictIfExists(ctx, paths.Old, "restore old subvolume"); err != nil {
		t.failed = true
		return t, err
	}
	if err := b.Create(ctx, paths.Stage); err != nil {
		t.failed = true
		return t, err
	}
	return t, nil
}

// Run extracts the archive, quiesces the VM, and commits the two renames.
func (t *Transaction) Run(ctx context.Context) error {
	if err := t.archive.ExtractArchive(ctx, t.vmData, t.archiveName, t.paths.Stage); err != nil {
		t.failed = true
		return err
	}

	if t.service.IsActive(ctx, t.svcUnit) {
		t.wasActive = true
		if err := t.service.Stop(ctx, t.svcUnit); err != nil {
			t.failed = true
			return err
		}
	}

	if t.runner.DryRun {
		logging.Log.Infof("[dry-run] mv %s -> %s", t.paths.Target, t.paths.Old)
		logging.Log.Infof("[dry-run] mv %s -> %s", t.paths.Stage, t.paths.Target)
	} else {
		if err := os.Rename(t.paths.Target, t.paths.Old); err != nil {
			t.failed = true
			return fmt.Errorf("failed to move subvolumes during restore: %w", err)
		}
		t.targetMovedToOld = true
		if err := os.Rename(t.paths.Stage, t.paths.Target); err != nil {
			t.failed = true
			return fmt.Errorf("failed to move subvolumes during restore: %w", err)
		}
	}

	if t.wasActive {
		if err := t.service.Start(ctx, t.svcUnit); err != nil {
			t.failed = true
			return err
		}
	}

	t.restoreFinished = true
	return nil
}

// Close always runs cleanup, rolling back first if the transaction failed.
// Call via defer immediately after Begin, regardless of Begin's error.
func (t *Transaction) Close(ctx context.Context) {
	if t.failed {
		logging.Log.Errorf("restore failed for VM '%s'; attempting rollback.", t.vm)
		t.rollbackBestEffort(ctx)
	}

	t.btrfs.DeleteBestEffort(ctx, t.paths.Stage, "restore stage subvolume")
	if t.restoreFinished {
		t.btrfs.DeleteBestEffort(ctx, t.paths.Old, "previous VM subvolume")
	}
}

func (t *Transaction) rollbackBestEffort(ctx context.Context) {
	if t.targetMovedToOld {
		if _, err := os.Stat(t.paths.Target); err == nil && t.btrfs.IsSubvolume(ctx, t.paths.Target) {
			t.btrfs.DeleteBestEffort(ctx, t.paths.Target, "partially restored target")
		}

		if _, err := os.Stat(t.paths.Old); err == nil {
			if t.runner.DryRun {
				logging.Log.Infof("[dry-run] mv %s -> %s", t.paths.Old, t.paths.Target)
			} else if err := os.Rename(t.paths.Old, t.paths.Target); err != nil {
				logging.Log.Warnf("rollback move failed (%s -> %s)", t.paths.Old, t.paths.Target)
			} else {
				logging.Log.Infof("rollback completed for VM '%s'.", t.vm)
			}
		} else {
			logging.Log.Warnf("rollback source missing: %s", t.paths.Old)
		}
	}

	if t.wasActive {
		t.service.StartBestEffort(ctx, t.svcUnit)
	}
}
