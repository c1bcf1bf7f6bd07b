package restore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subvolumeMarker is written inside every directory fakeBtrfs creates so
// that a real os.Rename (which restore.go calls directly) carries
// subvolume identity across the move exactly like real btrfs does: no
// separate path-keyed bookkeeping is needed.
const subvolumeMarker = ".fake-btrfs-subvolume"

// fakeBtrfs operates on real directories under a test's temp dir, so the
// renames and os.Stat calls restore.go performs directly behave exactly as
// they would against a real filesystem.
type fakeBtrfs struct {
	failDelete map[string]bool
}

func newFakeBtrfs() *fakeBtrfs {
	return &fakeBtrfs{failDelete: make(map[string]bool)}
}

func (f *fakeBtrfs) IsSubvolume(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(path, subvolumeMarker))
	return err == nil
}

func (f *fakeBtrfs) Create(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, subvolumeMarker), []byte("x"), 0o644)
}

func (f *fakeBtrfs) DeleteStrictIfExists(ctx context.Context, path, label string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if !f.IsSubvolume(ctx, path) {
		return errors.New("refusing to delete non-subvolume " + label)
	}
	return os.RemoveAll(path)
}

func (f *fakeBtrfs) DeleteBestEffort(ctx context.Context, path, label string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if !f.IsSubvolume(ctx, path) {
		return
	}
	if f.failDelete[path] {
		return
	}
	os.RemoveAll(path)
}

// fakeService tracks one VM unit's active state and lets tests inject a
// Stop or Start failure.
type fakeService struct {
	active    map[string]bool
	failStop  map[string]bool
	failStart map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{active: make(map[string]bool), failStop: make(map[string]bool), failStart: make(map[string]bool)}
}

func (f *fakeService) IsActive(ctx context.Context, unit string) bool { return f.active[unit] }

func (f *fakeService) Stop(ctx context.Context, unit string) error {
	if f.failStop[unit] {
		return errors.New("stop failed")
	}
	f.active[unit] = false
	return nil
}

func (f *fakeService) Start(ctx context.Context, unit string) error {
	if f.failStart[unit] {
		return errors.New("start failed")
	}
	f.active[unit] = true
	return nil
}

func (f *fakeService) StartBestEffort(ctx context.Context, unit string) {
	if f.failStart[unit] {
		return
	}
	f.active[unit] = true
}

// fakeArchiveClient extracts by writing a marker file into the stage
// directory, or fails when scripted to.
type fakeArchiveClient struct {
	extractErr error
}

func (f *fakeArchiveClient) ListArchiveNames(ctx context.Context, vm manifest.VMConfig) ([]string, error) {
	return nil, nil
}

func (f *fakeArchiveClient) FetchArchiveInfo(ctx context.Context, vm manifest.VMConfig, name string) (archive.Info, error) {
	return archive.Info{Archive: name}, nil
}

func (f *fakeArchiveClient) ExtractArchive(ctx context.Context, vm manifest.VMConfig, name, stageDir string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(filepath.Join(stageDir, "extracted-"+name), []byte("data"), 0o644)
}

func (f *fakeArchiveClient) FormatArchiveDetails(info archive.Info) string { return info.Archive }

// setupVolume creates a real target subvolume directory under a temp volume
// path, ready for Begin.
func setupVolume(t *testing.T) (volumePath string, b *fakeBtrfs, svc *fakeService, vm string) {
	t.Helper()
	volumePath = t.TempDir()
	b = newFakeBtrfs()
	svc = newFakeService()
	vm = "vm1"
	require.NoError(t, b.Create(context.Background(), filepath.Join(volumePath, vm)))
	return volumePath, b, svc, vm
}

func TestRestoreCommitsAndCleansUp(t *testing.T) {
	ctx := context.Background()
	volumePath, b, svc, vm := setupVolume(t)
	svc.active[serviceUnit(vm)] = true

	r := runner.New(false)
	cli := &fakeArchiveClient{}

	tx, err := Begin(ctx, r, b, svc, cli, volumePath, vm, "arch-1", manifest.VMConfig{})
	require.NoError(t, err)
	defer tx.Close(ctx)

	require.NoError(t, tx.Run(ctx))

	paths := manifest.PathsFor(volumePath, vm)
	assert.True(t, b.IsSubvolume(ctx, paths.Target))
	assert.FileExists(t, filepath.Join(paths.Target, "extracted-arch-1"))
	assert.True(t, svc.active[serviceUnit(vm)], "service should be restarted after a successful restore")

	tx.Close(ctx)
	_, statErr := os.Stat(paths.Stage)
	assert.True(t, os.IsNotExist(statErr), "stage subvolume must be removed on success")
	_, statErr = os.Stat(paths.Old)
	assert.True(t, os.IsNotExist(statErr), "old subvolume must be removed on success")
}

func TestRestoreFailsWhenTargetIsNotASubvolume(t *testing.T) {
	ctx := context.Background()
	volumePath := t.TempDir()
	vm := "vm1"
	require.NoError(t, os.MkdirAll(filepath.Join(volumePath, vm), 0o755)) // directory, not marked as subvolume

	b := newFakeBtrfs()
	svc := newFakeService()
	r := runner.New(false)
	cli := &fakeArchiveClient{}

	tx, err := Begin(ctx, r, b, svc, cli, volumePath, vm, "arch-1", manifest.VMConfig{})
	require.Error(t, err)
	tx.Close(ctx)
}

func TestRestoreExtractFailureLeavesTargetUntouched(t *testing.T) {
	ctx := context.Background()
	volumePath, b, svc, vm := setupVolume(t)

	r := runner.New(false)
	cli := &fakeArchiveClient{extractErr: errors.New("extract failed")}

	tx, err := Begin(ctx, r, b, svc, cli, volumePath, vm, "arch-1", manifest.VMConfig{})
	require.NoError(t, err)

	runErr := tx.Run(ctx)
	require.Error(t, runErr)
	tx.Close(ctx)

	paths := manifest.PathsFor(volumePath, vm)
	assert.True(t, b.IsSubvolume(ctx, paths.Target), "target must be untouched on a failure before the first rename")
	_, statErr := os.Stat(paths.Stage)
	assert.True(t, os.IsNotExist(statErr), "stage subvolume must be cleaned up after the failed extract")
}

// TestRestoreRollsBackWhenServiceFailsToRestart drives a real failure after
// both renames have already committed (the commit point), by making the
// service's post-restore Start fail. This is the only failure Run can hit
// after the commit point, so it is the natural way to exercise §8 scenario
// 5 (target_moved_to_old true, restore_finished false, target restored from
// old on rollback); the test reads those two flags directly from the
// Transaction, which is possible because it lives in the same package.
func TestRestoreRollsBackWhenServiceFailsToRestart(t *testing.T) {
	ctx := context.Background()
	volumePath, b, svc, vm := setupVolume(t)
	unit := serviceUnit(vm)
	svc.active[unit] = true
	svc.failStart[unit] = true

	r := runner.New(false)
	cli := &fakeArchiveClient{}

	tx, err := Begin(ctx, r, b, svc, cli, volumePath, vm, "arch-1", manifest.VMConfig{})
	require.NoError(t, err)
	defer tx.Close(ctx)

	runErr := tx.Run(ctx)
	require.Error(t, runErr)

	assert.True(t, tx.targetMovedToOld)
	assert.False(t, tx.restoreFinished)

	tx.Close(ctx)

	paths := manifest.PathsFor(volumePath, vm)
	assert.True(t, b.IsSubvolume(ctx, paths.Target), "target must be restored from old on rollback")
	_, statErr := os.Stat(paths.Old)
	assert.True(t, os.IsNotExist(statErr), "old is consumed by the rollback rename")
	_, statErr = os.Stat(paths.Stage)
	assert.True(t, os.IsNotExist(statErr), "stage is cleaned up on rollback too")
}

func TestDryRunRestoreSkipsRenames(t *testing.T) {
	ctx := context.Background()
	volumePath, b, svc, vm := setupVolume(t)
	svc.active[serviceUnit(vm)] = true

	r := runner.New(true)
	cli := &fakeArchiveClient{}

	tx, err := Begin(ctx, r, b, svc, cli, volumePath, vm, "arch-1", manifest.VMConfig{})
	require.NoError(t, err)
	defer tx.Close(ctx)

	require.NoError(t, tx.Run(ctx))

	paths := manifest.PathsFor(volumePath, vm)
	assert.False(t, tx.targetMovedToOld, "dry-run must not perform the renames")
	assert.True(t, b.IsSubvolume(ctx, paths.Target), "dry-run must leave the original target subvolume in place")
}

func serviceUnit(vm string) string {
	return "microvm@" + vm + ".service"
}
