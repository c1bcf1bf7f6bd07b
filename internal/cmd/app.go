package cmd

import (
	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/homelab-ops/microvm-backup/internal/btrfs"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/runner"
	"github.com/homelab-ops/microvm-backup/internal/service"
)

// appContext bundles the manifest and the collaborators every command
// needs, mirroring the original's AppContext dataclass.
type appContext struct {
	manifest *manifest.Manifest
	runner   *runner.Runner
	btrfs    *btrfs.Manager
	archive  archive.Client
	service  *service.Manager
}

// newAppContext loads the manifest and builds every collaborator against a
// single Runner, so dry-run is consistent across btrfs/systemctl/borg.
func newAppContext() (*appContext, error) {
	m, err := manifest.Load(manifestFlag)
	if err != nil {
		return nil, err
	}
	r := runner.New(dryRunFlag)
	return &appContext{
		manifest: m,
		runner:   r,
		btrfs:    btrfs.New(r),
		archive:  archive.New(r),
		service:  service.New(r),
	}, nil
}
