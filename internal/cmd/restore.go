package cmd

import (
	"os"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/config"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/picker"
	"github.com/homelab-ops/microvm-backup/internal/restore"
	"github.com/homelab-ops/microvm-backup/internal/summary"
	"github.com/spf13/cobra"
)

var restoreYesFlag bool

func addRestoreCommand(rootCmd *cobra.Command) {
	restoreCmd := &cobra.Command{
		Use:   "restore [vm] [archive]",
		Short: "Restore a VM from one of its backup archives",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newAppContext()
			if err != nil {
				return err
			}

			if dryRunFlag && len(args) < 2 {
				return clierr.New("--dry-run restore requires explicit vm and archive arguments")
			}

			vm, archiveName, err := resolveRestoreArgs(cmd, ctx, args)
			if err != nil {
				return err
			}

			vmData, err := manifest.Require(ctx.manifest, vm)
			if err != nil {
				return err
			}
			paths := manifest.PathsFor(ctx.manifest.VolumePath, vm)

			if !restoreYesFlag {
				info, err := ctx.archive.FetchArchiveInfo(cmd.Context(), vmData, archiveName)
				if err != nil {
					return err
				}
				if err := summary.AskRestoreConfirmation(cmd.OutOrStdout(), os.Stdin, vm, paths.Target, info); err != nil {
					return err
				}
			}

			tx, err := restore.Begin(cmd.Context(), ctx.runner, ctx.btrfs, ctx.service, ctx.archive, ctx.manifest.VolumePath, vm, archiveName, vmData)
			defer tx.Close(cmd.Context())
			if err != nil {
				return err
			}
			return tx.Run(cmd.Context())
		},
	}
	restoreCmd.Flags().BoolVar(&restoreYesFlag, "yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(restoreCmd)
}

// resolveRestoreArgs fills in a missing vm and/or archive via the
// interactive picker; an explicit vm with a missing archive still drives
// the archive picker (no VM pick needed).
func resolveRestoreArgs(cmd *cobra.Command, ctx *appContext, args []string) (vm, archiveName string, err error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}

	prefs, err := config.Load()
	if err != nil {
		return "", "", err
	}
	p := picker.New(prefs.Picker())

	if len(args) == 1 {
		vm = args[0]
	} else {
		vmNames := manifest.Names(ctx.manifest)
		if len(vmNames) == 0 {
			return "", "", clierr.New("no backup-enabled VMs configured")
		}
		vm, err = p.PickVM(cmd.Context(), vmNames)
		if err != nil {
			return "", "", err
		}
	}

	vmData, err := manifest.Require(ctx.manifest, vm)
	if err != nil {
		return "", "", err
	}

	archiveNames, err := ctx.archive.ListArchiveNames(cmd.Context(), vmData)
	if err != nil {
		return "", "", err
	}
	if len(archiveNames) == 0 {
		return "", "", clierr.New("no archives found for VM: %s", vm)
	}

	self, err := selfBinary()
	if err != nil {
		return "", "", err
	}
	selection, err := p.PickArchive(cmd.Context(), ctx.archive, vmData, archiveNames, self)
	if err != nil {
		return "", "", err
	}
	return vm, selection.Archive, nil
}
