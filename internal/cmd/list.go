package cmd

import (
	"fmt"
	"sort"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/config"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/picker"
	"github.com/homelab-ops/microvm-backup/internal/summary"
	"github.com/spf13/cobra"
)

func addListCommand(rootCmd *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list [vm]",
		Short: "List a VM's backup archives, or pick one interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := newAppContext()
			if err != nil {
				return err
			}

			if dryRunFlag {
				if len(args) == 0 {
					return clierr.New("--dry-run list requires an explicit vm argument")
				}
				return listDirect(cmd, ctx, args[0])
			}

			if len(args) == 1 {
				return listDirect(cmd, ctx, args[0])
			}

			return listInteractive(cmd, ctx)
		},
	}
	rootCmd.AddCommand(listCmd)
}

func listDirect(cmd *cobra.Command, ctx *appContext, vm string) error {
	vmData, err := manifest.Require(ctx.manifest, vm)
	if err != nil {
		return err
	}
	paths := manifest.PathsFor(ctx.manifest.VolumePath, vm)
	fmt.Fprintf(cmd.OutOrStdout(), "VM: %s\n", vm)
	fmt.Fprintf(cmd.OutOrStdout(), "Subvolume: %s\n", paths.Target)

	names, err := ctx.archive.ListArchiveNames(cmd.Context(), vmData)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func listInteractive(cmd *cobra.Command, ctx *appContext) error {
	vmNames := manifest.Names(ctx.manifest)
	if len(vmNames) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No backup-enabled VMs configured.")
		return nil
	}
	sort.Strings(vmNames)

	prefs, err := config.Load()
	if err != nil {
		return err
	}
	p := picker.New(prefs.Picker())

	vm, err := p.PickVM(cmd.Context(), vmNames)
	if err != nil {
		return err
	}

	vmData, err := manifest.Require(ctx.manifest, vm)
	if err != nil {
		return err
	}

	archiveNames, err := ctx.archive.ListArchiveNames(cmd.Context(), vmData)
	if err != nil {
		return err
	}
	if len(archiveNames) == 0 {
		return clierr.New("no archives found for VM: %s", vm)
	}

	self, err := selfBinary()
	if err != nil {
		return err
	}

	selection, err := p.PickArchive(cmd.Context(), ctx.archive, vmData, archiveNames, self)
	if err != nil {
		return err
	}

	paths := manifest.PathsFor(ctx.manifest.VolumePath, vm)
	info := selection.Info
	if !selection.HasInfo {
		info, err = ctx.archive.FetchArchiveInfo(cmd.Context(), vmData, selection.Archive)
		if err != nil {
			return err
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.FormatArchiveSummary(vm, paths.Target, info))
	return nil
}
