package cmd

import (
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/spf13/cobra"
)

func addBackupCommand(rootCmd *cobra.Command) {
	backupCmd := &cobra.Command{
		Use:   "backup <vm>",
		Short: "Restart a VM's backup job and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm := args[0]
			ctx, err := newAppContext()
			if err != nil {
				return err
			}
			if _, err := manifest.Require(ctx.manifest, vm); err != nil {
				return err
			}
			return ctx.service.RestartBackupJob(cmd.Context(), vm)
		},
	}
	rootCmd.AddCommand(backupCmd)
}
