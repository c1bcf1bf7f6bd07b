package cmd

import (
	"fmt"
	"os"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/previewcache"
	"github.com/spf13/cobra"
)

var previewArchiveFlag string

// addPreviewCommand registers the hidden __preview child command: it is
// never invoked by an operator directly, only by the external picker's
// own --preview command, which runs `self-binary __preview --archive {}`
// once per highlighted row.
func addPreviewCommand(rootCmd *cobra.Command) {
	previewCmd := &cobra.Command{
		Use:    "__preview",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if previewArchiveFlag == "" {
				return clierr.New("--archive is required")
			}

			socketName := os.Getenv(previewcache.EnvSocketName)
			if socketName == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "preview socket not set (%s)\n", previewcache.EnvSocketName)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Loading archive info for %s...\n", previewArchiveFlag)

			const waitMs = 10000
			resp, err := previewcache.RequestPreview(socketName, previewArchiveFlag, waitMs)

			fmt.Fprint(cmd.OutOrStdout(), "\x1b[2J\x1b[H")
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err.Error())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			return nil
		},
	}
	previewCmd.Flags().StringVar(&previewArchiveFlag, "archive", "", "Archive name to preview")
	rootCmd.AddCommand(previewCmd)
}
