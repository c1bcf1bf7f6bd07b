// Package cmd wires the cobra command tree: the persistent --manifest,
// --verbose and --dry-run flags, privilege re-execution for commands that
// touch the filesystem and systemd, and one subcommand per operation.
// Command-tree shape and PersistentPreRunE flag handling is grounded on
// the teacher's internal/cmd/root.go (NewRootCmd + addXCommands
// composition); privilege re-exec is grounded on the original's
// ensure_root_for_privileged_command.
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/logging"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	manifestFlag string
	verboseFlag  bool
	dryRunFlag   bool
)

// privilegedCommands names the subcommands that touch the filesystem and
// systemd and therefore require root, mirroring the original's allowlist.
var privilegedCommands = map[string]bool{
	"backup":  true,
	"list":    true,
	"restore": true,
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := newRootCmd()
	addBackupCommand(rootCmd)
	addListCommand(rootCmd)
	addRestoreCommand(rootCmd)
	addPreviewCommand(rootCmd)
	addConfigCommands(rootCmd)
	return rootCmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "microvm-backup",
		Short:         "Back up and restore microVM disk images",
		Long:          "microvm-backup manages btrfs-subvolume-backed microVM disk images: triggering scheduled backups, browsing archives, and restoring one in place.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure(verboseFlag)
			if err := reexecWithSudoIfNeeded(cmd.Name(), dryRunFlag); err != nil {
				return err
			}
			return nil
		},
	}

	pflags := rootCmd.PersistentFlags()
	pflags.StringVar(&manifestFlag, "manifest", "", "Path to manifest JSON (default: $MICROVM_BACKUP_MANIFEST or /etc/microvm-backup/manifest.json)")
	pflags.BoolVar(&verboseFlag, "verbose", false, "Enable verbose logging")
	pflags.BoolVar(&dryRunFlag, "dry-run", false, "Print mutating actions without executing them")

	return rootCmd
}

// reexecWithSudoIfNeeded re-executes the current process under sudo when a
// privileged command is run as a non-root user outside dry-run. Dry-run
// never needs elevated privileges since nothing mutating actually runs.
func reexecWithSudoIfNeeded(command string, dryRun bool) error {
	if !privilegedCommands[command] {
		return nil
	}
	if dryRun {
		return nil
	}
	current, err := user.Current()
	if err == nil && current.Uid == "0" {
		return nil
	}

	sudoPath, err := exec.LookPath("sudo")
	if err != nil {
		return clierr.New("sudo is required for this command but was not found in PATH")
	}

	argv := append([]string{sudoPath, "-E", "--", os.Args[0]}, os.Args[1:]...)
	return syscallExec(sudoPath, argv)
}

// Execute builds and runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// selfBinary resolves the absolute path to the running executable, used to
// build the preview child's `--preview` command.
func selfBinary() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving self binary: %w", err)
	}
	return path, nil
}
