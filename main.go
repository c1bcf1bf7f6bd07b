package main

import (
	"fmt"
	"os"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(clierr.ExitCode(err))
}
