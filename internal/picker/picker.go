// Package picker drives the external fuzzy interactive picker binary: it
// feeds candidate rows on the picker's stdin, reads its selection or
// cancellation from its exit code, and (for archive selection) wires the
// picker's --preview command to the running preview cache over the
// environment. Spawn hygiene is grounded on the teacher's
// internal/exec/exec_unix.go processGroupAttr pattern, reduced here to
// Pdeathsig on spawn: on Linux the picker is killed if this process dies;
// no separate process group is created.
package picker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/previewcache"
)

// Picker launches the external fuzzy picker (fzf-compatible: candidates on
// stdin, selection on stdout, 0/1/130 exit codes).
type Picker struct {
	// Bin is the picker binary name or path, e.g. "fzf".
	Bin string
}

// New builds a Picker bound to the given binary.
func New(bin string) *Picker {
	return &Picker{Bin: bin}
}

// ArchiveSelection is the outcome of an archive pick: the chosen name, plus
// best-effort enrichment from the preview cache if it completed within the
// short post-selection wait.
type ArchiveSelection struct {
	Archive string
	Info    archive.Info
	HasInfo bool
}

// PickVM presents candidates as a plain list with no preview pane.
func (p *Picker) PickVM(ctx context.Context, candidates []string) (string, error) {
	return p.run(ctx, candidates, nil)
}

// PickArchive presents archive candidates with a live preview pane backed
// by a preview cache scoped to this single pick. The cache and its socket
// are guaranteed to be torn down before PickArchive returns, on every exit
// path (selection, cancellation, or error).
func (p *Picker) PickArchive(ctx context.Context, client archive.Client, vm manifest.VMConfig, candidates []string, selfBinary string) (ArchiveSelection, error) {
	server := previewcache.New(client, vm)
	if err := server.Start(ctx); err != nil {
		return ArchiveSelection{}, fmt.Errorf("starting preview cache: %w", err)
	}
	defer server.Stop()

	server.PrefetchArchives(candidates)

	previewCmd := fmt.Sprintf("%s __preview --archive {}", selfBinary)
	env := []string{fmt.Sprintf("%s=%s", previewcache.EnvSocketName, server.SocketName())}

	selected, err := p.run(ctx, candidates, &previewOptions{cmd: previewCmd, env: env})
	if err != nil {
		return ArchiveSelection{}, err
	}

	result := server.GetPreview(selected, int(pickTimeout/time.Millisecond))
	if result.Status == previewcache.StatusReady {
		return ArchiveSelection{Archive: selected, Info: result.Info, HasInfo: true}, nil
	}
	return ArchiveSelection{Archive: selected}, nil
}

type previewOptions struct {
	cmd string
	env []string
}

// run is the shared picker invocation: write candidates to stdin, wait,
// classify the exit code.
func (p *Picker) run(ctx context.Context, candidates []string, preview *previewOptions) (string, error) {
	if _, err := exec.LookPath(p.Bin); err != nil {
		return "", clierr.New("picker binary not found in PATH: %s", p.Bin)
	}

	args := []string{}
	if preview != nil {
		args = append(args, "--preview", preview.cmd)
	}

	cmd := exec.CommandContext(ctx, p.Bin, args...)
	cmd.Stdin = strings.NewReader(strings.Join(candidates, "\n") + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if preview != nil {
		cmd.Env = append(os.Environ(), preview.env...)
	}
	applySpawnAttrs(cmd)

	runErr := cmd.Run()
	exitCode := exitCodeOf(runErr)

	switch exitCode {
	case 0:
		selected := strings.TrimSpace(stdout.String())
		if selected == "" {
			return "", clierr.New("picker exited 0 with no selection")
		}
		return selected, nil
	case 1, 130:
		return "", clierr.ErrCancelled
	default:
		return "", clierr.New("picker failed (exit %d): %s", exitCode, strings.TrimSpace(stderr.String()))
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// pickTimeout bounds how long a best-effort post-selection cache read may
// take; kept as a named constant rather than a magic literal at the call
// site.
const pickTimeout = 200 * time.Millisecond
