// Package runner wraps process execution for every shell-out in
// microvm-backup: btrfs, systemctl, and borg invocations all go through a
// Runner so dry-run and logging behave identically regardless of which
// subsystem is calling. It is a direct translation of the original's
// CommandRunner.run/check.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
	"github.com/homelab-ops/microvm-backup/internal/logging"
)

// Result is the outcome of a Run call: exit code plus any captured output.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands, short-circuiting mutating commands under
// dry-run.
type Runner struct {
	DryRun bool
}

// New builds a Runner.
func New(dryRun bool) *Runner {
	return &Runner{DryRun: dryRun}
}

// Option configures a single Run/Check call.
type Option func(*runConfig)

type runConfig struct {
	cwd      string
	env      []string
	capture  bool
	mutating bool
}

// WithCwd sets the working directory for the child process.
func WithCwd(dir string) Option {
	return func(c *runConfig) { c.cwd = dir }
}

// WithEnv sets the full environment for the child process.
func WithEnv(env []string) Option {
	return func(c *runConfig) { c.env = env }
}

// WithCapture requests stdout/stderr be captured into the Result instead of
// inherited from the parent process.
func WithCapture() Option {
	return func(c *runConfig) { c.capture = true }
}

// Mutating marks a command as changing on-disk or system state. Under
// dry-run, a mutating command is logged and skipped instead of executed.
func Mutating() Option {
	return func(c *runConfig) { c.mutating = true }
}

// Run executes cmd and returns its result without raising an error on a
// non-zero exit code.
func (r *Runner) Run(ctx context.Context, cmd []string, opts ...Option) (Result, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	display := strings.Join(cmd, " ")

	if r.DryRun && cfg.mutating {
		logging.Log.Infof("[dry-run] %s", display)
		return Result{ExitCode: 0}, nil
	}

	logging.Log.Debugf("run: %s", display)

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	if cfg.cwd != "" {
		c.Dir = cfg.cwd
	}
	if cfg.env != nil {
		c.Env = cfg.env
	}

	var stdout, stderr bytes.Buffer
	if cfg.capture {
		c.Stdout = &stdout
		c.Stderr = &stderr
	} else {
		// Mirrors the original's capture_output=False: inherit the parent's
		// stdio so e.g. "systemctl ... -v --wait" and "borg extract -p" still
		// stream their own progress to the terminal.
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
	}

	runErr := c.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if runErr != nil {
		return result, fmt.Errorf("starting %s: %w", cmd[0], runErr)
	}
	result.ExitCode = 0
	return result, nil
}

// Check is Run, but turns a non-zero exit code into a CliError.
func (r *Runner) Check(ctx context.Context, cmd []string, opts ...Option) (Result, error) {
	result, err := r.Run(ctx, cmd, opts...)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		display := strings.Join(cmd, " ")
		detail := ""
		if result.Stderr != "" {
			detail = fmt.Sprintf(": %s", strings.TrimSpace(result.Stderr))
		}
		return result, clierr.New("command failed (exit %d): %s%s", result.ExitCode, display, detail)
	}
	return result, nil
}
