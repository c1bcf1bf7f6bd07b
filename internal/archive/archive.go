// Package archive is the Borg client: listing archive names, fetching
// per-archive metadata, and extracting an archive into a staging
// directory. There is no Borg client library for Go, so every operation
// shells out to the borg CLI, as the original BorgManager did.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/homelab-ops/microvm-backup/internal/manifest"
	"github.com/homelab-ops/microvm-backup/internal/runner"
)

// Info is the subset of `borg info --json` fields the summary and preview
// need. Fields default to "N/A" when borg's output omits them, matching the
// original's make_info fallback behavior.
type Info struct {
	Archive           string
	Start             string
	End               string
	Duration          string
	Hostname          string
	Username          string
	SourcePath        string
	CommandLine       string
	FileCount         string
	OriginalSize      string
	CompressedSize    string
	DeduplicatedSize  string
}

// Client is the capability the preview cache and restore flow depend on.
// Defining it as an interface (rather than depending on *BorgClient
// directly) lets previewcache and restore be tested against fakes instead
// of a real borg binary, the same "depend on behavior, not the concrete
// subprocess wrapper" shape the original's test doubles use.
type Client interface {
	ListArchiveNames(ctx context.Context, vm manifest.VMConfig) ([]string, error)
	FetchArchiveInfo(ctx context.Context, vm manifest.VMConfig, archive string) (Info, error)
	ExtractArchive(ctx context.Context, vm manifest.VMConfig, archive, stageDir string) error
	FormatArchiveDetails(info Info) string
}

// BorgClient is the real Client, backed by the borg CLI.
type BorgClient struct {
	Runner *runner.Runner
}

// New builds a BorgClient.
func New(r *runner.Runner) *BorgClient {
	return &BorgClient{Runner: r}
}

// environment builds the env borg needs to reach a VM's repository:
// BORG_REPO, BORG_RSH (keyed to the VM's ssh key), BORG_PASSCOMMAND.
func environment(vm manifest.VMConfig) []string {
	env := os.Environ()
	env = append(env,
		fmt.Sprintf("BORG_REPO=%s", vm.Repo),
		fmt.Sprintf("BORG_RSH=ssh -i %s", vm.SSHKeyPath),
		fmt.Sprintf("BORG_PASSCOMMAND=cat %s", vm.PassFile),
	)
	return env
}

// ListArchiveNames lists archive names in a VM's repository, most recent
// first (descending lexicographic order — archive names are
// ISO-timestamp-prefixed, so this is also chronological).
func (c *BorgClient) ListArchiveNames(ctx context.Context, vm manifest.VMConfig) ([]string, error) {
	result, err := c.Runner.Check(ctx, []string{"borg", "list", "--short"}, runner.WithEnv(environment(vm)), runner.WithCapture())
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(result.Stdout, "\n"), "\n")
	var names []string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line != "" {
			names = append(names, line)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

type borgInfoDoc struct {
	Archives []struct {
		Archive string `json:"archive"`
		Start   string `json:"start"`
		End     string `json:"end"`
		Stats   struct {
			OriginalSize     *int64 `json:"original_size"`
			CompressedSize   *int64 `json:"compressed_size"`
			DeduplicatedSize *int64 `json:"deduplicated_size"`
			NFiles           *int64 `json:"nfiles"`
		} `json:"stats"`
		Hostname    string   `json:"hostname"`
		Username    string   `json:"username"`
		CommandLine []string `json:"command_line"`
		Paths       []string `json:"paths"`
		Source      string   `json:"source"`
	} `json:"archives"`
}

// FetchArchiveInfo runs `borg info --json ::<archive>` and parses the
// single-archive result. Any field borg's output doesn't carry falls back
// to "N/A", mirroring make_info in the original.
func (c *BorgClient) FetchArchiveInfo(ctx context.Context, vm manifest.VMConfig, archive string) (Info, error) {
	result, err := c.Runner.Check(ctx, []string{"borg", "info", "--json", fmt.Sprintf("::%s", archive)}, runner.WithEnv(environment(vm)), runner.WithCapture())
	if err != nil {
		return Info{}, err
	}

	var doc borgInfoDoc
	if jsonErr := json.Unmarshal([]byte(result.Stdout), &doc); jsonErr != nil || len(doc.Archives) == 0 {
		return Info{Archive: archive, Start: "N/A", End: "N/A", Duration: "N/A", Hostname: "N/A",
			Username: "N/A", SourcePath: extractSourcePath(nil, "", nil), CommandLine: "N/A", FileCount: "N/A",
			OriginalSize: "N/A", CompressedSize: "N/A", DeduplicatedSize: "N/A"}, nil
	}

	a := doc.Archives[0]
	return Info{
		Archive:          orNA(a.Archive),
		Start:            orNA(a.Start),
		End:              orNA(a.End),
		Duration:         formatDurationBetween(a.Start, a.End),
		Hostname:         orNA(a.Hostname),
		Username:         orNA(a.Username),
		SourcePath:       extractSourcePath(a.Paths, a.Source, a.CommandLine),
		CommandLine:      orNA(strings.Join(a.CommandLine, " ")),
		FileCount:        countOrNA(a.Stats.NFiles),
		OriginalSize:     countOrNA(a.Stats.OriginalSize),
		CompressedSize:   countOrNA(a.Stats.CompressedSize),
		DeduplicatedSize: countOrNA(a.Stats.DeduplicatedSize),
	}, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func countOrNA(n *int64) string {
	if n == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *n)
}

// borgTimestampLayouts are the timestamp formats accepted for borg's
// start/end fields, tried in order: microsecond precision without a
// timezone, whole seconds without a timezone, then RFC 3339.
var borgTimestampLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseBorgTimestamp(s string) (time.Time, bool) {
	for _, layout := range borgTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatDurationBetween computes the human-formatted archive duration from
// borg's start/end timestamps, falling back to "N/A" when either is missing
// or unparseable.
func formatDurationBetween(start, end string) string {
	startTime, ok := parseBorgTimestamp(start)
	if !ok {
		return "N/A"
	}
	endTime, ok := parseBorgTimestamp(end)
	if !ok {
		return "N/A"
	}
	seconds := int(endTime.Sub(startTime).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return formatDurationSeconds(seconds)
}

// formatDurationSeconds renders Ns, Mm Ns, or Hh Mm Ns, choosing the
// shortest form that fits the magnitude. Kept local to this package (rather
// than shared with internal/summary, which formats the same shape for
// display) to avoid an import cycle: summary already depends on archive.Info.
func formatDurationSeconds(totalSeconds int) string {
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// extractSourcePath derives the backed-up source directory, preferring
// borg's structured fields (a "paths" array, or a "source" string) when
// info's JSON carries them, falling back to scanning the `borg create`
// command line for the rightmost leading-slash token — the convention borg
// invocations use for the source path (the archive reference itself uses
// "::", never a bare leading slash). Returns "N/A" when none of those are
// present.
func extractSourcePath(paths []string, source string, commandLine []string) string {
	if len(paths) > 0 {
		return strings.Join(paths, ", ")
	}
	if source != "" {
		return source
	}
	for i := len(commandLine) - 1; i >= 0; i-- {
		arg := commandLine[i]
		if strings.HasPrefix(arg, "/") {
			return arg
		}
	}
	return "N/A"
}

// FormatArchiveDetails renders a one-line archive identity string, used as
// the body of a preview pane.
func (c *BorgClient) FormatArchiveDetails(info Info) string {
	return fmt.Sprintf("Archive: %s", info.Archive)
}

// ExtractArchive extracts archive into stageDir. Borg writes relative to
// its current working directory, so stageDir is passed as the command's
// cwd.
func (c *BorgClient) ExtractArchive(ctx context.Context, vm manifest.VMConfig, archive, stageDir string) error {
	_, err := c.Runner.Check(ctx,
		[]string{"borg", "extract", "-p", fmt.Sprintf("::%s", archive)},
		runner.WithCwd(stageDir),
		runner.WithEnv(environment(vm)),
		runner.Mutating(),
	)
	return err
}

// lockFailureMarkers are the substrings borg's own error text uses when a
// repository is held by another invocation.
var lockFailureMarkers = []string{
	"lock",
	"already locked",
	"another process",
	"failed to create/acquire the lock",
	"failed to acquire",
	"lock timeout",
}

// IsLockFailure reports whether err came from borg refusing to proceed
// because another process holds the repository lock: a case-insensitive
// substring match against borg's known lock-contention wording.
func IsLockFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range lockFailureMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
