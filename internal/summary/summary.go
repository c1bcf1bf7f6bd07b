// Package summary renders the human-facing restore confirmation block and
// asks for explicit confirmation before a restore proceeds. Static ANSI
// styling (bold section headers) uses lipgloss, kept from the teacher's TUI
// stack for exactly this kind of one-shot text rendering — no event loop,
// so bubbletea itself was dropped (see DESIGN.md).
package summary

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/homelab-ops/microvm-backup/internal/clierr"
)

var headingStyle = lipgloss.NewStyle().Bold(true)

// FormatArchiveSummary renders the confirmation block: VM / Archive /
// Restore target, a blank line, then the archive's own metadata fields.
// It never prints a "Selected Archive" heading — just the archive line
// itself, so the block reads the same whether it came from an interactive
// pick or a direct --archive flag.
func FormatArchiveSummary(vm, target string, info archive.Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("VM"), vm)
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Archive"), info.Archive)
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Restore target"), target)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Start"), info.Start)
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Duration"), info.Duration)
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Files"), info.FileCount)
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Original size"), FormatSize(info.OriginalSize))
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Compressed size"), FormatSize(info.CompressedSize))
	fmt.Fprintf(&b, "%s: %s\n", headingStyle.Render("Deduplicated size"), FormatSize(info.DeduplicatedSize))
	return b.String()
}

// FormatSize renders a byte count (given as a decimal string, since that's
// what archive.Info carries) using binary IEC units with two decimals
// above the base unit. Non-numeric input (e.g. the "N/A" fallback) passes
// through unchanged.
func FormatSize(raw string) string {
	var bytesCount float64
	if _, err := fmt.Sscanf(raw, "%f", &bytesCount); err != nil {
		return raw
	}

	units := []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}
	value := bytesCount
	unit := units[0]
	for _, u := range units {
		unit = u
		if value < 1024 || u == units[len(units)-1] {
			break
		}
		value /= 1024
	}
	if unit == "B" {
		return fmt.Sprintf("%.0f B", value)
	}
	return fmt.Sprintf("%.2f %s", value, unit)
}

// FormatDuration renders a duration in seconds as Ns, Mm Ns, or Hh Mm Ns,
// choosing the shortest form that fits the magnitude.
func FormatDuration(totalSeconds int) string {
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

// AskRestoreConfirmation prints the summary block and reads a line from
// in, accepting "y" or "yes" (case-insensitive). Anything else — including
// EOF — cancels with a CliError.
func AskRestoreConfirmation(out io.Writer, in io.Reader, vm, target string, info archive.Info) error {
	fmt.Fprintln(out, headingStyle.Render("Restore Confirmation"))
	fmt.Fprint(out, FormatArchiveSummary(vm, target, info))
	fmt.Fprint(out, "\nProceed with restore? [y/N] ")

	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return clierr.New("restore cancelled")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "y" || answer == "yes" {
		return nil
	}
	return clierr.New("restore cancelled")
}
