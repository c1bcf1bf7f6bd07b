package summary

import (
	"strings"
	"testing"

	"github.com/homelab-ops/microvm-backup/internal/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSizeUsesBinaryIECUnits(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize("512"))
	assert.Equal(t, "1.00 KiB", FormatSize("1024"))
	assert.Equal(t, "1.50 MiB", FormatSize("1572864"))
	assert.Equal(t, "N/A", FormatSize("N/A"))
}

func TestFormatDurationChoosesShortestForm(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45))
	assert.Equal(t, "2m 5s", FormatDuration(125))
	assert.Equal(t, "1h 0m 1s", FormatDuration(3601))
}

func TestFormatArchiveSummaryOmitsSelectedArchiveHeading(t *testing.T) {
	info := archive.Info{Archive: "vm1-2026-01-03", Start: "2026-01-03T00:00:00", FileCount: "10"}
	rendered := FormatArchiveSummary("vm1", "/srv/microvms/vm1", info)

	assert.Contains(t, rendered, "VM")
	assert.Contains(t, rendered, "vm1")
	assert.Contains(t, rendered, "Archive")
	assert.Contains(t, rendered, "vm1-2026-01-03")
	assert.Contains(t, rendered, "Restore target")
	assert.NotContains(t, rendered, "Selected Archive")
}

func TestAskRestoreConfirmationAcceptsYes(t *testing.T) {
	var out strings.Builder
	info := archive.Info{Archive: "a1"}
	err := AskRestoreConfirmation(&out, strings.NewReader("yes\n"), "vm1", "/srv/microvms/vm1", info)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Restore Confirmation")
}

func TestAskRestoreConfirmationRejectsAnythingElse(t *testing.T) {
	var out strings.Builder
	info := archive.Info{Archive: "a1"}
	err := AskRestoreConfirmation(&out, strings.NewReader("n\n"), "vm1", "/srv/microvms/vm1", info)
	assert.Error(t, err)
}

func TestAskRestoreConfirmationRejectsEOF(t *testing.T) {
	var out strings.Builder
	info := archive.Info{Archive: "a1"}
	err := AskRestoreConfirmation(&out, strings.NewReader(""), "vm1", "/srv/microvms/vm1", info)
	assert.Error(t, err)
}
