package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/vanpelt/codexlens/internal/ingest"
	"github.com/vanpelt/codexlens/internal/models"
)

const (
	colorPrimary = "6"  // Cyan
	colorSuccess = "2"  // Green
	colorWarning = "3"  // Yellow
	colorError   = "1"  // Red
	colorMuted   = "8"  // Gray
	colorText    = "15" // White
)

var (
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color(colorPrimary))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted)).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorText))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorWarning))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))
)

// maxPrintedErrors caps the errors listed in human output
const maxPrintedErrors = 20

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func row(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

// renderSummary formats a run summary for humans
func renderSummary(sum *ingest.Summary) string {
	var b strings.Builder

	b.WriteString(sectionHeaderStyle.Render(fmt.Sprintf("📥 Ingestion run (%s)", sum.Mode)))
	b.WriteString("\n")
	if sum.Rejected {
		b.WriteString(warningStyle.Render("⚠️  " + ingest.ErrRunInProgress.Error()))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(row("Files", fmt.Sprintf("%d processed, %d unchanged", sum.FilesProcessed, sum.FilesSkipped)) + "\n")
	if sum.FilesReset > 0 {
		b.WriteString(row("Truncated", sum.FilesReset) + "\n")
	}
	b.WriteString(row("Lines", sum.LinesIngested) + "\n")
	b.WriteString(row("Inserted", sum.RowsInserted) + "\n")
	b.WriteString(row("Updated", sum.RowsUpdated) + "\n")
	b.WriteString(row("Duration", time.Duration(sum.DurationMs)*time.Millisecond) + "\n")

	if len(sum.Inserted) > 0 {
		kinds := make([]string, 0, len(sum.Inserted))
		for kind := range sum.Inserted {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		b.WriteString("\n")
		for _, kind := range kinds {
			b.WriteString(row("  "+kind, sum.Inserted[models.Kind(kind)]) + "\n")
		}
	}

	b.WriteString("\n")
	if len(sum.Errors) == 0 {
		b.WriteString(successStyle.Render("✅ No errors"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(errorStyle.Render(fmt.Sprintf("❌ %d errors", len(sum.Errors))))
	b.WriteString("\n")
	for i, e := range sum.Errors {
		if i == maxPrintedErrors {
			b.WriteString(labelStyle.Render(fmt.Sprintf("  … %d more", len(sum.Errors)-maxPrintedErrors)))
			b.WriteString("\n")
			break
		}
		where := e.File
		if e.Line > 0 {
			where = fmt.Sprintf("%s:%d", e.File, e.Line)
		}
		if where == "" {
			where = "run"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", errorStyle.Render(where), e.Message))
	}
	return b.String()
}

// renderWatermarks formats watermarks as an aligned table
func renderWatermarks(marks []models.Watermark) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render(fmt.Sprintf("📍 %d watermarks", len(marks))))
	b.WriteString("\n")
	for _, wm := range marks {
		mtime := time.UnixMilli(wm.MtimeMs).Format(time.RFC3339)
		b.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			valueStyle.Render(fmt.Sprintf("%12d", wm.ByteOffset)),
			labelStyle.UnsetWidth().Render(mtime),
			wm.Path))
	}
	return b.String()
}
