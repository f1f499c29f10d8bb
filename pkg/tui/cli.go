// Package tui renders command results for the terminal.
// Simple, streaming output: styled summaries and a progress bar.
package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/instances"
	"github.com/logflow/actorflow/pkg/report"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the program banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  ACTORFLOW")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Performance decomposed by actor behavior"))
	fmt.Fprintln(w)
}

// PrintClassification prints the edges each pass labeled and the resulting
// label distribution. Unlabeled edges appear under the empty key of dist.
func PrintClassification(w io.Writer, s behavior.Summary, dist map[string]int64) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ CLASSIFICATION COMPLETE"))
	fmt.Fprintln(w)

	width := 0
	for _, l := range behavior.Labels() {
		width = max(width, len(l))
	}
	width = max(width, len("unlabeled"))

	for _, l := range behavior.Labels() {
		fmt.Fprintf(w, "  %s %s %s\n",
			mutedStyle.Render(pad(string(l), width)),
			titleStyle.Render(pad(formatNumber(dist[string(l)]), 8)),
			mutedStyle.Render(fmt.Sprintf("(pass labeled %s)", formatNumber(s.Affected[l]))))
	}
	if n := dist[""]; n > 0 {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render(pad("unlabeled", width)), titleStyle.Render(formatNumber(n)))
	}

	fmt.Fprintln(w, mutedStyle.Render(rule))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	fmt.Fprintln(w)
}

// PrintEdges lists edges with their frequencies, most frequent first.
func PrintEdges(w io.Writer, edges []report.EdgeFrequency) {
	fmt.Fprintln(w)
	if len(edges) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No edges above the frequency threshold."))
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("▸ %d EDGES", len(edges))))
	for _, e := range edges {
		fmt.Fprintf(w, "  %s %s\n", titleStyle.Render(pad(formatNumber(e.Frequency), 8)), e.Key.String())
	}
	fmt.Fprintln(w)
}

// PrintReport prints what a report run produced.
func PrintReport(w io.Writer, rep *report.Report, stats instances.Stats, paths ...string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ REPORT COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Edges:"), titleStyle.Render(formatNumber(int64(len(rep.Edges)))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Rows:"), titleStyle.Render(formatNumber(int64(len(rep.Rows)))))
	fmt.Fprintf(w, "  %s %s hits, %s misses, %s write failures\n",
		mutedStyle.Render("Cache:"),
		titleStyle.Render(formatNumber(stats.Hits)),
		titleStyle.Render(formatNumber(stats.Misses)),
		titleStyle.Render(formatNumber(stats.WriteFailures)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(rep.Duration)))

	if len(rep.Skipped) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(rule))
		fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("  ✗ %d edges skipped", len(rep.Skipped))))
		for _, s := range rep.Skipped {
			fmt.Fprintf(w, "    %s %s\n", s.Key.String(), mutedStyle.Render(s.Err.Error()))
		}
	}

	if len(paths) > 0 {
		fmt.Fprintln(w, mutedStyle.Render(rule))
		for _, p := range paths {
			fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:"), codeStyle.Render(p))
		}
	}
	fmt.Fprintln(w)
}

// PrintPurge prints the result of a cache purge.
func PrintPurge(w io.Writer, dataset, backend string, removed int) {
	fmt.Fprintf(w, "  %s removed %s cached tables of %s from %s\n",
		successStyle.Render("✓"),
		titleStyle.Render(formatNumber(int64(removed))),
		codeStyle.Render(dataset),
		backend)
}

// PrintGraphStats prints node and relationship counts by type.
func PrintGraphStats(w io.Writer, nodes, rels map[string]int64) {
	for _, section := range []struct {
		title  string
		counts map[string]int64
	}{{"NODES", nodes}, {"RELATIONSHIPS", rels}} {
		fmt.Fprintln(w, accentStyle.Render("▸ "+section.title))
		keys := make([]string, 0, len(section.counts))
		for k := range section.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(pad(k, 24)), titleStyle.Render(formatNumber(section.counts[k])))
		}
	}
}

// PrintError prints a failure line.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, accentStyle.Render("  ✗ "+err.Error()))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar over total edges.
func ShowProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
