package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/pool"
)

// Colors
var (
	primaryColor = lipgloss.Color("#7C3AED")
	mutedColor   = lipgloss.Color("#6B7280")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	okColor      = lipgloss.Color("#10B981")
)

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	warnStyle   = cellStyle.Foreground(warningColor)
	errStyle    = lipgloss.NewStyle().Foreground(errorColor)
	okStyle     = lipgloss.NewStyle().Foreground(okColor)
)

var statsHeaders = []string{"Lane", "State", "Active", "Pool", "Peak", "Max", "Queue", "Done", "Inline", "Rejected"}

// Columns highlighted when their count is non-zero.
const (
	colQueue    = 6
	colInline   = 8
	colRejected = 9
)

// RenderStats renders lane snapshots as a table. width <= 0 leaves the
// table at its natural width.
func RenderStats(stats pool.Stats, width int) string {
	rows := make([][]string, 0, len(stats.Lanes))
	for _, ls := range stats.Lanes {
		rows = append(rows, statsRow(ls))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(statsHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(stats.Lanes) {
				return cellStyle
			}
			ls := stats.Lanes[row]
			switch {
			case col == colQueue && ls.Queued > 0,
				col == colInline && ls.InlineRuns > 0,
				col == colRejected && ls.Rejected > 0:
				return warnStyle
			}
			return cellStyle
		})

	return truncateLines(t.String(), width)
}

func statsRow(ls lane.Stats) []string {
	return []string{
		string(ls.Kind),
		string(ls.State),
		strconv.Itoa(ls.Active),
		strconv.Itoa(ls.PoolSize),
		strconv.Itoa(ls.LargestPoolSize),
		strconv.Itoa(ls.MaxWorkers),
		fmt.Sprintf("%d/%d", ls.Queued, ls.QueueCapacity),
		strconv.FormatUint(ls.Completed, 10),
		strconv.FormatUint(ls.InlineRuns, 10),
		strconv.FormatUint(ls.Rejected, 10),
	}
}

// truncateLines cuts every line of s to width visible columns, keeping ANSI
// styling intact. width <= 0 returns s unchanged.
func truncateLines(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "…")
		}
	}
	return strings.Join(lines, "\n")
}
