package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main session dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Bring-up progress
	sections = append(sections, m.renderProgress())

	// Component table
	sections = append(sections, m.renderComponentTable())

	// Stats sections (only if we have stats)
	if m.stats != nil {
		sections = append(sections, m.renderActivity())

		// Warnings section (only if components went down)
		if m.hasWarnings() {
			sections = append(sections, m.renderWarnings())
		}
	}

	// Session info
	sections = append(sections, m.renderSessionInfo())

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders per-component capture and resource details.
func (m Model) renderDetailedView() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Per-component capture table
	sections = append(sections, m.renderCaptureTable())

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	// Session phase indicator
	phaseLabel := GetPhaseLabel(m.Phase())

	// Build header line
	header := fmt.Sprintf(
		" go-instrument-rig │ %s │ Components: %d/%d │ Elapsed: %s ",
		phaseLabel,
		m.ActiveComponents(),
		m.TotalComponents(),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Bring-Up Progress
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.LaunchProgress()

	// Progress bar
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(progress, barWidth)

	// Status text
	var status string
	switch {
	case m.stats == nil:
		status = statusInfo.Render("Waiting for first sample...")
	case m.stats.PendingComponents > 0:
		status = statusInfo.Render(fmt.Sprintf("Launching... %d/%d up", m.ActiveComponents(), m.TotalComponents()))
	case m.stats.ActiveComponents == m.stats.TotalComponents:
		status = statusOK.Render("✓ All components running")
	default:
		status = statusWarning.Render(fmt.Sprintf("⚠ %d of %d components have exited",
			m.stats.ExitedComponents, m.stats.TotalComponents))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Launch Progress"),
		progressBar,
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Component Table
// =============================================================================

func (m Model) renderComponentTable() string {
	if m.stats == nil || len(m.stats.PerComponent) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No component data yet."),
		)
	}

	// Table header
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-16s %-12s %6s %8s %6s %9s %9s",
			"Component", "State", "PID", "Uptime", "CPU", "RSS", "Output"),
	)

	var rows []string
	for i, c := range m.stats.PerComponent {
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		name := c.Name
		if c.Required {
			name += "*"
		}

		pid := "-"
		if c.PID > 0 {
			pid = fmt.Sprintf("%d", c.PID)
		}

		uptime := "-"
		if !c.StartedAt.IsZero() {
			uptime = formatDuration(c.Uptime)
		}

		cpu := "-"
		rss := "-"
		if c.PID > 0 {
			cpu = fmt.Sprintf("%.1f%%", c.CPUPercent)
			rss = formatBytes(c.RSSBytes)
		}

		// State is styled after padding so the column stays aligned.
		state := GetStateStyle(c.State).Render(fmt.Sprintf("%-12s", c.State))

		row := fmt.Sprintf("%-16s %s %6s %8s %6s %9s %9s",
			truncateName(name, 16),
			state,
			pid,
			uptime,
			cpu,
			rss,
			formatBytes(c.StdoutBytes+c.StderrBytes),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	rows = append(rows, dimStyle.Render("* required component"))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Components"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Output Activity
// =============================================================================

func (m Model) renderActivity() string {
	if m.stats == nil {
		return ""
	}

	s := m.stats
	totalLines := s.TotalStdoutLines + s.TotalStderrLines

	// 10s rate with stall indicator. A running session whose short-window
	// output rate hits zero usually means a wedged instrument.
	rate10 := formatBytes(int64(m.activity.OutputRate10s)) + "/s"
	rate10Style := valueStyle
	if m.activity.OutputRate10s == 0 && m.ActiveComponents() > 0 {
		rate10 = "0 B/s (stalled)"
		rate10Style = valueWarnStyle
	}

	rows := []string{
		renderStatRow("Captured Output", formatBytes(s.TotalOutputBytes), formatNumber(totalLines)+" lines"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Rate (10s):"),
			rate10Style.Render(rate10),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Rate (60s):"),
			valueStyle.Render(formatBytes(int64(m.activity.OutputRate60s))+"/s"),
		),
		renderStatRow("Artifacts Created",
			fmt.Sprintf("%d", m.activity.Artifacts),
			fmt.Sprintf("%.1f/min", m.activity.ArtifactRate60s)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Output Activity")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, rate string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		mutedStyle.Render(" ("),
		valueStyle.Render(rate),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Warnings
// =============================================================================

func (m Model) hasWarnings() bool {
	if m.stats == nil {
		return false
	}
	return m.stats.ExitedComponents > 0
}

func (m Model) renderWarnings() string {
	if m.stats == nil {
		return ""
	}

	var rows []string
	for _, c := range m.stats.PerComponent {
		down := c.ExitValid || c.State == "launch_failed"
		if !down {
			continue
		}

		glyph := "⚠"
		if c.Required || c.State == "exited_error" || c.State == "killed" || c.State == "launch_failed" {
			glyph = "✗"
		}

		text := fmt.Sprintf("%s %s: %s", glyph, c.Name, c.State)
		if c.ExitValid {
			text = fmt.Sprintf("%s %s: %s (exit code %d)", glyph, c.Name, c.State, c.ExitCode)
		}

		style := valueWarnStyle
		if c.Required {
			style = valueBadStyle
		}
		rows = append(rows, style.Render(text))
	}

	rows = append(rows, dimStyle.Render("Other components continue running."))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Warnings")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Session Info
// =============================================================================

func (m Model) renderSessionInfo() string {
	rows := []string{
		RenderKeyValueWide("Session", valueOrDash(m.info.SessionID)),
		RenderKeyValueWide("Directory", valueOrDash(m.info.Dir)),
		RenderKeyValueWide("Category", valueOrDash(m.info.Category)),
		RenderKeyValueWide("Grace Period", m.gracePeriod.String()),
		RenderKeyValueWide("Metrics", metricsEndpoint(m.metricsAddr)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Session")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func metricsEndpoint(addr string) string {
	if addr == "" {
		return "disabled"
	}
	return "http://" + addr + "/metrics"
}

// =============================================================================
// Capture Table (Detailed View)
// =============================================================================

func (m Model) renderCaptureTable() string {
	if m.stats == nil || len(m.stats.PerComponent) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No per-component data available. Press 'd' to toggle."),
		)
	}

	// Table header
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-16s %10s %10s %10s %7s %8s %10s",
			"Component", "Stdout", "Stderr", "Lines", "CPU", "CPU p50", "RSS"),
	)

	// Table rows (limit to fit screen)
	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, c := range m.stats.PerComponent {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more components", len(m.stats.PerComponent)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		row := fmt.Sprintf("%-16s %10s %10s %10s %6.1f%% %7.1f%% %10s",
			truncateName(c.Name, 16),
			formatBytes(c.StdoutBytes),
			formatBytes(c.StderrBytes),
			formatNumber(c.StdoutLines+c.StderrLines),
			c.CPUPercent,
			c.CPUPercentP50,
			formatBytes(c.RSSBytes),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Per-Component Capture"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	// Keyboard shortcuts
	shortcuts := []string{
		"q: stop session",
		"d: toggle details",
		"r: refresh",
	}

	// Session directory (tail-truncated if needed), falls back to the
	// version string before the session exists.
	right := "v" + m.version
	if m.info.Dir != "" {
		right = m.info.Dir
	}
	maxLen := m.width - 50
	if len(right) > maxLen && maxLen > 10 {
		right = "..." + right[len(right)-maxLen+3:]
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := dimStyle.Render(right)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}

// =============================================================================
// Helpers
// =============================================================================

func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	if max <= 3 {
		return name[:max]
	}
	return name[:max-3] + "..."
}
