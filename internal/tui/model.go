package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-instrument-rig/internal/metrics"
	"github.com/randomizedcoder/go-instrument-rig/internal/stats"
	"github.com/randomizedcoder/go-instrument-rig/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats    *stats.AggregatedStats
	Activity timeseries.ActivityStats
	Info     metrics.SessionInfo
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	version     string
	metricsAddr string
	gracePeriod time.Duration

	// Current state
	stats        *stats.AggregatedStats
	activity     timeseries.ActivityStats
	info         metrics.SessionInfo
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Stats source (for fetching updates)
	source StatsSource

	// onStop requests session teardown. The model quits after calling it;
	// the orchestrator handles the actual process shutdown.
	onStop func()

	// Quit flag
	quitting bool
}

// StatsSource provides session statistics for display.
type StatsSource interface {
	GetAggregatedStats() *stats.AggregatedStats
	GetActivityStats() timeseries.ActivityStats
	GetSessionInfo() metrics.SessionInfo
}

// Config holds TUI configuration.
type Config struct {
	Version     string
	MetricsAddr string
	GracePeriod time.Duration
	Source      StatsSource
	OnStop      func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		version:     cfg.Version,
		metricsAddr: cfg.MetricsAddr,
		gracePeriod: cfg.GracePeriod,
		source:      cfg.Source,
		onStop:      cfg.OnStop,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "s", "ctrl+c", "esc":
			if m.onStop != nil {
				m.onStop()
			}
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		// Fetch latest stats
		if m.source != nil {
			m.stats = m.source.GetAggregatedStats()
			m.activity = m.source.GetActivityStats()
			m.info = m.source.GetSessionInfo()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.activity = msg.Activity
		m.info = msg.Info
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.stats != nil && len(m.stats.PerComponent) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the session started.
func (m Model) Elapsed() time.Duration {
	if !m.info.StartedAt.IsZero() {
		return time.Since(m.info.StartedAt)
	}
	return time.Since(m.startTime)
}

// ActiveComponents returns the current count of running components.
func (m Model) ActiveComponents() int {
	if m.stats == nil {
		return 0
	}
	return m.stats.ActiveComponents
}

// TotalComponents returns the declared component count.
func (m Model) TotalComponents() int {
	if m.stats == nil {
		return 0
	}
	return m.stats.TotalComponents
}

// LaunchProgress returns the bring-up progress (0.0 to 1.0).
func (m Model) LaunchProgress() float64 {
	if m.stats == nil || m.stats.TotalComponents == 0 {
		return 0
	}
	launched := m.stats.TotalComponents - m.stats.PendingComponents
	return float64(launched) / float64(m.stats.TotalComponents)
}

// Phase returns the current session phase.
func (m Model) Phase() string {
	if m.info.Phase == "" {
		return "armed"
	}
	return m.info.Phase
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, s *stats.AggregatedStats, activity timeseries.ActivityStats, info metrics.SessionInfo) {
	if p != nil {
		p.Send(StatsMsg{Stats: s, Activity: activity, Info: info})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}
