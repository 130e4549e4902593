package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fieldwork/internal/models"
	"fieldwork/internal/session"
	"fieldwork/internal/store"
)

const pollInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard for the current session and sync state",
	Long: `Show a live terminal dashboard: backend connectivity, the current
session's conversation, and pending sync work draining as changes reach
the backend.

While the dashboard runs, connectivity is probed in the background, so
leaving it open after working offline will push pending changes as soon
as the backend comes back.

Examples:
  fieldwork watch`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

// Theme holds the color scheme for the dashboard.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) onlineStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers the next state poll
type tickMsg time.Time

// stateMsg carries a fresh snapshot of session and sync state
type stateMsg struct {
	state   session.State
	pending int
	err     error
}

// watchModel is the bubbletea model for the live dashboard.
type watchModel struct {
	mgr   *session.Manager
	store *store.Store

	state      session.State
	pending    int
	maxPending int

	progress progress.Model
	theme    Theme
	quitting bool
	err      error
}

// newWatchModel creates a new dashboard model.
func newWatchModel(mgr *session.Manager, st *store.Store) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(30),
	)

	return watchModel{
		mgr:      mgr,
		store:    st,
		state:    mgr.Snapshot(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.readState(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.readState()

	case stateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("read local store: %w", msg.err)
			return m, tea.Quit
		}

		m.state = msg.state
		m.pending = msg.pending
		if m.pending > m.maxPending {
			m.maxPending = m.pending
		}
		if m.pending == 0 {
			m.maxPending = 0
		}

		return m, tickCmd()

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m watchModel) renderContent() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ %s\n", m.err))
	}

	var b strings.Builder
	b.WriteString("Fieldwork\n\n")

	b.WriteString(fmt.Sprintf("  %-10s %s\n", "Backend", m.renderBackend()))
	b.WriteString(fmt.Sprintf("  %-10s %s\n", "Sync", m.renderSync()))

	if sess := m.state.Session; sess != nil {
		status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", sess.Status))
		b.WriteString(fmt.Sprintf("  %-10s %s %s\n", "Session", sess.Title(), status))
		b.WriteString(fmt.Sprintf("  %-10s %d\n", "Messages", sess.MessageCount))
		b.WriteString(m.renderTail(sess))
	} else if m.state.SessionLoading {
		b.WriteString(fmt.Sprintf("  %-10s loading...\n", "Session"))
	} else {
		b.WriteString(fmt.Sprintf("  %-10s none (start one with 'fieldwork new')\n", "Session"))
	}

	b.WriteString("\n" + m.theme.hintStyle().Render("Press q to quit") + "\n")
	return b.String()
}

func (m watchModel) renderBackend() string {
	if m.state.Sync.IsOnline {
		return m.theme.onlineStyle().Render("● online")
	}
	return m.theme.errorStyle().Render("○ offline")
}

func (m watchModel) renderSync() string {
	if m.state.Sync.SyncError != "" {
		return m.theme.errorStyle().Render(m.state.Sync.SyncError)
	}

	if m.pending > 0 {
		pct := 0.0
		if m.maxPending > 0 {
			pct = float64(m.maxPending-m.pending) / float64(m.maxPending)
		}
		return fmt.Sprintf("%s %d pending", m.progress.ViewAs(pct), m.pending)
	}

	synced := m.theme.onlineStyle().Render("✓ synced")
	if m.state.Sync.LastSyncAt != nil {
		return fmt.Sprintf("%s (%s)", synced, models.RelativeTime(*m.state.Sync.LastSyncAt))
	}
	return synced
}

// renderTail shows the last few conversation turns.
func (m watchModel) renderTail(sess *models.Session) string {
	const tail = 4

	msgs := sess.Messages
	if len(msgs) == 0 {
		return ""
	}
	if len(msgs) > tail {
		msgs = msgs[len(msgs)-tail:]
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, msg := range msgs {
		label := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", speakerLabel(msg)))
		b.WriteString(fmt.Sprintf("  %s %s  %s\n",
			label, msg.Timestamp.Local().Format("15:04"), models.Truncate(msg.Content, 70)))
	}
	return b.String()
}

// readState polls the manager and store off the update loop.
func (m watchModel) readState() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		pending, err := m.store.CountPending(ctx)
		return stateMsg{state: m.mgr.Snapshot(), pending: pending, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch needs a terminal, use 'fieldwork status' instead")
	}

	// Load the current session so the dashboard has something to show.
	if _, err := mgr.Resume(ctx); err != nil {
		slog.Warn("resume failed", "error", err)
	}

	// Keep probing while the dashboard is open so pending work syncs
	// as soon as the backend comes back.
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go orch.RunProbeLoop(probeCtx)

	p := tea.NewProgram(newWatchModel(mgr, st))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
