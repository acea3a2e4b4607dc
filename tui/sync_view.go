// ABOUTME: TUI view for HubSpot sync status and controls
// ABOUTME: Displays per-service sync state and recent passes, and triggers pull or push
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
)

var (
	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncServiceStyle = lipgloss.NewStyle().
				Bold(true).
				Width(18)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// SyncStateDisplay is one service row of the sync view.
type SyncStateDisplay struct {
	Service      string
	Status       string
	LastSyncTime string
	ErrorMessage string
}

// StatusLoadedMsg carries sync bookkeeping read from the store.
type StatusLoadedMsg struct {
	States []models.SyncState
	Runs   []models.SyncRun
	Err    error
}

// SyncCompleteMsg is sent when a pass started from the sync view completes.
type SyncCompleteMsg struct {
	Pass    string
	Summary string
	Error   error
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("HubSpot Sync"))
	s.WriteString("\n\n")

	if len(m.syncStates) == 0 {
		s.WriteString(messageStyle.Render("No sync has run yet. Press 'p' to pull tasks."))
		s.WriteString("\n")
	} else {
		s.WriteString(syncHeaderStyle.Render("Service Status"))
		s.WriteString("\n\n")
		for _, state := range m.syncStates {
			s.WriteString(m.renderSyncRow(state))
			s.WriteString("\n")
		}
	}
	s.WriteString("\n")

	if len(m.syncRuns) > 0 {
		s.WriteString(syncHeaderStyle.Render("Recent Passes"))
		s.WriteString("\n\n")
		for _, r := range m.syncRuns {
			line := fmt.Sprintf("  %-16s %-4s %-11s fetched %d, created %d, updated %d, skipped %d, failed %d",
				formatTimeSince(r.StartedAt), r.Direction, r.Entity, r.Fetched, r.Created, r.Updated, r.Skipped, r.Failed)
			s.WriteString(messageStyle.Render(line))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	if len(m.messages) > 0 {
		s.WriteString(syncHeaderStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		start := 0
		if len(m.messages) > 5 {
			start = len(m.messages) - 5
		}
		for _, line := range m.messages[start:] {
			s.WriteString(messageStyle.Render("  " + line))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderSyncHelp())

	return s.String()
}

func (m Model) renderSyncRow(state SyncStateDisplay) string {
	var row strings.Builder
	row.WriteString("  ")
	row.WriteString(syncServiceStyle.Render(state.Service))

	switch {
	case state.Status == models.SyncStatusSyncing:
		row.WriteString(syncSyncingStyle.Render("  ⟳ Syncing..."))
	case state.Status == models.SyncStatusError:
		row.WriteString(syncErrorStyle.Render("  ✗ Error"))
		if state.ErrorMessage != "" {
			row.WriteString(syncErrorStyle.Render(": " + state.ErrorMessage))
		}
	default:
		row.WriteString(syncIdleStyle.Render("  ✓ Idle"))
	}
	if state.LastSyncTime != "" {
		row.WriteString(messageStyle.Render(" • Last synced " + state.LastSyncTime))
	}

	return row.String()
}

func (m Model) renderSyncHelp() string {
	help := []string{
		"p: Pull tasks",
		"u: Push approved",
		"r: Refresh status",
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "p":
		if m.syncInProgress {
			return m, nil
		}
		m.syncInProgress = true
		m.addMessage("Starting task pull...")
		return m, m.pullTasks()
	case "u":
		if m.syncInProgress {
			return m, nil
		}
		m.syncInProgress = true
		m.addMessage("Starting push of approved records...")
		return m, m.pushApproved()
	case "r":
		return m, m.loadStatus
	case "esc":
		m.viewMode = ViewList
		return m, m.loadPending
	}

	return m, nil
}

func (m Model) loadStatus() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	states, runs, err := m.syncer.Status(ctx, 5)
	return StatusLoadedMsg{States: states, Runs: runs, Err: err}
}

func (m *Model) applyStatus(msg StatusLoadedMsg) {
	if msg.Err != nil {
		m.addMessage(fmt.Sprintf("✗ failed to load sync status: %v", msg.Err))
		return
	}

	m.syncStates = nil
	for _, state := range msg.States {
		display := SyncStateDisplay{
			Service:      state.Service,
			Status:       state.Status,
			ErrorMessage: state.ErrorMessage,
		}
		if state.LastSyncTime != nil {
			display.LastSyncTime = formatTimeSince(*state.LastSyncTime)
		}
		m.syncStates = append(m.syncStates, display)
	}
	m.syncRuns = msg.Runs
}

func (m Model) pullTasks() tea.Cmd {
	syncer, actor := m.syncer, m.actor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		r, err := syncer.PullTasks(ctx, sync.PullFilter{}, actor)
		return SyncCompleteMsg{
			Pass:    "pull tasks",
			Summary: fmt.Sprintf("fetched %d, created %d, updated %d, skipped %d", r.Fetched, r.Created, r.Updated, r.Skipped),
			Error:   err,
		}
	}
}

func (m Model) pushApproved() tea.Cmd {
	syncer := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		tasks, err := syncer.PushTasks(ctx, sync.PushFilter{})
		if err != nil {
			return SyncCompleteMsg{Pass: "push", Error: err}
		}
		subs, err := syncer.PushSubmissions(ctx, sync.PushFilter{})
		return SyncCompleteMsg{
			Pass: "push",
			Summary: fmt.Sprintf("tasks %d/%d, submissions %d/%d synced",
				tasks.Synced, tasks.Attempted, subs.Synced, subs.Attempted),
			Error: err,
		}
	}
}

// handleSyncComplete handles sync completion messages.
func (m *Model) handleSyncComplete(msg SyncCompleteMsg) tea.Cmd {
	m.syncInProgress = false

	if msg.Error != nil {
		m.addMessage(fmt.Sprintf("✗ %s failed: %v", msg.Pass, msg.Error))
	} else {
		m.addMessage(fmt.Sprintf("✓ %s completed: %s", msg.Pass, msg.Summary))
	}

	return m.loadStatus
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
