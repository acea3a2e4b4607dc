// ABOUTME: Pending review list for the TUI
// ABOUTME: Renders one tab per record kind and runs approve and reject actions
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
)

// pendingLimit caps how many records of each kind the queue loads.
const pendingLimit = 100

// PendingLoadedMsg carries a fresh copy of the review queue.
type PendingLoadedMsg struct {
	Pending approval.Pending
	Err     error
}

// ActionCompleteMsg is sent when an approve or reject finishes.
type ActionCompleteMsg struct {
	Entity db.Entity
	ID     uuid.UUID
	Action approval.Action
	Err    error
}

func (m Model) renderListView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("FIELDSYNC REVIEW (%d pending)", m.pending.Len())))
	s.WriteString("\n\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		s.WriteString("\n\n")
	}

	if m.rowCount() == 0 {
		s.WriteString(messageStyle.Render("Nothing waiting for review."))
	} else {
		s.WriteString(m.renderTable())
	}
	s.WriteString("\n")

	if n := len(m.messages); n > 0 {
		s.WriteString("\n")
		s.WriteString(messageStyle.Render(m.messages[n-1]))
		s.WriteString("\n")
	}

	s.WriteString(m.renderListHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	counts := []int{len(m.pending.Tasks), len(m.pending.Visits), len(m.pending.Submissions)}
	var rendered []string

	for i, tab := range tabNames {
		label := fmt.Sprintf("%s (%d)", tab, counts[i])
		if Tab(i) == m.tab {
			rendered = append(rendered, tabActiveStyle.Render(label))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(label))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderTable() string {
	var columns []table.Column
	var rows []table.Row

	switch m.tab {
	case TabTasks:
		columns = []table.Column{
			{Title: "Title", Width: 36},
			{Title: "Type", Width: 16},
			{Title: "Priority", Width: 8},
			{Title: "Due", Width: 10},
		}
		for _, t := range m.pending.Tasks {
			rows = append(rows, table.Row{t.Title, t.Type, t.Priority, t.DueDate.Local().Format("2006-01-02")})
		}
	case TabVisits:
		columns = []table.Column{
			{Title: "Title", Width: 36},
			{Title: "Date", Width: 10},
			{Title: "Address", Width: 30},
		}
		for _, v := range m.pending.Visits {
			rows = append(rows, table.Row{v.Title, v.VisitDate.Local().Format("2006-01-02"), v.Address})
		}
	case TabSubmissions:
		columns = []table.Column{
			{Title: "Amount", Width: 16},
			{Title: "Date", Width: 10},
			{Title: "Description", Width: 40},
		}
		for _, sub := range m.pending.Submissions {
			rows = append(rows, table.Row{formatCents(sub.AmountCents, sub.Currency), sub.SalesDate.Local().Format("2006-01-02"), sub.Description})
		}
	}

	height := m.height - 12
	if height < 3 {
		height = 3
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderListHelp() string {
	help := []string{
		"Tab: Switch kind",
		"↑/↓: Navigate",
		"Enter: Details",
		"a: Approve",
		"x: Reject",
		"r: Refresh",
		"s: Sync",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "right", "l":
		m.tab = (m.tab + 1) % Tab(len(tabNames))
		m.selectedRow = 0
	case "shift+tab", "left", "h":
		m.tab = (m.tab + Tab(len(tabNames)) - 1) % Tab(len(tabNames))
		m.selectedRow = 0
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < m.rowCount()-1 {
			m.selectedRow++
		}
	case "enter":
		if m.rowCount() > 0 {
			m.viewMode = ViewDetail
		}
	case "a":
		if entity, id, ok := m.selectedItem(); ok {
			return m, m.transition(entity, id, approval.ActionApprove, "")
		}
	case "x":
		if m.rowCount() > 0 {
			m.viewMode = ViewReject
			m.reasonInput.SetValue("")
			return m, m.reasonInput.Focus()
		}
	case "r":
		return m, m.loadPending
	case "s":
		m.viewMode = ViewSync
		return m, m.loadStatus
	}

	return m, nil
}

func (m Model) rowCount() int {
	switch m.tab {
	case TabTasks:
		return len(m.pending.Tasks)
	case TabVisits:
		return len(m.pending.Visits)
	case TabSubmissions:
		return len(m.pending.Submissions)
	}
	return 0
}

// selectedItem names the record under the cursor.
func (m Model) selectedItem() (db.Entity, uuid.UUID, bool) {
	if m.selectedRow < 0 || m.selectedRow >= m.rowCount() {
		return "", uuid.Nil, false
	}
	switch m.tab {
	case TabTasks:
		return db.EntityTask, m.pending.Tasks[m.selectedRow].ID, true
	case TabVisits:
		return db.EntityVisit, m.pending.Visits[m.selectedRow].ID, true
	case TabSubmissions:
		return db.EntitySubmission, m.pending.Submissions[m.selectedRow].ID, true
	}
	return "", uuid.Nil, false
}

func (m Model) loadPending() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	pending, err := m.service.ListPending(ctx, pendingLimit)
	return PendingLoadedMsg{Pending: pending, Err: err}
}

func (m *Model) applyPending(msg PendingLoadedMsg) {
	if msg.Err != nil {
		m.err = msg.Err
		return
	}
	m.err = nil
	m.pending = msg.Pending
	if n := m.rowCount(); m.selectedRow >= n {
		m.selectedRow = max(n-1, 0)
	}
}

// transition runs an approval action off the UI goroutine.
func (m Model) transition(entity db.Entity, id uuid.UUID, action approval.Action, reason string) tea.Cmd {
	service, actor := m.service, m.actor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		var err error
		switch action {
		case approval.ActionApprove:
			_, err = service.Approve(ctx, entity, id, actor)
		case approval.ActionReject:
			_, err = service.Reject(ctx, entity, id, actor, reason)
		case approval.ActionReopen:
			_, err = service.Reopen(ctx, entity, id, actor)
		}
		return ActionCompleteMsg{Entity: entity, ID: id, Action: action, Err: err}
	}
}

func (m *Model) handleActionComplete(msg ActionCompleteMsg) tea.Cmd {
	short := msg.ID.String()[:8]
	if msg.Err != nil {
		m.err = msg.Err
		m.addMessage(fmt.Sprintf("✗ %s %s %s failed: %v", msg.Action, msg.Entity, short, msg.Err))
		return nil
	}

	m.err = nil
	m.addMessage(fmt.Sprintf("✓ %s %s %s", msg.Action, msg.Entity, short))
	return m.loadPending
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
