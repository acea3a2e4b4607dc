// ABOUTME: Reject prompt for the TUI
// ABOUTME: Collects the required rejection reason before rejecting the selected record
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/fieldsync/approval"
)

func (m Model) renderRejectView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("REJECT " + kindNames[m.tab]))
	s.WriteString("\n\n")
	s.WriteString("> ")
	s.WriteString(m.reasonInput.View())
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(m.err.Error()))
		s.WriteString("\n")
	}

	help := []string{
		"Enter: Reject",
		"Esc: Cancel",
	}
	s.WriteString(helpStyle.Render(strings.Join(help, " • ")))

	return s.String()
}

func (m Model) handleRejectKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.reasonInput.Blur()
		m.viewMode = ViewList
		m.err = nil
		return m, nil
	case "enter":
		reason := strings.TrimSpace(m.reasonInput.Value())
		if reason == "" {
			m.err = approval.ErrReasonRequired
			return m, nil
		}
		entity, id, ok := m.selectedItem()
		m.reasonInput.Blur()
		m.viewMode = ViewList
		if !ok {
			return m, nil
		}
		return m, m.transition(entity, id, approval.ActionReject, reason)
	}

	var cmd tea.Cmd
	m.reasonInput, cmd = m.reasonInput.Update(msg)
	return m, cmd
}
