// ABOUTME: Detail view for a pending record
// ABOUTME: Shows every reviewable field of the selected task, visit or submission
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/fieldsync/approval"
)

var labelStyle = lipgloss.NewStyle().
	Bold(true).
	Width(14)

func (m Model) renderDetailView() string {
	var s strings.Builder

	fields := m.detailFields()
	if len(fields) == 0 {
		return "Record not found"
	}

	s.WriteString(titleStyle.Render(kindNames[m.tab] + ": " + fields[0][1]))
	s.WriteString("\n\n")

	for _, f := range fields[1:] {
		if f[1] == "" {
			continue
		}
		s.WriteString(labelStyle.Render(f[0]))
		s.WriteString(f[1])
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

// detailFields lists label/value pairs; the first pair is the heading.
func (m Model) detailFields() [][2]string {
	if m.selectedRow < 0 || m.selectedRow >= m.rowCount() {
		return nil
	}

	switch m.tab {
	case TabTasks:
		t := m.pending.Tasks[m.selectedRow]
		return [][2]string{
			{"Title", t.Title},
			{"Type", t.Type},
			{"Priority", t.Priority},
			{"Due", t.DueDate.Local().Format("2006-01-02")},
			{"Status", t.Status},
			{"Description", t.Description},
			{"Notes", t.Notes},
			{"Company", t.ExternalCompanyName},
			{"Owner", t.OwnerID.String()},
			{"ID", t.ID.String()},
		}
	case TabVisits:
		v := m.pending.Visits[m.selectedRow]
		location := ""
		if v.Latitude != 0 || v.Longitude != 0 {
			location = fmt.Sprintf("%.5f, %.5f", v.Latitude, v.Longitude)
		}
		return [][2]string{
			{"Title", v.Title},
			{"Date", v.VisitDate.Local().Format("2006-01-02 15:04")},
			{"Status", v.Status},
			{"Address", v.Address},
			{"Location", location},
			{"Notes", v.Notes},
			{"Owner", v.OwnerID.String()},
			{"ID", v.ID.String()},
		}
	case TabSubmissions:
		sub := m.pending.Submissions[m.selectedRow]
		return [][2]string{
			{"Amount", formatCents(sub.AmountCents, sub.Currency)},
			{"Date", sub.SalesDate.Local().Format("2006-01-02")},
			{"Description", sub.Description},
			{"Owner", sub.OwnerID.String()},
			{"ID", sub.ID.String()},
		}
	}
	return nil
}

func (m Model) renderDetailHelp() string {
	help := []string{
		"a: Approve",
		"x: Reject",
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewList
	case "a":
		if entity, id, ok := m.selectedItem(); ok {
			m.viewMode = ViewList
			return m, m.transition(entity, id, approval.ActionApprove, "")
		}
	case "x":
		m.viewMode = ViewReject
		m.reasonInput.SetValue("")
		return m, m.reasonInput.Focus()
	}
	return m, nil
}
