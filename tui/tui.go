// ABOUTME: Terminal review queue using the bubbletea framework
// ABOUTME: Lets a manager page through pending records, approve or reject them and run sync passes
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
	ViewReject
	ViewSync
)

// Tab selects which kind of pending record the list shows.
type Tab int

const (
	TabTasks Tab = iota
	TabVisits
	TabSubmissions
)

var (
	tabNames  = []string{"Tasks", "Visits", "Submissions"}
	kindNames = []string{"TASK", "VISIT", "SUBMISSION"}
)

// actionTimeout bounds each approval or sync command started from the UI.
const actionTimeout = 2 * time.Minute

// Syncer runs the passes the sync view can trigger.
type Syncer interface {
	PullTasks(ctx context.Context, filter sync.PullFilter, actor models.Actor) (sync.PullResult, error)
	PushTasks(ctx context.Context, filter sync.PushFilter) (sync.PushResult, error)
	PushSubmissions(ctx context.Context, filter sync.PushFilter) (sync.PushResult, error)
	Status(ctx context.Context, runs int) ([]models.SyncState, []models.SyncRun, error)
}

// Model is the main bubbletea model
type Model struct {
	service *approval.Service
	syncer  Syncer
	actor   models.Actor

	viewMode ViewMode
	tab      Tab

	// List view state
	pending     approval.Pending
	selectedRow int

	// Reject view state
	reasonInput textinput.Model

	// Sync view state
	syncStates     []SyncStateDisplay
	syncRuns       []models.SyncRun
	syncInProgress bool

	messages []string

	// UI state
	width  int
	height int
	err    error
}

// NewModel creates a review queue acting as actor.
func NewModel(service *approval.Service, syncer Syncer, actor models.Actor) Model {
	input := textinput.New()
	input.Placeholder = "Reason for rejecting"
	input.CharLimit = 500
	input.Width = 60

	return Model{
		service:     service,
		syncer:      syncer,
		actor:       actor,
		viewMode:    ViewList,
		tab:         TabTasks,
		reasonInput: input,
		width:       80,
		height:      24,
	}
}

// Run starts the full-screen program and blocks until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.loadPending
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case PendingLoadedMsg:
		m.applyPending(msg)
		return m, nil
	case ActionCompleteMsg:
		return m, m.handleActionComplete(msg)
	case SyncCompleteMsg:
		return m, m.handleSyncComplete(msg)
	case StatusLoadedMsg:
		m.applyStatus(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewList:
		return m.renderListView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewReject:
		return m.renderRejectView()
	case ViewSync:
		return m.renderSyncView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	// q is text while typing a reason
	if msg.String() == "q" && m.viewMode != ViewReject {
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewReject:
		return m.handleRejectKeys(msg)
	case ViewSync:
		return m.handleSyncKeys(msg)
	}

	return m, nil
}

// addMessage appends a timestamped line to the activity log.
func (m *Model) addMessage(text string) {
	timestamp := time.Now().Format("15:04:05")
	m.messages = append(m.messages, "["+timestamp+"] "+text)
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)
