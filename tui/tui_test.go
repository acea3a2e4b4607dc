// ABOUTME: Tests for the review queue TUI
// ABOUTME: Drives the model with key messages against an in-memory store
package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
)

type stubSyncer struct {
	pulls  int
	pushes int
	states []models.SyncState
}

func (s *stubSyncer) PullTasks(context.Context, sync.PullFilter, models.Actor) (sync.PullResult, error) {
	s.pulls++
	return sync.PullResult{Fetched: 3, Created: 2, Unchanged: 1}, nil
}

func (s *stubSyncer) PushTasks(context.Context, sync.PushFilter) (sync.PushResult, error) {
	s.pushes++
	return sync.PushResult{Attempted: 1, Synced: 1}, nil
}

func (s *stubSyncer) PushSubmissions(context.Context, sync.PushFilter) (sync.PushResult, error) {
	s.pushes++
	return sync.PushResult{}, errors.New("hubspot unavailable")
}

func (s *stubSyncer) Status(context.Context, int) ([]models.SyncState, []models.SyncRun, error) {
	return s.states, nil, nil
}

type testEnv struct {
	store   *db.Store
	service *approval.Service
	syncer  *stubSyncer
	rep     models.Actor
	manager models.Actor
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	store := db.NewStore(database)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	rep := &models.Actor{Name: "Rep", Email: "rep@example.com", Role: models.RoleRep}
	manager := &models.Actor{Name: "Manager", Email: "manager@example.com", Role: models.RoleManager}
	for _, a := range []*models.Actor{rep, manager} {
		if err := store.Actors.Create(ctx, a); err != nil {
			t.Fatalf("Failed to create actor: %v", err)
		}
	}

	return testEnv{
		store:   store,
		service: approval.NewService(store, nil, nil, zap.NewNop(), nil),
		syncer:  &stubSyncer{},
		rep:     *rep,
		manager: *manager,
	}
}

func (e testEnv) draftTask(t *testing.T, title string, dueInDays int) *models.Task {
	t.Helper()
	task := &models.Task{Title: title, DueDate: time.Now().AddDate(0, 0, dueInDays)}
	if err := e.service.CreateTask(context.Background(), task, e.rep); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	return task
}

// step applies msg and runs the resulting command once, feeding its message back.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	m = updated.(Model)
	if cmd != nil {
		if next := cmd(); next != nil {
			updated, _ = m.Update(next)
			m = updated.(Model)
		}
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loaded(t *testing.T, e testEnv) Model {
	t.Helper()
	m := NewModel(e.service, e.syncer, e.manager)
	updated, _ := m.Update(m.Init()())
	return updated.(Model)
}

func TestListViewEmpty(t *testing.T) {
	e := setupTestEnv(t)
	m := loaded(t, e)

	output := m.View()
	if !strings.Contains(output, "FIELDSYNC REVIEW (0 pending)") {
		t.Errorf("Expected title with pending count, got:\n%s", output)
	}
	if !strings.Contains(output, "Nothing waiting for review") {
		t.Error("Empty queue should say so")
	}
}

func TestApproveFromList(t *testing.T) {
	e := setupTestEnv(t)
	e.draftTask(t, "Call about reorder", 1)
	task := e.draftTask(t, "Drop off samples", 2)

	m := loaded(t, e)
	if m.rowCount() != 2 {
		t.Fatalf("Expected 2 pending tasks, got %d", m.rowCount())
	}
	if !strings.Contains(m.View(), "Drop off samples") {
		t.Error("List should show pending task titles")
	}

	m = step(t, m, key("down"))
	_, id, _ := m.selectedItem()
	if id != task.ID {
		t.Fatalf("Expected second task selected")
	}

	m = step(t, m, key("a"))
	if m.err != nil {
		t.Fatalf("Approve failed: %v", m.err)
	}
	if len(m.messages) == 0 || !strings.Contains(m.messages[len(m.messages)-1], "✓ approve task") {
		t.Errorf("Expected approval message, got %v", m.messages)
	}

	stored, err := e.store.Tasks.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Approval.Status != models.ApprovalApproved {
		t.Errorf("Expected approved, got %s", stored.Approval.Status)
	}

	// the command after an action reloads the queue
	m = step(t, m, m.loadPending())
	if m.rowCount() != 1 {
		t.Errorf("Expected 1 pending task after approval, got %d", m.rowCount())
	}
	if m.selectedRow != 0 {
		t.Errorf("Cursor should clamp to the remaining row, got %d", m.selectedRow)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	e := setupTestEnv(t)
	task := e.draftTask(t, "Quote follow-up", 1)
	m := loaded(t, e)

	updated, _ := m.Update(key("x"))
	m = updated.(Model)
	if m.viewMode != ViewReject {
		t.Fatalf("Expected reject view, got %v", m.viewMode)
	}

	updated, _ = m.Update(key("enter"))
	m = updated.(Model)
	if !errors.Is(m.err, approval.ErrReasonRequired) {
		t.Errorf("Expected reason required error, got %v", m.err)
	}
	if m.viewMode != ViewReject {
		t.Error("Empty reason should keep the prompt open")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("duplicate of a quote")})
	m = updated.(Model)
	m = step(t, m, key("enter"))
	if m.viewMode != ViewList {
		t.Errorf("Expected list view after rejecting, got %v", m.viewMode)
	}

	stored, err := e.store.Tasks.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Approval.Status != models.ApprovalRejected {
		t.Errorf("Expected rejected, got %s", stored.Approval.Status)
	}
	if stored.Approval.RejectionReason != "duplicate of a quote" {
		t.Errorf("Unexpected reason %q", stored.Approval.RejectionReason)
	}
}

func TestRepCannotApprove(t *testing.T) {
	e := setupTestEnv(t)
	e.draftTask(t, "Call back", 1)

	m := NewModel(e.service, e.syncer, e.rep)
	m = step(t, m, m.Init()())
	m = step(t, m, key("a"))

	if !errors.Is(m.err, approval.ErrNotPermitted) {
		t.Errorf("Expected not permitted, got %v", m.err)
	}
}

func TestTabNavigation(t *testing.T) {
	e := setupTestEnv(t)
	sub := &models.SalesSubmission{AmountCents: 4200, Currency: "USD", Description: "Starter kit"}
	if err := e.service.CreateSubmission(context.Background(), sub, e.rep); err != nil {
		t.Fatal(err)
	}
	m := loaded(t, e)

	m = step(t, m, key("tab"))
	if m.tab != TabVisits {
		t.Errorf("Expected visits tab, got %v", m.tab)
	}
	m = step(t, m, key("tab"))
	if m.tab != TabSubmissions {
		t.Errorf("Expected submissions tab, got %v", m.tab)
	}
	if !strings.Contains(m.View(), "42.00 USD") {
		t.Error("Submissions tab should show the amount")
	}

	m = step(t, m, key("enter"))
	if m.viewMode != ViewDetail {
		t.Fatalf("Expected detail view, got %v", m.viewMode)
	}
	if !strings.Contains(m.View(), "Starter kit") {
		t.Error("Detail view should show the description")
	}

	m = step(t, m, key("esc"))
	if m.viewMode != ViewList {
		t.Error("Escape should return to the list")
	}

	m = step(t, m, key("tab"))
	if m.tab != TabTasks {
		t.Errorf("Tabs should wrap around, got %v", m.tab)
	}
}

func TestSyncView(t *testing.T) {
	e := setupTestEnv(t)
	last := time.Now().Add(-2 * time.Hour)
	e.syncer.states = []models.SyncState{
		{Service: "pull_tasks", Status: models.SyncStatusIdle, LastSyncTime: &last},
		{Service: "push_submissions", Status: models.SyncStatusError, ErrorMessage: "quota exceeded"},
	}
	m := loaded(t, e)

	m = step(t, m, key("s"))
	if m.viewMode != ViewSync {
		t.Fatalf("Expected sync view, got %v", m.viewMode)
	}
	output := m.View()
	for _, want := range []string{"pull_tasks", "2 hours ago", "quota exceeded"} {
		if !strings.Contains(output, want) {
			t.Errorf("Sync view should contain %q", want)
		}
	}

	updated, cmd := m.Update(key("p"))
	m = updated.(Model)
	if !m.syncInProgress {
		t.Error("Pull should mark sync in progress")
	}
	m = step(t, m, cmd())
	if m.syncInProgress {
		t.Error("Sync should not be in progress after completion")
	}
	if e.syncer.pulls != 1 {
		t.Errorf("Expected 1 pull, got %d", e.syncer.pulls)
	}
	if !strings.Contains(strings.Join(m.messages, "\n"), "✓ pull tasks completed: fetched 3, created 2") {
		t.Errorf("Expected pull summary, got %v", m.messages)
	}

	m = step(t, m, key("u"))
	if !strings.Contains(m.messages[len(m.messages)-1], "✗ push failed: hubspot unavailable") {
		t.Errorf("Expected push failure message, got %v", m.messages)
	}
}

func TestFormatTimeSince(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{"just now", time.Now().Add(-30 * time.Second), "just now"},
		{"one minute", time.Now().Add(-90 * time.Second), "1 minute ago"},
		{"minutes ago", time.Now().Add(-5 * time.Minute), "5 minutes ago"},
		{"hours ago", time.Now().Add(-2 * time.Hour), "2 hours ago"},
		{"days ago", time.Now().Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := formatTimeSince(tt.time); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}
