// ABOUTME: Tests for CLI commands
// ABOUTME: Runs commands against a temporary database and checks their output and stored state
package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/config"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "fieldsync.db")

	app, err := NewApp(cfg, zap.NewNop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	out := &bytes.Buffer{}
	app.Out = out
	app.TokenPath = filepath.Join(dir, "missing-token.json")
	return app, out
}

func addActors(t *testing.T, app *App) {
	t.Helper()
	require.NoError(t, ActorsAddCommand(app, []string{"--name", "Rita Rep", "--email", "rita@example.com"}))
	require.NoError(t, ActorsAddCommand(app, []string{"--name", "Max Manager", "--email", "max@example.com", "--role", "manager"}))
}

func TestActorsAddAndList(t *testing.T) {
	app, out := setupTestApp(t)

	addActors(t, app)
	assert.Contains(t, out.String(), "✓ Actor created: Rita Rep <rita@example.com> as rep")
	assert.Contains(t, out.String(), "✓ Actor created: Max Manager <max@example.com> as manager")

	err := ActorsAddCommand(app, []string{"--name", "Dup", "--email", "RITA@example.com"})
	assert.ErrorContains(t, err, "already exists")

	err = ActorsAddCommand(app, []string{"--name", "Boss", "--email", "boss@example.com", "--role", "owner"})
	assert.ErrorContains(t, err, "invalid role")

	out.Reset()
	require.NoError(t, ActorsListCommand(app, nil))
	assert.Contains(t, out.String(), "max@example.com")
	assert.Contains(t, out.String(), "Total: 2 actor(s)")
}

func TestCommandsNeedAnActor(t *testing.T) {
	app, _ := setupTestApp(t)

	err := TasksAddCommand(app, []string{"--title", "Call back"})
	assert.ErrorContains(t, err, "no acting user")

	app.ActorEmail = "ghost@example.com"
	err = TasksAddCommand(app, []string{"--title", "Call back"})
	assert.ErrorContains(t, err, "unknown actor ghost@example.com")
}

func TestRepTaskWaitsForApproval(t *testing.T) {
	app, out := setupTestApp(t)
	addActors(t, app)
	require.NoError(t, CustomersAddCommand(app, []string{"--name", "Bea Buyer", "--email", "Bea@Shop.example"}))

	app.ActorEmail = "rita@example.com"
	out.Reset()
	require.NoError(t, TasksAddCommand(app, []string{"--title", "Call Bea", "--due", "2026-11-02", "--customer", "bea@shop.example"}))
	assert.Contains(t, out.String(), "pending)")

	ctx := context.Background()
	tasks, err := app.Store.Tasks.List(ctx, db.TaskFilter{ApprovalStatus: models.ApprovalPending})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	require.NotNil(t, task.CustomerID)

	err = ApprovalCommand(app, approval.ActionApprove, []string{"task", task.ID.String()})
	assert.ErrorIs(t, err, approval.ErrNotPermitted)

	app.ActorEmail = "max@example.com"
	out.Reset()
	require.NoError(t, PendingCommand(app, nil))
	assert.Contains(t, out.String(), "Call Bea")

	out.Reset()
	require.NoError(t, ApprovalCommand(app, approval.ActionApprove, []string{"tasks", task.ID.String()}))
	assert.Contains(t, out.String(), "✓ task "+shortID(task.ID)+": approved")

	stored, err := app.Store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, stored.Approval.Status)
	assert.Empty(t, stored.ExternalID, "nothing is pushed without credentials")

	err = ApprovalCommand(app, approval.ActionReject, []string{"task", task.ID.String(), "--reason", "late"})
	assert.ErrorIs(t, err, approval.ErrInvalidTransition)
}

func TestRejectNeedsReason(t *testing.T) {
	app, _ := setupTestApp(t)
	addActors(t, app)

	app.ActorEmail = "rita@example.com"
	require.NoError(t, VisitsAddCommand(app, []string{"--title", "Shop walk", "--date", "2026-11-03"}))

	visits, err := app.Store.Visits.List(context.Background(), models.ApprovalPending, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	id := visits[0].ID.String()

	app.ActorEmail = "max@example.com"
	err = ApprovalCommand(app, approval.ActionReject, []string{"visit", id})
	assert.ErrorIs(t, err, approval.ErrReasonRequired)

	require.NoError(t, ApprovalCommand(app, approval.ActionReject, []string{"visit", id, "--reason", "outside territory"}))
	require.NoError(t, ApprovalCommand(app, approval.ActionReopen, []string{"visit", id}))

	stored, err := app.Store.Visits.Get(context.Background(), visits[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, stored.Approval.Status)
}

func TestApprovalCommandErrors(t *testing.T) {
	app, _ := setupTestApp(t)
	addActors(t, app)
	app.ActorEmail = "max@example.com"

	assert.ErrorContains(t, ApprovalCommand(app, approval.ActionApprove, []string{"task"}), "usage:")
	assert.ErrorContains(t, ApprovalCommand(app, approval.ActionApprove, []string{"deal", "x"}), "unknown record kind")
	assert.ErrorContains(t, ApprovalCommand(app, approval.ActionApprove, []string{"task", "not-a-uuid"}), "invalid id")
	assert.ErrorContains(t, ApprovalCommand(app, approval.ActionApprove,
		[]string{"submission", "00000000-0000-0000-0000-000000000001"}), "not found")
}

func TestManagerSaleCountsTowardTarget(t *testing.T) {
	app, out := setupTestApp(t)
	addActors(t, app)

	start := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	end := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	require.NoError(t, TargetsAddCommand(app, []string{"--value", "1000", "--start", start, "--end", end}))

	err := TargetsAddCommand(app, []string{"--value", "1000", "--start", end, "--end", start})
	assert.ErrorContains(t, err, "ends before it starts")

	app.ActorEmail = "max@example.com"
	out.Reset()
	require.NoError(t, SubmissionsAddCommand(app, []string{"--amount", "250.50", "--currency", "usd"}))
	assert.Contains(t, out.String(), "✓ Sale recorded: 250.50 USD")
	assert.Contains(t, out.String(), "approved)")

	out.Reset()
	require.NoError(t, TargetsListCommand(app, nil))
	assert.Contains(t, out.String(), "250.50")
	assert.Contains(t, out.String(), "1000.00")
}

func TestSyncWithoutCredentials(t *testing.T) {
	app, out := setupTestApp(t)

	err := SyncPushCommand(app, nil)
	assert.ErrorIs(t, err, hubspot.ErrNoCredentials)
	assert.ErrorContains(t, err, "fieldsync sync auth")

	require.NoError(t, SyncStatusCommand(app, nil))
	assert.Contains(t, out.String(), "No sync has run yet")
}

func TestInitCommand(t *testing.T) {
	app, out := setupTestApp(t)
	path := filepath.Join(t.TempDir(), "config.json")

	require.NoError(t, InitCommand(app, path))
	assert.Contains(t, out.String(), "✓ Config written to "+path)
	_, err := os.Stat(path)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, InitCommand(app, path))
	assert.Contains(t, out.String(), "✓ Config exists at "+path)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1250.50", 125050},
		{"19.999", 2000},
		{" 7 ", 700},
		{"0.1", 10},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "abc", "NaN", "Inf"} {
		_, err := parseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-05-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.Local), d)

	d, err = parseDate("2026-05-04T10:30:00Z")
	require.NoError(t, err)
	assert.True(t, d.Equal(time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)))

	_, err = parseDate("05/04/2026")
	assert.ErrorContains(t, err, "invalid date")

	none, err := parseOptionalDate("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFormatTimeSince(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{"just now", time.Now().Add(-30 * time.Second), "just now"},
		{"one minute", time.Now().Add(-61 * time.Second), "1 minute ago"},
		{"minutes ago", time.Now().Add(-5 * time.Minute), "5 minutes ago"},
		{"hours ago", time.Now().Add(-2 * time.Hour), "2 hours ago"},
		{"days ago", time.Now().Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeSince(tt.time))
		})
	}
}
