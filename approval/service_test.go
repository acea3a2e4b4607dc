// ABOUTME: Tests for the approval service
// ABOUTME: Covers side-effect fan-out, companion tasks, revenue targets and failure isolation
package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/jobs"
	"github.com/harperreed/fieldsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// inlineDispatcher runs jobs synchronously and keeps their outcomes.
type inlineDispatcher struct {
	mu     sync.Mutex
	kinds  []string
	errors []error
	full   bool
}

func (d *inlineDispatcher) Enqueue(job jobs.Job) error {
	if d.full {
		return jobs.ErrQueueFull
	}
	d.mu.Lock()
	d.kinds = append(d.kinds, job.Kind)
	d.mu.Unlock()

	err := job.Run(context.Background())

	d.mu.Lock()
	d.errors = append(d.errors, err)
	d.mu.Unlock()
	return nil
}

type recordingPusher struct {
	mu          sync.Mutex
	tasks       []uuid.UUID
	submissions []uuid.UUID
	err         error
}

func (p *recordingPusher) PushTask(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, id)
	return p.err
}

func (p *recordingPusher) PushSubmission(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submissions = append(p.submissions, id)
	return p.err
}

type fixture struct {
	svc        *Service
	store      *db.Store
	pusher     *recordingPusher
	dispatcher *inlineDispatcher
	rep        models.Actor
	manager    models.Actor
}

func setup(t *testing.T) fixture {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err)
	store := db.NewStore(database)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	rep := &models.Actor{Name: "Rep", Email: "rep@example.com", Role: models.RoleRep}
	manager := &models.Actor{Name: "Manager", Email: "manager@example.com", Role: models.RoleManager}
	require.NoError(t, store.Actors.Create(ctx, rep))
	require.NoError(t, store.Actors.Create(ctx, manager))

	pusher := &recordingPusher{}
	dispatcher := &inlineDispatcher{}
	return fixture{
		svc:        NewService(store, pusher, dispatcher, zap.NewNop(), nil),
		store:      store,
		pusher:     pusher,
		dispatcher: dispatcher,
		rep:        *rep,
		manager:    *manager,
	}
}

func TestCreateTaskByRepIsPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	task := &models.Task{Title: "Call buyer", DueDate: time.Now().AddDate(0, 0, 1)}
	require.NoError(t, f.svc.CreateTask(ctx, task, f.rep))

	stored, err := f.store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, stored.Approval.Status)
	assert.Equal(t, models.ProvenanceApp, stored.Provenance)
	assert.Equal(t, f.rep.ID, stored.OwnerID)
	assert.Empty(t, f.pusher.tasks)
}

func TestCreateTaskByManagerIsApprovedAndPushed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	task := &models.Task{Title: "Call buyer", DueDate: time.Now()}
	require.NoError(t, f.svc.CreateTask(ctx, task, f.manager))

	stored, err := f.store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, stored.Approval.Status)
	assert.Equal(t, []uuid.UUID{task.ID}, f.pusher.tasks)
}

func TestApproveTaskPushesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := &models.Task{Title: "Call buyer", DueDate: time.Now()}
	require.NoError(t, f.svc.CreateTask(ctx, task, f.rep))

	approval, err := f.svc.Approve(ctx, db.EntityTask, task.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approval.Status)
	assert.Equal(t, f.manager.ID, *approval.ApprovedBy)

	_, err = f.svc.Approve(ctx, db.EntityTask, task.ID, f.manager)
	require.NoError(t, err)
	assert.Len(t, f.pusher.tasks, 1, "approving twice must not push twice")
}

func TestApproveSurvivesPushFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.pusher.err = errors.New("hubspot down")
	task := &models.Task{Title: "Call buyer", DueDate: time.Now()}
	require.NoError(t, f.svc.CreateTask(ctx, task, f.rep))

	_, err := f.svc.Approve(ctx, db.EntityTask, task.ID, f.manager)
	require.NoError(t, err)
	require.Len(t, f.dispatcher.errors, 1)
	assert.Error(t, f.dispatcher.errors[0])

	f.dispatcher.full = true
	other := &models.Task{Title: "Another", DueDate: time.Now()}
	require.NoError(t, f.svc.CreateTask(ctx, other, f.rep))
	_, err = f.svc.Approve(ctx, db.EntityTask, other.ID, f.manager)
	require.NoError(t, err)
}

func TestRepCannotApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := &models.Task{Title: "Call buyer", DueDate: time.Now()}
	require.NoError(t, f.svc.CreateTask(ctx, task, f.rep))

	_, err := f.svc.Approve(ctx, db.EntityTask, task.ID, f.rep)
	assert.ErrorIs(t, err, ErrNotPermitted)
}

func TestRejectAndReopen(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task := &models.Task{Title: "Call buyer", DueDate: time.Now()}
	require.NoError(t, f.svc.CreateTask(ctx, task, f.rep))

	_, err := f.svc.Reject(ctx, db.EntityTask, task.ID, f.manager, "")
	assert.ErrorIs(t, err, ErrReasonRequired)

	rejected, err := f.svc.Reject(ctx, db.EntityTask, task.ID, f.manager, "duplicate of yesterday's call")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, rejected.Status)

	_, err = f.svc.Approve(ctx, db.EntityTask, task.ID, f.manager)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	reopened, err := f.svc.Reopen(ctx, db.EntityTask, task.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.Approval{Status: models.ApprovalPending}, reopened)

	stored, err := f.store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RejectedBy)
	assert.Empty(t, stored.RejectionReason)
	assert.Empty(t, f.pusher.tasks)
}

func TestApproveUnknownRecord(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Approve(context.Background(), db.EntityVisit, uuid.New(), f.manager)
	assert.True(t, IsNotFound(err))
}

func TestApproveVisitCreatesOneCompanionTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	visit := &models.VisitTarget{Title: "Acme HQ", VisitDate: time.Now().AddDate(0, 0, 2), Address: "1 Main St"}
	require.NoError(t, f.svc.CreateVisit(ctx, visit, f.rep))

	_, err := f.svc.Approve(ctx, db.EntityVisit, visit.ID, f.manager)
	require.NoError(t, err)

	companion, err := f.store.Tasks.FindCompanion(ctx, visit.ID, models.TaskTypeVisit)
	require.NoError(t, err)
	assert.Equal(t, "Visit: Acme HQ", companion.Title)
	assert.Equal(t, models.ApprovalApproved, companion.Approval.Status)
	assert.Equal(t, f.rep.ID, companion.OwnerID)
	assert.Equal(t, []uuid.UUID{companion.ID}, f.pusher.tasks)

	again, err := f.svc.EnsureCompanionTask(ctx, visit.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, companion.ID, again.ID)

	_, err = f.svc.Reopen(ctx, db.EntityVisit, visit.ID, f.manager)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, db.EntityVisit, visit.ID, f.manager)
	require.NoError(t, err)

	tasks, err := f.store.Tasks.List(ctx, db.TaskFilter{Type: models.TaskTypeVisit})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestApproveSubmissionIncrementsRevenueTargets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	inWindow := &models.SalesTarget{Type: models.TargetTypeRevenue, TargetValue: 1000000, StartDate: day.AddDate(0, 0, -14), EndDate: day.AddDate(0, 0, 14), Active: true}
	outside := &models.SalesTarget{Type: models.TargetTypeRevenue, TargetValue: 1000000, StartDate: day.AddDate(0, 1, 0), EndDate: day.AddDate(0, 2, 0), Active: true}
	visits := &models.SalesTarget{Type: models.TargetTypeVisits, TargetValue: 10, StartDate: day.AddDate(0, 0, -14), EndDate: day.AddDate(0, 0, 14), Active: true}
	for _, target := range []*models.SalesTarget{inWindow, outside, visits} {
		require.NoError(t, f.store.Targets.Create(ctx, target))
	}

	sub := &models.SalesSubmission{AmountCents: 25000, SalesDate: day}
	require.NoError(t, f.svc.CreateSubmission(ctx, sub, f.rep))

	_, err := f.svc.Approve(ctx, db.EntitySubmission, sub.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sub.ID}, f.pusher.submissions)

	targets, err := f.store.Targets.List(ctx, true)
	require.NoError(t, err)
	progress := map[uuid.UUID]int64{}
	for _, target := range targets {
		progress[target.ID] = target.CurrentProgress
	}
	assert.Equal(t, int64(25000), progress[inWindow.ID])
	assert.Equal(t, int64(0), progress[outside.ID])
	assert.Equal(t, int64(0), progress[visits.ID])
}

func TestApproveVisitCreatesCompanionWhenQueueIsFull(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	visit := &models.VisitTarget{Title: "Acme HQ", VisitDate: time.Now().AddDate(0, 0, 2)}
	require.NoError(t, f.svc.CreateVisit(ctx, visit, f.rep))

	f.dispatcher.full = true
	_, err := f.svc.Approve(ctx, db.EntityVisit, visit.ID, f.manager)
	require.NoError(t, err)

	companion, err := f.store.Tasks.FindCompanion(ctx, visit.ID, models.TaskTypeVisit)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, companion.Approval.Status)
	assert.False(t, companion.HasExternalID())
	assert.Empty(t, f.pusher.tasks)
}

func TestReapprovedSaleCountsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	target := &models.SalesTarget{Type: models.TargetTypeRevenue, TargetValue: 1000000, StartDate: day.AddDate(0, 0, -14), EndDate: day.AddDate(0, 0, 14), Active: true}
	require.NoError(t, f.store.Targets.Create(ctx, target))

	sub := &models.SalesSubmission{AmountCents: 25000, SalesDate: day}
	require.NoError(t, f.svc.CreateSubmission(ctx, sub, f.rep))

	progress := func() int64 {
		targets, err := f.store.Targets.List(ctx, true)
		require.NoError(t, err)
		require.Len(t, targets, 1)
		return targets[0].CurrentProgress
	}

	_, err := f.svc.Approve(ctx, db.EntitySubmission, sub.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), progress())

	_, err = f.svc.Reopen(ctx, db.EntitySubmission, sub.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, int64(0), progress())

	_, err = f.svc.Approve(ctx, db.EntitySubmission, sub.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), progress())

	_, err = f.svc.Approve(ctx, db.EntitySubmission, sub.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), progress())
}

func TestCreateSubmissionRejectsNonPositiveAmount(t *testing.T) {
	f := setup(t)
	err := f.svc.CreateSubmission(context.Background(), &models.SalesSubmission{AmountCents: 0}, f.rep)
	assert.Error(t, err)
}

func TestListPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.CreateTask(ctx, &models.Task{Title: "Call back", DueDate: time.Now()}, f.rep))
	require.NoError(t, f.svc.CreateTask(ctx, &models.Task{Title: "Auto approved", DueDate: time.Now()}, f.manager))
	require.NoError(t, f.svc.CreateVisit(ctx, &models.VisitTarget{Title: "Shop", VisitDate: time.Now(), Status: models.VisitStatusPending}, f.rep))
	require.NoError(t, f.svc.CreateSubmission(ctx, &models.SalesSubmission{AmountCents: 500, Currency: "USD"}, f.rep))

	pending, err := f.svc.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, pending.Len())
	require.Len(t, pending.Tasks, 1)
	assert.Equal(t, "Call back", pending.Tasks[0].Title)
	assert.Len(t, pending.Visits, 1)
	assert.Len(t, pending.Submissions, 1)
}

func TestParseEntity(t *testing.T) {
	for in, want := range map[string]db.Entity{
		"task":        db.EntityTask,
		"Visits":      db.EntityVisit,
		" submission": db.EntitySubmission,
	} {
		got, err := ParseEntity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseEntity("customer")
	assert.Error(t, err)
}
