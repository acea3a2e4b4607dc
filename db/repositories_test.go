// ABOUTME: Tests for actor, customer, visit, submission and target repositories
// ABOUTME: Covers pattern matching, keyed upserts, approval guards and once-only revenue credits
package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createActor(t *testing.T, store *Store, name, email, role string) *models.Actor {
	t.Helper()
	actor := &models.Actor{Name: name, Email: email, Role: role}
	require.NoError(t, store.Actors.Create(context.Background(), actor))
	return actor
}

func TestActorsFindByEmailIgnoresCase(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	alice := createActor(t, store, "Alice Rep", "alice@example.com", models.RoleRep)

	found, err := store.Actors.FindByEmail(ctx, "ALICE@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	found, err = store.Actors.FindByName(ctx, "alice rep")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)
}

func TestActorsFindByEmailEscapesPattern(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	createActor(t, store, "Bob", "bob+sales@example.com", models.RoleRep)
	createActor(t, store, "Carol", "carolXexample.com", models.RoleRep)

	_, err := store.Actors.FindByEmail(ctx, ".*")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Actors.FindByEmail(ctx, "carol.example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := store.Actors.FindByEmail(ctx, "bob+sales@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob", found.Name)

	_, err = store.Actors.FindByEmail(ctx, "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActorsDuplicateEmailConflicts(t *testing.T) {
	store := NewStore(setupTestDB(t))
	createActor(t, store, "Alice", "alice@example.com", models.RoleRep)

	err := store.Actors.Create(context.Background(), &models.Actor{Name: "Other", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCustomersUpsertByExternalID(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	c := &models.Customer{
		Name:            "Dana",
		Email:           "Dana@Example.com",
		EmailNormalized: "dana@example.com",
		Provenance:      models.ProvenanceExternal,
		ExternalRef:     models.ExternalRef{ExternalID: "501"},
	}
	id, created, err := store.Customers.UpsertByExternalID(ctx, c)
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.Customer{
		Name:            "Dana Renamed",
		Email:           "dana@example.com",
		EmailNormalized: "dana@example.com",
		Provenance:      models.ProvenanceExternal,
		ExternalRef:     models.ExternalRef{ExternalID: "501"},
	}
	id2, created, err := store.Customers.UpsertByExternalID(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	stored, err := store.Customers.FindByExternalID(ctx, "501")
	require.NoError(t, err)
	assert.Equal(t, "Dana Renamed", stored.Name)

	all, err := store.Customers.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCustomersNormalizedEmailIsUnique(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Customers.Create(ctx, &models.Customer{Name: "A", EmailNormalized: "a@example.com"}))
	err := store.Customers.Create(ctx, &models.Customer{Name: "B", EmailNormalized: "a@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	// absent emails never collide
	require.NoError(t, store.Customers.Create(ctx, &models.Customer{Name: "C"}))
	require.NoError(t, store.Customers.Create(ctx, &models.Customer{Name: "D"}))
}

func TestCustomersRecordSyncKeepsExternalID(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	c := &models.Customer{Name: "E", ExternalRef: models.ExternalRef{ExternalID: "900"}}
	require.NoError(t, store.Customers.Create(ctx, c))

	require.NoError(t, store.Customers.RecordSync(ctx, c.ID, models.ExternalRef{LastSyncError: "boom"}))

	stored, err := store.Customers.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "900", stored.ExternalID)
	assert.Equal(t, "boom", stored.LastSyncError)
	assert.NotNil(t, stored.LastSyncedAt)
}

func TestUpdateApprovalGuardsStatus(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	rep := createActor(t, store, "Rep", "rep@example.com", models.RoleRep)

	visit := &models.VisitTarget{
		Title:     "Site walk",
		OwnerID:   rep.ID,
		VisitDate: time.Now(),
		Approval:  models.Approval{Status: models.ApprovalPending},
		CreatedBy: rep.ID,
	}
	require.NoError(t, store.Visits.Create(ctx, visit))

	now := time.Now().UTC()
	approved := models.Approval{Status: models.ApprovalApproved, ApprovedBy: &rep.ID, ApprovedAt: &now}
	require.NoError(t, store.UpdateApproval(ctx, EntityVisit, visit.ID, models.ApprovalPending, approved))

	err := store.UpdateApproval(ctx, EntityVisit, visit.ID, models.ApprovalPending, approved)
	assert.ErrorIs(t, err, ErrStaleApproval)

	err = store.UpdateApproval(ctx, EntityVisit, uuid.New(), models.ApprovalPending, approved)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := store.Visits.Get(ctx, visit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, stored.Approval.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, rep.ID, *stored.ApprovedBy)
}

func TestSubmissionsListForPush(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	rep := createActor(t, store, "Rep", "rep@example.com", models.RoleRep)

	newSubmission := func(status models.ApprovalStatus, ref models.ExternalRef) *models.SalesSubmission {
		s := &models.SalesSubmission{
			OwnerID:     rep.ID,
			AmountCents: 1000,
			SalesDate:   time.Now(),
			Approval:    models.Approval{Status: status},
			ExternalRef: ref,
			CreatedBy:   rep.ID,
		}
		require.NoError(t, store.Submissions.Create(ctx, s))
		return s
	}

	missing := newSubmission(models.ApprovalApproved, models.ExternalRef{})
	retry := newSubmission(models.ApprovalApproved, models.ExternalRef{ExternalID: "o-1", LastSyncError: "association failed: 500"})
	newSubmission(models.ApprovalApproved, models.ExternalRef{ExternalID: "o-2"})
	newSubmission(models.ApprovalPending, models.ExternalRef{})

	both, err := store.Submissions.ListForPush(ctx, PushSelection{MissingExternalRef: true, RetryAssociation: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{missing.ID, retry.ID}, submissionIDs(both))

	onlyRetry, err := store.Submissions.ListForPush(ctx, PushSelection{RetryAssociation: true})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{retry.ID}, submissionIDs(onlyRetry))
}

func submissionIDs(subs []models.SalesSubmission) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestCreditSaleAppliesOnce(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	rep := createActor(t, store, "Rep", "rep@example.com", models.RoleRep)

	inWindow := &models.SalesTarget{Type: models.TargetTypeRevenue, TargetValue: 100000, StartDate: now.AddDate(0, 0, -7), EndDate: now.AddDate(0, 0, 7), Active: true}
	expired := &models.SalesTarget{Type: models.TargetTypeRevenue, TargetValue: 100000, StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, -1, 0), Active: true}
	visits := &models.SalesTarget{Type: models.TargetTypeVisits, TargetValue: 10, StartDate: now.AddDate(0, 0, -7), EndDate: now.AddDate(0, 0, 7), Active: true}
	for _, target := range []*models.SalesTarget{inWindow, expired, visits} {
		require.NoError(t, store.Targets.Create(ctx, target))
	}

	sale := &models.SalesSubmission{OwnerID: rep.ID, AmountCents: 2500, SalesDate: now, CreatedBy: rep.ID,
		Approval: models.Approval{Status: models.ApprovalApproved}}
	require.NoError(t, store.Submissions.Create(ctx, sale))

	progress := func() map[uuid.UUID]int64 {
		targets, err := store.Targets.List(ctx, true)
		require.NoError(t, err)
		out := map[uuid.UUID]int64{}
		for _, target := range targets {
			out[target.ID] = target.CurrentProgress
		}
		return out
	}

	moved, applied, err := store.Targets.CreditSale(ctx, sale.ID, sale.AmountCents, now)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1), moved)

	_, applied, err = store.Targets.CreditSale(ctx, sale.ID, sale.AmountCents, now)
	require.NoError(t, err)
	assert.False(t, applied)

	p := progress()
	assert.Equal(t, int64(2500), p[inWindow.ID])
	assert.Equal(t, int64(0), p[expired.ID])
	assert.Equal(t, int64(0), p[visits.ID])

	_, applied, err = store.Targets.ReverseSale(ctx, sale.ID, sale.AmountCents, now)
	require.NoError(t, err)
	assert.True(t, applied)
	_, applied, err = store.Targets.ReverseSale(ctx, sale.ID, sale.AmountCents, now)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(0), progress()[inWindow.ID])

	_, applied, err = store.Targets.CreditSale(ctx, sale.ID, sale.AmountCents, now)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(2500), progress()[inWindow.ID])
}

func TestTargetsRejectInvertedWindow(t *testing.T) {
	store := NewStore(setupTestDB(t))
	now := time.Now()
	err := store.Targets.Create(context.Background(), &models.SalesTarget{Type: models.TargetTypeRevenue, StartDate: now, EndDate: now.AddDate(0, 0, -1)})
	assert.Error(t, err)
}

func TestSyncStateAndRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	state, err := GetSyncState(ctx, db, "hubspot_tasks")
	require.NoError(t, err)
	assert.Nil(t, state)

	msg := "rate limited"
	require.NoError(t, UpdateSyncStatus(ctx, db, "hubspot_tasks", models.SyncStatusError, &msg))
	state, err = GetSyncState(ctx, db, "hubspot_tasks")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, state.Status)
	assert.Equal(t, msg, state.ErrorMessage)

	require.NoError(t, MarkSynced(ctx, db, "hubspot_tasks", time.Now()))
	state, err = GetSyncState(ctx, db, "hubspot_tasks")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, state.Status)
	assert.Empty(t, state.ErrorMessage)
	assert.NotNil(t, state.LastSyncTime)

	run, err := StartSyncRun(ctx, db, models.DirectionPull, "tasks")
	require.NoError(t, err)
	run.Fetched, run.Created = 3, 2
	require.NoError(t, FinishSyncRun(ctx, db, run))

	runs, err := ListSyncRuns(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Fetched)
	assert.NotNil(t, runs[0].FinishedAt)

	states, err := GetAllSyncStates(ctx, db)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestSetSyncErrorUnknownRecord(t *testing.T) {
	store := NewStore(setupTestDB(t))
	err := store.SetSyncError(context.Background(), EntityTask, uuid.New(), "x")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = store.SetSyncError(context.Background(), Entity("nope"), uuid.New(), "x")
	assert.Error(t, err)
}
