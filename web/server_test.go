// ABOUTME: Tests for the REST API
// ABOUTME: Drives the echo router with httptest against an in-memory store and a stub engine
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/metrics"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSyncer struct {
	pulled  []string
	actors  []string
	pushed  []string
	filter  sync.PushFilter
	pullErr error
}

func (s *stubSyncer) PullTasks(_ context.Context, _ sync.PullFilter, actor models.Actor) (sync.PullResult, error) {
	s.pulled = append(s.pulled, "tasks")
	s.actors = append(s.actors, actor.Email)
	return sync.PullResult{Fetched: 3, Created: 2, Unchanged: 1}, s.pullErr
}

func (s *stubSyncer) PullContacts(_ context.Context, _ sync.PullFilter, actor models.Actor) (sync.PullResult, error) {
	s.pulled = append(s.pulled, "contacts")
	s.actors = append(s.actors, actor.Email)
	return sync.PullResult{}, s.pullErr
}

func (s *stubSyncer) PushTasks(_ context.Context, f sync.PushFilter) (sync.PushResult, error) {
	s.pushed = append(s.pushed, "tasks")
	s.filter = f
	return sync.PushResult{Attempted: 1, Synced: 1, Failed: []sync.PushFailure{}}, nil
}

func (s *stubSyncer) PushSubmissions(_ context.Context, f sync.PushFilter) (sync.PushResult, error) {
	s.pushed = append(s.pushed, "submissions")
	return sync.PushResult{Failed: []sync.PushFailure{}}, nil
}

func (s *stubSyncer) Status(_ context.Context, _ int) ([]models.SyncState, []models.SyncRun, error) {
	return nil, nil, nil
}

type fixture struct {
	server  *Server
	store   *db.Store
	service *approval.Service
	syncer  *stubSyncer
	rep     models.Actor
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

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	service := approval.NewService(store, nil, nil, zap.NewNop(), m)
	syncer := &stubSyncer{}
	server := NewServer(syncer, service, store, zap.NewNop(), m, Options{
		ImportActor: "manager@example.com",
		Gatherer:    reg,
	})

	return fixture{server: server, store: store, service: service, syncer: syncer, rep: *rep}
}

func (f fixture) do(method, path, actor, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPullUsesImportActorByDefault(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/sync/pull", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Tasks)
	assert.Equal(t, 2, resp.Tasks.Created)
	assert.Nil(t, resp.Contacts)
	assert.Equal(t, []string{"manager@example.com"}, f.syncer.actors)
}

func TestPullAll(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/sync/pull", "rep@example.com", `{"entity":"all","limit":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"contacts", "tasks"}, f.syncer.pulled)
	assert.Equal(t, "rep@example.com", f.syncer.actors[0])
}

func TestPullRejectsBadRequests(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/sync/pull", "", `{"entity":"deals"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Error)

	rec = f.do(http.MethodPost, "/sync/pull", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/sync/pull", "stranger@example.com", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.syncer.pullErr = &sync.ValidationError{Field: "from", Reason: "window starts after it ends"}
	rec = f.do(http.MethodPost, "/sync/pull", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPush(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/sync/push", "", `{"entity":"tasks","only_retry_association":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"tasks"}, f.syncer.pushed)
	assert.True(t, f.syncer.filter.OnlyRetryAssociation)

	var resp pushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Tasks)
	assert.Equal(t, 1, resp.Tasks.Synced)
	assert.Nil(t, resp.Submissions)
}

func TestStatus(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/sync/status?runs=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"services":[],"runs":[]}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/sync/status?runs=zero", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	task := &models.Task{Title: "Call buyer", DueDate: time.Now()}
	require.NoError(t, f.service.CreateTask(ctx, task, f.rep))
	path := "/tasks/" + task.ID.String()

	rec := f.do(http.MethodPost, path+"/approve", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, path+"/approve", "rep@example.com", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, path+"/reject", "manager@example.com", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, path+"/reject", "manager@example.com", `{"reason":"duplicate"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a models.Approval
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, models.ApprovalRejected, a.Status)
	assert.Equal(t, "duplicate", a.RejectionReason)

	rec = f.do(http.MethodPost, path+"/approve", "manager@example.com", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, path+"/reopen", "manager@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, path+"/approve", "manager@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.store.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, stored.Approval.Status)
}

func TestApprovalUnknownRecord(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodPost, "/visits/"+uuid.NewString()+"/approve", "manager@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/submissions/not-a-uuid/approve", "manager@example.com", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPendingAndMetrics(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.service.CreateTask(ctx, &models.Task{Title: "Call buyer", DueDate: time.Now()}, f.rep))

	rec := f.do(http.MethodGet, "/pending", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending approval.Pending
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Len(t, pending.Tasks, 1)

	rec = f.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fieldsync_approval_transitions_total")
	assert.Contains(t, rec.Body.String(), "fieldsync_http_requests_total")
}
