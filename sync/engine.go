// ABOUTME: Reconciliation engine shared state, pass filters and pass results
// ABOUTME: Wraps every pull and push pass with sync_state and sync_runs bookkeeping
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/metrics"
	"github.com/harperreed/fieldsync/models"
	"go.uber.org/zap"
)

// CRM is everything the engine needs from HubSpot. *hubspot.Client implements it.
type CRM interface {
	OwnerDirectory
	AssociationDirectory
	ListTasks(ctx context.Context, opts hubspot.ListOptions) ([]hubspot.Task, error)
	ListContacts(ctx context.Context, opts hubspot.ListOptions) ([]hubspot.Contact, error)
	SearchContactByEmail(ctx context.Context, email string) (*hubspot.Contact, error)
	CreateOrUpdateContact(ctx context.Context, in hubspot.ContactInput) (*hubspot.Contact, error)
	CreateTask(ctx context.Context, in hubspot.TaskInput) (string, error)
	CreateOrder(ctx context.Context, in hubspot.OrderInput) (string, error)
	Associate(ctx context.Context, fromType, fromID, toType, toID string) error
}

var _ CRM = (*hubspot.Client)(nil)

// Entity names used for bookkeeping and metrics.
const (
	EntityTasks       = "tasks"
	EntityContacts    = "contacts"
	EntitySubmissions = "submissions"
)

type PullFilter struct {
	Limit int        `json:"limit" validate:"gte=0"`
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`
}

func (f PullFilter) normalize() (PullFilter, error) {
	if err := validate.Struct(f); err != nil {
		return f, &ValidationError{Field: "limit", Reason: err.Error()}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return f, &ValidationError{Field: "from", Reason: "window starts after it ends"}
	}
	f.Limit = capLimit(f.Limit)
	return f, nil
}

type PushFilter struct {
	OnlyMissingExternalRef bool `json:"only_missing_external_ref"`
	OnlyRetryAssociation   bool `json:"only_retry_association"`
	Limit                  int  `json:"limit" validate:"gte=0"`
}

// selection turns the filter into a store query. Setting neither flag selects both.
func (f PushFilter) selection() (db.PushSelection, error) {
	if err := validate.Struct(f); err != nil {
		return db.PushSelection{}, &ValidationError{Field: "limit", Reason: err.Error()}
	}
	sel := db.PushSelection{
		MissingExternalRef: f.OnlyMissingExternalRef,
		RetryAssociation:   f.OnlyRetryAssociation,
		Limit:              capLimit(f.Limit),
	}
	if !sel.MissingExternalRef && !sel.RetryAssociation {
		sel.MissingExternalRef = true
		sel.RetryAssociation = true
	}
	return sel, nil
}

type PullResult struct {
	Fetched   int `json:"fetched"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Push stages name the step a push failed at.
const (
	StageContact   = "contact"
	StageCreate    = "create"
	StageAssociate = "associate"
)

type PushFailure struct {
	RecordID   uuid.UUID `json:"record_id"`
	ExternalID string    `json:"external_id,omitempty"`
	Stage      string    `json:"stage"`
	Error      string    `json:"error"`
}

// PushResult counts one push pass. Every attempted record is either Synced or
// listed in Failed. Partial counts the Failed records that now exist in
// HubSpot but still lack an association; a retry only associates them.
type PushResult struct {
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Partial   int           `json:"partial"`
	Failed    []PushFailure `json:"failed"`
}

func (r *PushResult) addFailure(f PushFailure) {
	r.Failed = append(r.Failed, f)
	if f.ExternalID != "" {
		r.Partial++
	}
}

type Engine struct {
	store   *db.Store
	crm     CRM
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEngine(store *db.Store, crm CRM, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		crm:     crm,
		logger:  logger.Named("sync"),
		metrics: m,
		now:     time.Now,
	}
}

func capLimit(limit int) int {
	if limit <= 0 || limit > hubspot.MaxPageSize {
		return hubspot.MaxPageSize
	}
	return limit
}

func serviceName(direction, entity string) string {
	return fmt.Sprintf("hubspot_%s_%s", direction, entity)
}

// pass tracks one pull or push pass. Bookkeeping failures are logged and
// never fail the pass.
type pass struct {
	engine    *Engine
	direction string
	entity    string
	started   time.Time
	run       *models.SyncRun
}

func (e *Engine) beginPass(ctx context.Context, direction, entity string) *pass {
	p := &pass{engine: e, direction: direction, entity: entity, started: e.now()}

	if err := db.UpdateSyncStatus(ctx, e.store.DB, serviceName(direction, entity), models.SyncStatusSyncing, nil); err != nil {
		e.logger.Warn("failed to mark sync start", zap.Error(err))
	}
	run, err := db.StartSyncRun(ctx, e.store.DB, direction, entity)
	if err != nil {
		e.logger.Warn("failed to record sync run", zap.Error(err))
	}
	p.run = run

	return p
}

func (p *pass) finish(ctx context.Context, counts models.SyncRun, passErr error) {
	e := p.engine
	service := serviceName(p.direction, p.entity)

	// bookkeeping must land even when the pass ran out of time
	ctx = context.WithoutCancel(ctx)

	if passErr != nil {
		msg := passErr.Error()
		if err := db.UpdateSyncStatus(ctx, e.store.DB, service, models.SyncStatusError, &msg); err != nil {
			e.logger.Warn("failed to record sync error", zap.Error(err))
		}
	} else if err := db.MarkSynced(ctx, e.store.DB, service, e.now()); err != nil {
		e.logger.Warn("failed to mark sync complete", zap.Error(err))
	}

	if p.run != nil {
		p.run.Fetched = counts.Fetched
		p.run.Created = counts.Created
		p.run.Updated = counts.Updated
		p.run.Skipped = counts.Skipped
		p.run.Failed = counts.Failed
		if err := db.FinishSyncRun(ctx, e.store.DB, p.run); err != nil {
			e.logger.Warn("failed to finish sync run", zap.Error(err))
		}
	}

	e.metrics.ObservePass(p.direction, p.entity, e.now().Sub(p.started))
}

func (e *Engine) recordPull(entity string, r PullResult) {
	e.metrics.RecordSyncRecords(models.DirectionPull, entity, "created", r.Created)
	e.metrics.RecordSyncRecords(models.DirectionPull, entity, "updated", r.Updated)
	e.metrics.RecordSyncRecords(models.DirectionPull, entity, "unchanged", r.Unchanged)
	e.metrics.RecordSyncRecords(models.DirectionPull, entity, "skipped", r.Skipped)
}

func (e *Engine) recordPush(entity string, r PushResult) {
	e.metrics.RecordSyncRecords(models.DirectionPush, entity, "synced", r.Synced)
	e.metrics.RecordSyncRecords(models.DirectionPush, entity, "failed", len(r.Failed))
}

func requireActor(actor models.Actor) error {
	if actor.IsZero() {
		return &ValidationError{Field: "actor", Reason: "an acting user is required"}
	}
	return nil
}

// Status returns per-service sync state and the most recent pass runs.
func (e *Engine) Status(ctx context.Context, runs int) ([]models.SyncState, []models.SyncRun, error) {
	states, err := db.GetAllSyncStates(ctx, e.store.DB)
	if err != nil {
		return nil, nil, err
	}
	recent, err := db.ListSyncRuns(ctx, e.store.DB, runs)
	if err != nil {
		return nil, nil, err
	}
	return states, recent, nil
}
