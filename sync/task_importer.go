// ABOUTME: Pull pass for HubSpot tasks
// ABOUTME: Resolves owners, contacts and companies, then upserts tasks keyed by external id
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"go.uber.org/zap"
)

type itemOutcome int

const (
	outcomeSkipped itemOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeUnchanged
)

func (r *PullResult) add(o itemOutcome) {
	switch o {
	case outcomeCreated:
		r.Created++
	case outcomeUpdated:
		r.Updated++
	case outcomeUnchanged:
		r.Unchanged++
	default:
		r.Skipped++
	}
}

// taskImporter holds the per-pass state of one task pull.
type taskImporter struct {
	engine   *Engine
	actor    models.Actor
	owners   *OwnerResolver
	assoc    *AssociationResolver
	matcher  *CustomerMatcher
	syncedAt time.Time
}

// PullTasks imports one page of HubSpot tasks. Item failures are logged and
// counted as skipped; only a failure to list tasks fails the pass.
func (e *Engine) PullTasks(ctx context.Context, filter PullFilter, actor models.Actor) (PullResult, error) {
	var result PullResult
	if err := requireActor(actor); err != nil {
		return result, err
	}
	filter, err := filter.normalize()
	if err != nil {
		return result, err
	}

	p := e.beginPass(ctx, models.DirectionPull, EntityTasks)
	defer func() {
		p.finish(ctx, models.SyncRun{Fetched: result.Fetched, Created: result.Created, Updated: result.Updated, Skipped: result.Skipped}, err)
		e.recordPull(EntityTasks, result)
	}()

	tasks, err := e.crm.ListTasks(ctx, hubspot.ListOptions{Limit: filter.Limit, ModifiedFrom: filter.From, ModifiedTo: filter.To})
	if err != nil {
		err = fmt.Errorf("failed to list hubspot tasks: %w", err)
		return result, err
	}
	result.Fetched = len(tasks)

	imp := &taskImporter{
		engine:   e,
		actor:    actor,
		owners:   NewOwnerResolver(e.store.Actors, e.crm, e.logger),
		assoc:    NewAssociationResolver(e.crm, e.logger),
		matcher:  NewCustomerMatcher(e.store.Customers),
		syncedAt: e.now().UTC(),
	}

	for _, t := range tasks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return result, err
		}
		result.add(imp.importTask(ctx, t))
	}

	e.logger.Info("task pull complete",
		zap.Int("fetched", result.Fetched),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped", result.Skipped))

	return result, nil
}

func (imp *taskImporter) importTask(ctx context.Context, t hubspot.Task) itemOutcome {
	logger := imp.engine.logger.With(zap.String("external_id", t.ID))

	in, err := imp.buildImportedTask(ctx, t)
	if err != nil {
		logger.Warn("skipping task", zap.Error(err))
		return outcomeSkipped
	}

	tasks := imp.engine.store.Tasks
	existing, err := tasks.FindByExternalID(ctx, in.ExternalID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		logger.Warn("skipping task", zap.String("field", "external_id"), zap.Error(err))
		return outcomeSkipped
	}
	if errors.Is(err, db.ErrNotFound) {
		existing = nil
	}

	merged := mergeImportedTask(existing, in, imp.actor, imp.syncedAt)

	if existing != nil && !taskChanged(*existing, merged) {
		if err := tasks.TouchSynced(ctx, existing.ID, imp.syncedAt); err != nil {
			logger.Warn("failed to stamp sync time", zap.Error(err))
		}
		return outcomeUnchanged
	}

	_, created, err := tasks.UpsertByExternalID(ctx, &merged)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			violation := &ConsistencyViolation{Entity: EntityTasks, ExternalID: in.ExternalID, Err: err}
			logger.Error("task upsert collided with another record", zap.Error(violation))
			if existing != nil {
				if flagErr := imp.engine.store.SetSyncError(ctx, db.EntityTask, existing.ID, violation.Error()); flagErr != nil {
					logger.Warn("failed to flag task", zap.Error(flagErr))
				}
			}
			return outcomeSkipped
		}
		logger.Warn("skipping task", zap.String("field", "upsert"), zap.Error(err))
		return outcomeSkipped
	}

	if created && existing == nil {
		return outcomeCreated
	}
	return outcomeUpdated
}

func (imp *taskImporter) buildImportedTask(ctx context.Context, t hubspot.Task) (importedTask, error) {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return importedTask{}, &ValidationError{Field: "id", Reason: "missing"}
	}

	due, ok := parseTimestamp(t.Timestamp)
	if !ok {
		imp.engine.logger.Warn("unparseable task timestamp, using now",
			zap.String("external_id", id),
			zap.String("field", "hs_timestamp"),
			zap.String("value", t.Timestamp))
	}

	title := strings.TrimSpace(t.Subject)
	if title == "" {
		title = "HubSpot task " + id
	}

	owner := imp.owners.Lookup(ctx, ExternalOwner{ID: t.OwnerID})
	actor, matched := imp.owners.Match(ctx, owner)
	if !matched {
		actor = imp.actor
	}
	in := importedTask{
		ExternalID:          id,
		Title:               title,
		Description:         t.Body,
		Type:                localTaskType(t.Type),
		Priority:            localPriority(t.Priority),
		DueDate:             due,
		ExternallyCompleted: externallyCompleted(t.Status),
		Owner:               actor,
		OwnerMatched:        matched,
		ExternalOwner:       owner,
	}

	if in.ExternallyCompleted && strings.TrimSpace(t.CompletionDate) != "" {
		if completed, ok := parseTimestamp(t.CompletionDate); ok {
			in.CompletedDate = &completed
		}
	}

	signals := CompanySignals{DirectCompanyIDs: t.CompanyIDs}
	contact, err := imp.assoc.ResolveContact(ctx, t.ContactIDs)
	if err != nil {
		imp.engine.logger.Warn("task contact unresolved", zap.String("external_id", id), zap.Error(err))
	}
	if contact != nil {
		in.ExternalContactID = contact.ID
		in.CustomerID = imp.linkCustomer(ctx, *contact)
		signals.ContactID = contact.ID
		signals.ContactCompanyProperty = contact.Company
		signals.ContactCompanyIDs = contact.CompanyIDs
	}
	in.Company = imp.assoc.ResolveCompany(ctx, signals)

	return in, nil
}

// linkCustomer finds or creates the local customer for a HubSpot contact.
// Failures leave the task without a customer.
func (imp *taskImporter) linkCustomer(ctx context.Context, contact hubspot.Contact) *uuid.UUID {
	customer, _, err := upsertContact(ctx, imp.engine.store, imp.matcher, contact, imp.syncedAt, imp.engine.logger)
	if err != nil {
		imp.engine.logger.Warn("failed to link task customer",
			zap.String("contact_id", contact.ID),
			zap.Error(err))
	}
	if customer == nil {
		return nil
	}
	id := customer.ID
	return &id
}
