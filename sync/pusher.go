// ABOUTME: Push pass sending approved tasks and sales submissions to HubSpot
// ABOUTME: Creates each external object at most once and retries only failed associations
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"go.uber.org/zap"
)

// associationSignature marks sync errors the push selection retries.
const associationSignature = "association"

// pushTarget is one local record on its way to HubSpot.
type pushTarget struct {
	entity            db.Entity
	objectType        string
	id                uuid.UUID
	ref               models.ExternalRef
	customerID        *uuid.UUID
	externalContactID string
	externalCompanyID string
	create            func(ctx context.Context) (string, error)
	record            func(ctx context.Context, id uuid.UUID, ref models.ExternalRef) error
}

// pusher holds the per-pass state of one push.
type pusher struct {
	engine   *Engine
	contacts map[uuid.UUID]string
}

func (e *Engine) newPusher() *pusher {
	return &pusher{engine: e, contacts: make(map[uuid.UUID]string)}
}

// PushTasks sends approved tasks that lack an external id or whose last
// association failed.
func (e *Engine) PushTasks(ctx context.Context, filter PushFilter) (PushResult, error) {
	result := PushResult{Failed: []PushFailure{}}
	sel, err := filter.selection()
	if err != nil {
		return result, err
	}

	p := e.beginPass(ctx, models.DirectionPush, EntityTasks)
	defer func() {
		p.finish(ctx, models.SyncRun{Fetched: result.Attempted, Updated: result.Synced, Failed: len(result.Failed)}, err)
		e.recordPush(EntityTasks, result)
	}()

	tasks, err := e.store.Tasks.ListForPush(ctx, sel)
	if err != nil {
		return result, err
	}

	ps := e.newPusher()
	for i := range tasks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return result, err
		}
		result.Attempted++
		if failure := ps.push(ctx, ps.taskTarget(&tasks[i])); failure != nil {
			result.addFailure(*failure)
			continue
		}
		result.Synced++
	}

	e.logger.Info("task push complete",
		zap.Int("attempted", result.Attempted),
		zap.Int("synced", result.Synced),
		zap.Int("partial", result.Partial),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}

// PushSubmissions sends approved sales submissions to HubSpot as orders.
func (e *Engine) PushSubmissions(ctx context.Context, filter PushFilter) (PushResult, error) {
	result := PushResult{Failed: []PushFailure{}}
	sel, err := filter.selection()
	if err != nil {
		return result, err
	}

	p := e.beginPass(ctx, models.DirectionPush, EntitySubmissions)
	defer func() {
		p.finish(ctx, models.SyncRun{Fetched: result.Attempted, Updated: result.Synced, Failed: len(result.Failed)}, err)
		e.recordPush(EntitySubmissions, result)
	}()

	submissions, err := e.store.Submissions.ListForPush(ctx, sel)
	if err != nil {
		return result, err
	}

	ps := e.newPusher()
	for i := range submissions {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return result, err
		}
		result.Attempted++
		if failure := ps.push(ctx, ps.submissionTarget(&submissions[i])); failure != nil {
			result.addFailure(*failure)
			continue
		}
		result.Synced++
	}

	e.logger.Info("submission push complete",
		zap.Int("attempted", result.Attempted),
		zap.Int("synced", result.Synced),
		zap.Int("partial", result.Partial),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}

// PushTask pushes one approved task. It is a no-op for tasks that are not
// approved or are already fully synced.
func (e *Engine) PushTask(ctx context.Context, id uuid.UUID) error {
	task, err := e.store.Tasks.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if !needsPush(task.Approval.Status, task.ExternalRef) {
		return nil
	}

	ps := e.newPusher()
	if failure := ps.push(ctx, ps.taskTarget(task)); failure != nil {
		return errors.New(failure.Error)
	}
	return nil
}

// PushSubmission pushes one approved sales submission as an order.
func (e *Engine) PushSubmission(ctx context.Context, id uuid.UUID) error {
	submission, err := e.store.Submissions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load submission: %w", err)
	}
	if !needsPush(submission.Approval.Status, submission.ExternalRef) {
		return nil
	}

	ps := e.newPusher()
	if failure := ps.push(ctx, ps.submissionTarget(submission)); failure != nil {
		return errors.New(failure.Error)
	}
	return nil
}

func needsPush(status models.ApprovalStatus, ref models.ExternalRef) bool {
	if status != models.ApprovalApproved {
		return false
	}
	return !ref.HasExternalID() || strings.Contains(ref.LastSyncError, associationSignature)
}

func (ps *pusher) taskTarget(task *models.Task) pushTarget {
	crm := ps.engine.crm
	return pushTarget{
		entity:            db.EntityTask,
		objectType:        hubspot.ObjectTasks,
		id:                task.ID,
		ref:               task.ExternalRef,
		customerID:        task.CustomerID,
		externalContactID: task.ExternalContactID,
		externalCompanyID: task.ExternalCompanyID,
		create: func(ctx context.Context) (string, error) {
			return crm.CreateTask(ctx, hubspot.TaskInput{
				Subject:   task.Title,
				Body:      task.Description,
				Status:    remoteStatus(*task),
				Priority:  remotePriority(task.Priority),
				Type:      remoteTaskType(task.Type),
				Timestamp: task.DueDate,
				OwnerID:   task.ExternalOwnerID,
			})
		},
		record: ps.engine.store.Tasks.RecordSync,
	}
}

func (ps *pusher) submissionTarget(s *models.SalesSubmission) pushTarget {
	crm := ps.engine.crm
	name := strings.TrimSpace(s.Description)
	if name == "" {
		name = "Field sale " + s.SalesDate.Format("2006-01-02")
	}
	return pushTarget{
		entity:     db.EntitySubmission,
		objectType: hubspot.ObjectOrders,
		id:         s.ID,
		ref:        s.ExternalRef,
		customerID: s.CustomerID,
		create: func(ctx context.Context) (string, error) {
			return crm.CreateOrder(ctx, hubspot.OrderInput{
				Name:        name,
				AmountCents: s.AmountCents,
				Currency:    s.Currency,
				ClosedAt:    s.SalesDate,
				ExternalRef: s.ID.String(),
			})
		},
		record: ps.engine.store.Submissions.RecordSync,
	}
}

// push runs contact resolution, create-once and association for one record.
// It returns nil when the record is fully synced.
func (ps *pusher) push(ctx context.Context, t pushTarget) *PushFailure {
	e := ps.engine
	logger := e.logger.With(zap.String("entity", string(t.entity)), zap.String("record_id", t.id.String()))

	contactID, contactErr := ps.resolveContact(ctx, t)

	externalID := t.ref.ExternalID
	if externalID == "" {
		created, err := t.create(ctx)
		if err != nil {
			msg := "create failed: " + err.Error()
			ps.record(ctx, logger, t, models.ExternalRef{LastSyncError: msg})
			logger.Warn("push failed", zap.String("stage", StageCreate), zap.Error(err))
			return &PushFailure{RecordID: t.id, Stage: StageCreate, Error: msg}
		}
		externalID = created
		// stored before associating so a retry never creates a second object
		ps.record(ctx, logger, t, models.ExternalRef{ExternalID: externalID})
	}

	stage := ""
	var problems []string
	switch {
	case contactErr != nil:
		stage = StageContact
		problems = append(problems, "contact unresolved: "+contactErr.Error())
	case contactID != "":
		if err := e.crm.Associate(ctx, t.objectType, externalID, hubspot.ObjectContacts, contactID); err != nil {
			stage = StageAssociate
			problems = append(problems, fmt.Sprintf("contact %s: %v", contactID, err))
		}
	}
	if t.externalCompanyID != "" {
		if err := e.crm.Associate(ctx, t.objectType, externalID, hubspot.ObjectCompanies, t.externalCompanyID); err != nil {
			if stage == "" {
				stage = StageAssociate
			}
			problems = append(problems, fmt.Sprintf("company %s: %v", t.externalCompanyID, err))
		}
	}

	msg := ""
	if len(problems) > 0 {
		msg = "association failed: " + strings.Join(problems, "; ")
	}
	ps.record(ctx, logger, t, models.ExternalRef{ExternalID: externalID, LastSyncError: msg})

	if msg != "" {
		logger.Warn("push partially failed", zap.String("external_id", externalID), zap.String("stage", stage), zap.String("error", msg))
		return &PushFailure{RecordID: t.id, ExternalID: externalID, Stage: stage, Error: msg}
	}

	return nil
}

func (ps *pusher) record(ctx context.Context, logger *zap.Logger, t pushTarget, ref models.ExternalRef) {
	synced := ps.engine.now().UTC()
	ref.LastSyncedAt = &synced
	if err := t.record(context.WithoutCancel(ctx), t.id, ref); err != nil {
		if errors.Is(err, db.ErrConflict) {
			logger.Error("external id already stored on another record",
				zap.Error(&ConsistencyViolation{Entity: string(t.entity), ExternalID: ref.ExternalID, Err: err}))
			return
		}
		logger.Error("failed to store sync outcome", zap.String("external_id", ref.ExternalID), zap.Error(err))
	}
}

// resolveContact finds the HubSpot contact for the record's customer by email,
// creating it when HubSpot has none. Records without a customer fall back to
// the contact they were imported with.
func (ps *pusher) resolveContact(ctx context.Context, t pushTarget) (string, error) {
	if t.customerID == nil {
		return t.externalContactID, nil
	}
	if id, ok := ps.contacts[*t.customerID]; ok {
		return id, nil
	}

	store := ps.engine.store
	customer, err := store.Customers.Get(ctx, *t.customerID)
	if err != nil {
		if t.externalContactID != "" {
			return t.externalContactID, nil
		}
		return "", fmt.Errorf("failed to load customer: %w", err)
	}
	if customer.ExternalID != "" {
		ps.contacts[customer.ID] = customer.ExternalID
		return customer.ExternalID, nil
	}

	email := NormalizeEmail(customer.Email)
	if email == "" {
		return t.externalContactID, nil
	}

	crm := ps.engine.crm
	contact, err := crm.SearchContactByEmail(ctx, email)
	if errors.Is(err, hubspot.ErrNotFound) {
		first, last := splitName(customer.Name)
		contact, err = crm.CreateOrUpdateContact(ctx, hubspot.ContactInput{
			Email:     email,
			FirstName: first,
			LastName:  last,
			Phone:     customer.Phone,
			Company:   customer.CompanyName,
		})
	}
	if err != nil {
		return "", err
	}

	synced := ps.engine.now().UTC()
	if err := store.Customers.RecordSync(ctx, customer.ID, models.ExternalRef{ExternalID: contact.ID, LastSyncedAt: &synced}); err != nil {
		ps.engine.logger.Warn("failed to store customer contact id",
			zap.String("customer_id", customer.ID.String()),
			zap.String("contact_id", contact.ID),
			zap.Error(err))
	}
	ps.contacts[customer.ID] = contact.ID

	return contact.ID, nil
}

func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
