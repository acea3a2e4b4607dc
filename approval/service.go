// ABOUTME: Approval workflow service for tasks, visit targets and sales submissions
// ABOUTME: Commits transitions locally, then fans out side effects through the job queue
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/jobs"
	"github.com/harperreed/fieldsync/metrics"
	"github.com/harperreed/fieldsync/models"
	"go.uber.org/zap"
)

// Pusher sends single approved records to the external CRM. *sync.Engine implements it.
type Pusher interface {
	PushTask(ctx context.Context, id uuid.UUID) error
	PushSubmission(ctx context.Context, id uuid.UUID) error
}

// Dispatcher runs side-effect jobs without the caller waiting on them. *jobs.Queue implements it.
type Dispatcher interface {
	Enqueue(job jobs.Job) error
}

type Service struct {
	store      *db.Store
	pusher     Pusher
	dispatcher Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(store *db.Store, pusher Pusher, dispatcher Dispatcher, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		pusher:     pusher,
		dispatcher: dispatcher,
		logger:     logger.Named("approval"),
		metrics:    m,
		now:        time.Now,
	}
}

// CreateTask stores a task drafted by actor.
func (s *Service) CreateTask(ctx context.Context, task *models.Task, actor models.Actor) error {
	if actor.IsZero() {
		return fmt.Errorf("an acting user is required")
	}
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if task.OwnerID == uuid.Nil {
		task.OwnerID = actor.ID
	}
	if task.Type == "" {
		task.Type = models.TaskTypeCall
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	task.Provenance = models.ProvenanceApp
	task.Approval = Initial(actor, s.now())
	task.CreatedBy = actor.ID

	if err := s.store.Tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	s.afterCreate(ctx, db.EntityTask, task.ID, task.Approval, actor)
	return nil
}

// CreateVisit stores a visit target planned by actor.
func (s *Service) CreateVisit(ctx context.Context, visit *models.VisitTarget, actor models.Actor) error {
	if actor.IsZero() {
		return fmt.Errorf("an acting user is required")
	}
	if strings.TrimSpace(visit.Title) == "" {
		return fmt.Errorf("visit title is required")
	}
	if visit.OwnerID == uuid.Nil {
		visit.OwnerID = actor.ID
	}
	visit.Approval = Initial(actor, s.now())
	visit.CreatedBy = actor.ID

	if err := s.store.Visits.Create(ctx, visit); err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	s.afterCreate(ctx, db.EntityVisit, visit.ID, visit.Approval, actor)
	return nil
}

// CreateSubmission stores a sale reported by actor.
func (s *Service) CreateSubmission(ctx context.Context, sub *models.SalesSubmission, actor models.Actor) error {
	if actor.IsZero() {
		return fmt.Errorf("an acting user is required")
	}
	if sub.AmountCents <= 0 {
		return fmt.Errorf("sale amount must be positive")
	}
	if sub.OwnerID == uuid.Nil {
		sub.OwnerID = actor.ID
	}
	if sub.SalesDate.IsZero() {
		sub.SalesDate = s.now()
	}
	sub.Provenance = models.ProvenanceApp
	sub.Approval = Initial(actor, s.now())
	sub.CreatedBy = actor.ID

	if err := s.store.Submissions.Create(ctx, sub); err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	s.afterCreate(ctx, db.EntitySubmission, sub.ID, sub.Approval, actor)
	return nil
}

func (s *Service) afterCreate(ctx context.Context, entity db.Entity, id uuid.UUID, a models.Approval, actor models.Actor) {
	s.metrics.RecordTransition(string(entity), string(a.Status))
	if a.Status == models.ApprovalApproved {
		s.afterApprove(ctx, entity, id, actor)
	}
}

func (s *Service) Approve(ctx context.Context, entity db.Entity, id uuid.UUID, actor models.Actor) (models.Approval, error) {
	next, noop, err := s.transition(ctx, entity, id, ActionApprove, actor, "")
	if err != nil || noop {
		return next, err
	}
	s.afterApprove(ctx, entity, id, actor)
	return next, nil
}

func (s *Service) Reject(ctx context.Context, entity db.Entity, id uuid.UUID, actor models.Actor, reason string) (models.Approval, error) {
	next, _, err := s.transition(ctx, entity, id, ActionReject, actor, reason)
	return next, err
}

func (s *Service) Reopen(ctx context.Context, entity db.Entity, id uuid.UUID, actor models.Actor) (models.Approval, error) {
	next, _, err := s.transition(ctx, entity, id, ActionReopen, actor, "")
	if err != nil {
		return next, err
	}
	if entity == db.EntitySubmission {
		s.reverseRevenue(ctx, id)
	}
	return next, nil
}

func (s *Service) transition(ctx context.Context, entity db.Entity, id uuid.UUID, action Action, actor models.Actor, reason string) (models.Approval, bool, error) {
	if actor.IsZero() {
		return models.Approval{}, false, fmt.Errorf("an acting user is required")
	}
	if !actor.IsElevated() {
		return models.Approval{}, false, ErrNotPermitted
	}

	current, err := s.currentApproval(ctx, entity, id)
	if err != nil {
		return models.Approval{}, false, err
	}

	next, noop, err := Apply(current, action, actor, reason, s.now())
	if err != nil || noop {
		return next, noop, err
	}

	if err := s.store.UpdateApproval(ctx, entity, id, current.Status, next); err != nil {
		return current, false, fmt.Errorf("failed to %s %s: %w", action, entity, err)
	}

	s.metrics.RecordTransition(string(entity), string(next.Status))
	s.logger.Info("approval transition",
		zap.String("entity", string(entity)),
		zap.String("record_id", id.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
		zap.String("actor", actor.Email))

	return next, false, nil
}

func (s *Service) currentApproval(ctx context.Context, entity db.Entity, id uuid.UUID) (models.Approval, error) {
	switch entity {
	case db.EntityTask:
		task, err := s.store.Tasks.Get(ctx, id)
		if err != nil {
			return models.Approval{}, err
		}
		return task.Approval, nil
	case db.EntityVisit:
		visit, err := s.store.Visits.Get(ctx, id)
		if err != nil {
			return models.Approval{}, err
		}
		return visit.Approval, nil
	case db.EntitySubmission:
		sub, err := s.store.Submissions.Get(ctx, id)
		if err != nil {
			return models.Approval{}, err
		}
		return sub.Approval, nil
	default:
		return models.Approval{}, fmt.Errorf("%s records have no approval workflow", entity)
	}
}

// afterApprove fans out the side effects of an approval. Nothing here fails
// the approval; errors end up on the record via the job queue.
func (s *Service) afterApprove(ctx context.Context, entity db.Entity, id uuid.UUID, actor models.Actor) {
	switch entity {
	case db.EntityTask:
		s.dispatchPushTask(id)
	case db.EntityVisit:
		// the companion is a local insert and must exist before any push is queued
		companion, err := s.EnsureCompanionTask(context.WithoutCancel(ctx), id, actor)
		if err != nil {
			s.logger.Error("failed to ensure companion task", zap.String("visit_id", id.String()), zap.Error(err))
			if serr := s.store.SetSyncError(context.WithoutCancel(ctx), db.EntityVisit, id, err.Error()); serr != nil {
				s.logger.Warn("failed to flag visit", zap.String("visit_id", id.String()), zap.Error(serr))
			}
			return
		}
		s.dispatchPushTask(companion.ID)
	case db.EntitySubmission:
		s.applyRevenue(ctx, id)
		if s.pusher == nil {
			return
		}
		s.dispatch(jobs.Job{
			Kind:     jobs.KindPushSubmission,
			Entity:   db.EntitySubmission,
			RecordID: id,
			Run: func(ctx context.Context) error {
				return s.pusher.PushSubmission(ctx, id)
			},
		})
	}
}

// dispatchPushTask queues a push. Without a pusher the record waits for the next push pass.
func (s *Service) dispatchPushTask(id uuid.UUID) {
	if s.pusher == nil {
		return
	}
	s.dispatch(jobs.Job{
		Kind:     jobs.KindPushTask,
		Entity:   db.EntityTask,
		RecordID: id,
		Run: func(ctx context.Context) error {
			return s.pusher.PushTask(ctx, id)
		},
	})
}

func (s *Service) dispatch(job jobs.Job) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Enqueue(job); err != nil {
		s.logger.Warn("side effect not queued",
			zap.String("kind", job.Kind),
			zap.String("record_id", job.RecordID.String()),
			zap.Error(err))
	}
}

// EnsureCompanionTask returns the visit's companion task, creating it when it
// does not exist yet. Repeated or concurrent calls yield the same task.
func (s *Service) EnsureCompanionTask(ctx context.Context, visitID uuid.UUID, actor models.Actor) (*models.Task, error) {
	visit, err := s.store.Visits.Get(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load visit: %w", err)
	}

	approvedAt := s.now().UTC()
	approver := actor.ID
	if visit.ApprovedBy != nil {
		approver = *visit.ApprovedBy
	}
	if visit.ApprovedAt != nil {
		approvedAt = *visit.ApprovedAt
	}

	draft := &models.Task{
		Title:         "Visit: " + visit.Title,
		Description:   visit.Address,
		Type:          models.TaskTypeVisit,
		Priority:      models.PriorityMedium,
		DueDate:       visit.VisitDate,
		OwnerID:       visit.OwnerID,
		CustomerID:    visit.CustomerID,
		VisitTargetID: &visit.ID,
		Provenance:    models.ProvenanceApp,
		Approval:      models.Approval{Status: models.ApprovalApproved, ApprovedBy: &approver, ApprovedAt: &approvedAt},
		CreatedBy:     approver,
	}

	task, created, err := s.store.Tasks.CreateCompanion(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create companion task: %w", err)
	}
	if created {
		s.logger.Info("created companion task",
			zap.String("visit_id", visitID.String()),
			zap.String("task_id", task.ID.String()))
	}

	return task, nil
}

// applyRevenue credits an approved sale to active revenue targets once. A
// failure is logged and leaves the approval in place.
func (s *Service) applyRevenue(ctx context.Context, id uuid.UUID) {
	s.adjustRevenue(ctx, id, true)
}

// reverseRevenue takes a reopened sale back out of the targets it was credited to.
func (s *Service) reverseRevenue(ctx context.Context, id uuid.UUID) {
	s.adjustRevenue(ctx, id, false)
}

func (s *Service) adjustRevenue(ctx context.Context, id uuid.UUID, credit bool) {
	ctx = context.WithoutCancel(ctx)
	sub, err := s.store.Submissions.Get(ctx, id)
	if err != nil {
		s.logger.Error("failed to load submission", zap.String("record_id", id.String()), zap.Error(err))
		return
	}

	adjust, verb := s.store.Targets.CreditSale, "credited"
	if !credit {
		adjust, verb = s.store.Targets.ReverseSale, "reversed"
	}

	n, applied, err := adjust(ctx, sub.ID, sub.AmountCents, sub.SalesDate)
	if err != nil {
		s.logger.Error("failed to update revenue targets",
			zap.String("record_id", id.String()),
			zap.Int64("amount_cents", sub.AmountCents),
			zap.Error(err))
		return
	}
	if applied {
		s.logger.Info("revenue targets "+verb, zap.String("record_id", id.String()), zap.Int64("targets", n))
	}
}

// Pending lists records waiting for review.
type Pending struct {
	Tasks       []models.Task            `json:"tasks"`
	Visits      []models.VisitTarget     `json:"visits"`
	Submissions []models.SalesSubmission `json:"submissions"`
}

func (p Pending) Len() int {
	return len(p.Tasks) + len(p.Visits) + len(p.Submissions)
}

// ListPending returns up to limit pending records of each kind.
func (s *Service) ListPending(ctx context.Context, limit int) (Pending, error) {
	tasks, err := s.store.Tasks.List(ctx, db.TaskFilter{ApprovalStatus: models.ApprovalPending, Limit: limit})
	if err != nil {
		return Pending{}, err
	}
	visits, err := s.store.Visits.List(ctx, models.ApprovalPending, limit)
	if err != nil {
		return Pending{}, err
	}
	subs, err := s.store.Submissions.List(ctx, models.ApprovalPending, limit)
	if err != nil {
		return Pending{}, err
	}

	return Pending{Tasks: tasks, Visits: visits, Submissions: subs}, nil
}

// ParseEntity accepts task, visit or submission in singular or plural form.
func ParseEntity(name string) (db.Entity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "task", "tasks":
		return db.EntityTask, nil
	case "visit", "visits":
		return db.EntityVisit, nil
	case "submission", "submissions":
		return db.EntitySubmission, nil
	}
	return "", fmt.Errorf("unknown record kind %q (want task, visit or submission)", name)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
