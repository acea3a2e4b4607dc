// ABOUTME: Task database operations
// ABOUTME: Handles CRUD, keyed upserts from imports, companion tasks, push selection and counting
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

const taskColumns = `id, title, description, notes, type, priority, status, due_date, completed_date,
	owner_id, customer_id, visit_target_id, external_owner_id, external_owner_name, external_contact_id,
	external_company_id, external_company_name, external_company_domain, provenance,
	approval_status, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	external_id, last_synced_at, last_sync_error, created_by, created_at, updated_at`

const taskColumnCount = 31

// TaskFilter narrows task listings and counts. Zero values mean "any".
type TaskFilter struct {
	ApprovalStatus models.ApprovalStatus
	Status         string
	Type           string
	OwnerID        *uuid.UUID
	CustomerID     *uuid.UUID
	Limit          int
}

// PushSelection picks approved records that still need to reach the external CRM.
type PushSelection struct {
	MissingExternalRef bool
	RetryAssociation   bool
	Limit              int
}

// countableTaskFields are the only columns CountDistinct accepts.
var countableTaskFields = map[string]bool{
	"owner_id":            true,
	"customer_id":         true,
	"type":                true,
	"status":              true,
	"priority":            true,
	"approval_status":     true,
	"provenance":          true,
	"external_owner_id":   true,
	"external_company_id": true,
}

type TasksRepository struct {
	db *sql.DB
}

func NewTasksRepository(db *sql.DB) *TasksRepository {
	return &TasksRepository{db: db}
}

func (r *TasksRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.RefreshStatus(time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`) VALUES (`+placeholders(taskColumnCount)+`)
	`, taskArgs(task)...)

	return wrapWriteErr(err)
}

// CreateCompanion inserts task, which must be of type visit, unless the visit
// target already has its companion. It returns the stored companion and
// whether this call created it.
func (r *TasksRepository) CreateCompanion(ctx context.Context, task *models.Task) (*models.Task, bool, error) {
	if task.VisitTargetID == nil {
		return nil, false, fmt.Errorf("companion task requires a visit target")
	}
	if task.Type != models.TaskTypeVisit {
		return nil, false, fmt.Errorf("companion task must have type %s", models.TaskTypeVisit)
	}

	existing, err := r.FindCompanion(ctx, *task.VisitTargetID, task.Type)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.RefreshStatus(time.Now())

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`) VALUES (`+placeholders(taskColumnCount)+`)
		ON CONFLICT(visit_target_id) WHERE type = 'visit' DO NOTHING
	`, taskArgs(task)...)
	if err != nil {
		return nil, false, wrapWriteErr(err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if inserted == 1 {
		return task, true, nil
	}

	// lost a race with another approval of the same visit
	existing, err = r.FindCompanion(ctx, *task.VisitTargetID, task.Type)
	return existing, false, err
}

func (r *TasksRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return r.findOne(ctx, "id = ?", id.String())
}

func (r *TasksRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Task, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "external_id = ?", externalID)
}

// FindCompanion returns the task of the given type generated for a visit target.
func (r *TasksRepository) FindCompanion(ctx context.Context, visitTargetID uuid.UUID, taskType string) (*models.Task, error) {
	return r.findOne(ctx, "visit_target_id = ? AND type = ?", visitTargetID.String(), taskType)
}

// UpsertByExternalID inserts task, or overwrites the row that already carries
// its external id. The caller is expected to have merged local-only fields
// into task beforehand.
func (r *TasksRepository) UpsertByExternalID(ctx context.Context, task *models.Task) (uuid.UUID, bool, error) {
	if task.ExternalID == "" {
		return uuid.Nil, false, fmt.Errorf("upsert requires an external id")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status != models.TaskStatusCompleted {
		task.RefreshStatus(time.Now())
	}

	var storedID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`) VALUES (`+placeholders(taskColumnCount)+`)
		ON CONFLICT(external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			notes = excluded.notes,
			type = excluded.type,
			priority = excluded.priority,
			status = excluded.status,
			due_date = excluded.due_date,
			completed_date = excluded.completed_date,
			owner_id = excluded.owner_id,
			customer_id = excluded.customer_id,
			external_owner_id = excluded.external_owner_id,
			external_owner_name = excluded.external_owner_name,
			external_contact_id = excluded.external_contact_id,
			external_company_id = excluded.external_company_id,
			external_company_name = excluded.external_company_name,
			external_company_domain = excluded.external_company_domain,
			provenance = excluded.provenance,
			approval_status = excluded.approval_status,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			rejected_by = excluded.rejected_by,
			rejected_at = excluded.rejected_at,
			rejection_reason = excluded.rejection_reason,
			last_synced_at = excluded.last_synced_at,
			last_sync_error = excluded.last_sync_error,
			updated_at = excluded.updated_at
		RETURNING id
	`, taskArgs(task)...).Scan(&storedID)
	if err != nil {
		return uuid.Nil, false, wrapWriteErr(err)
	}

	id, err := uuid.Parse(storedID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to parse task id: %w", err)
	}

	return id, id == task.ID, nil
}

// Update overwrites every mutable column of an existing task and recomputes its status.
func (r *TasksRepository) Update(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	task.RefreshStatus(time.Now())

	args := taskArgs(task)
	// drop id and created_by/created_at, then key on id
	setArgs := append(args[1:28:28], task.UpdatedAt, task.ID.String())

	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, notes = ?, type = ?, priority = ?, status = ?, due_date = ?,
			completed_date = ?, owner_id = ?, customer_id = ?, visit_target_id = ?, external_owner_id = ?,
			external_owner_name = ?, external_contact_id = ?, external_company_id = ?,
			external_company_name = ?, external_company_domain = ?, provenance = ?, approval_status = ?,
			approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?, rejection_reason = ?,
			external_id = ?, last_synced_at = ?, last_sync_error = ?, updated_at = ?
		WHERE id = ?
	`, setArgs...)
	if err != nil {
		return wrapWriteErr(err)
	}

	return expectOneRow(result)
}

// RecordSync stores the outcome of pushing the task to the external CRM.
func (r *TasksRepository) RecordSync(ctx context.Context, id uuid.UUID, ref models.ExternalRef) error {
	return recordExternalRef(ctx, r.db, "tasks", id, ref)
}

// TouchSynced advances last_synced_at without changing updated_at.
func (r *TasksRepository) TouchSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return touchSynced(ctx, r.db, "tasks", id, at)
}

// ListForPush returns approved tasks that have never reached the external CRM
// or whose last push failed while associating.
func (r *TasksRepository) ListForPush(ctx context.Context, sel PushSelection) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE approval_status = 'approved'
		  AND ((? AND external_id IS NULL)
		    OR (? AND COALESCE(last_sync_error, '') LIKE '%association%'))
		ORDER BY updated_at
		LIMIT ?
	`, sel.MissingExternalRef, sel.RetryAssociation, limitOrDefault(sel.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks for push: %w", err)
	}

	return collectTasks(rows)
}

func (r *TasksRepository) List(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	where, args := taskWhere(filter)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY due_date LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return collectTasks(rows)
}

// CountDistinct counts the distinct non-null values of field among tasks
// matching filter. field must be one of the countable task columns.
func (r *TasksRepository) CountDistinct(ctx context.Context, field string, filter TaskFilter) (int, error) {
	if !countableTaskFields[field] {
		return 0, fmt.Errorf("cannot count distinct values of %q", field)
	}

	where, args := taskWhere(filter)
	var count int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(DISTINCT %s) FROM tasks %s
	`, field, where), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	return count, nil
}

func (r *TasksRepository) findOne(ctx context.Context, where string, args ...any) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+where, args...)
	return scanTask(row)
}

func taskWhere(filter TaskFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.ApprovalStatus != "" {
		conds = append(conds, "approval_status = ?")
		args = append(args, string(filter.ApprovalStatus))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.OwnerID != nil {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID.String())
	}
	if filter.CustomerID != nil {
		conds = append(conds, "customer_id = ?")
		args = append(args, filter.CustomerID.String())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func taskArgs(t *models.Task) []any {
	return []any{
		t.ID.String(),
		t.Title,
		nullString(t.Description),
		nullString(t.Notes),
		t.Type,
		t.Priority,
		t.Status,
		t.DueDate.UTC(),
		nullTime(t.CompletedDate),
		t.OwnerID.String(),
		nullUUID(t.CustomerID),
		nullUUID(t.VisitTargetID),
		nullString(t.ExternalOwnerID),
		nullString(t.ExternalOwnerName),
		nullString(t.ExternalContactID),
		nullString(t.ExternalCompanyID),
		nullString(t.ExternalCompanyName),
		nullString(t.ExternalCompanyDomain),
		nullString(string(t.Provenance)),
		string(t.Approval.Status),
		nullUUID(t.ApprovedBy),
		nullTime(t.ApprovedAt),
		nullUUID(t.RejectedBy),
		nullTime(t.RejectedAt),
		nullString(t.RejectionReason),
		nullString(t.ExternalID),
		nullTime(t.LastSyncedAt),
		nullString(t.LastSyncError),
		t.CreatedBy.String(),
		t.CreatedAt,
		t.UpdatedAt,
	}
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	defer func() { _ = rows.Close() }()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var id, ownerID, createdBy, approvalStatus string
	var description, notes, customerID, visitTargetID sql.NullString
	var extOwnerID, extOwnerName, extContactID, extCompanyID, extCompanyName, extCompanyDomain sql.NullString
	var provenance, approvedBy, rejectedBy, rejectionReason, externalID, syncError sql.NullString
	var completedDate, approvedAt, rejectedAt, lastSynced sql.NullTime

	err := row.Scan(&id, &t.Title, &description, &notes, &t.Type, &t.Priority, &t.Status, &t.DueDate,
		&completedDate, &ownerID, &customerID, &visitTargetID, &extOwnerID, &extOwnerName, &extContactID,
		&extCompanyID, &extCompanyName, &extCompanyDomain, &provenance,
		&approvalStatus, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &rejectionReason,
		&externalID, &lastSynced, &syncError, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse task id: %w", err)
	}
	if t.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("failed to parse task owner: %w", err)
	}
	if t.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return nil, fmt.Errorf("failed to parse task creator: %w", err)
	}

	t.DueDate = t.DueDate.UTC()
	t.Description = description.String
	t.Notes = notes.String
	t.CompletedDate = timePtr(completedDate)
	t.CustomerID = uuidPtr(customerID)
	t.VisitTargetID = uuidPtr(visitTargetID)
	t.ExternalOwnerID = extOwnerID.String
	t.ExternalOwnerName = extOwnerName.String
	t.ExternalContactID = extContactID.String
	t.ExternalCompanyID = extCompanyID.String
	t.ExternalCompanyName = extCompanyName.String
	t.ExternalCompanyDomain = extCompanyDomain.String
	t.Provenance = models.Provenance(provenance.String)
	t.Approval = scanApproval(approvalStatus, approvedBy, approvedAt, rejectedBy, rejectedAt, rejectionReason)
	t.ExternalRef = models.ExternalRef{
		ExternalID:    externalID.String,
		LastSyncedAt:  timePtr(lastSynced),
		LastSyncError: syncError.String,
	}

	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
