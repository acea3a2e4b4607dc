// ABOUTME: Sales submission database operations
// ABOUTME: Stores reported sales with approval state and selects approved ones for pushing as orders
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

const submissionColumns = `id, customer_id, owner_id, amount_cents, currency, sales_date, description, provenance,
	approval_status, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	external_id, last_synced_at, last_sync_error, created_by, created_at, updated_at`

type SubmissionsRepository struct {
	db *sql.DB
}

func NewSubmissionsRepository(db *sql.DB) *SubmissionsRepository {
	return &SubmissionsRepository{db: db}
}

func (r *SubmissionsRepository) Create(ctx context.Context, s *models.SalesSubmission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	s.Currency = strings.ToUpper(s.Currency)
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sales_submissions (`+submissionColumns+`) VALUES (`+placeholders(20)+`)
	`, s.ID.String(), nullUUID(s.CustomerID), s.OwnerID.String(), s.AmountCents, s.Currency, s.SalesDate.UTC(),
		nullString(s.Description), nullString(string(s.Provenance)),
		string(s.Approval.Status), nullUUID(s.ApprovedBy), nullTime(s.ApprovedAt), nullUUID(s.RejectedBy),
		nullTime(s.RejectedAt), nullString(s.RejectionReason),
		nullString(s.ExternalID), nullTime(s.LastSyncedAt), nullString(s.LastSyncError),
		s.CreatedBy.String(), s.CreatedAt, s.UpdatedAt)

	return wrapWriteErr(err)
}

func (r *SubmissionsRepository) Get(ctx context.Context, id uuid.UUID) (*models.SalesSubmission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM sales_submissions WHERE id = ?`, id.String())
	return scanSubmission(row)
}

func (r *SubmissionsRepository) FindByExternalID(ctx context.Context, externalID string) (*models.SalesSubmission, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM sales_submissions WHERE external_id = ?`, externalID)
	return scanSubmission(row)
}

func (r *SubmissionsRepository) RecordSync(ctx context.Context, id uuid.UUID, ref models.ExternalRef) error {
	return recordExternalRef(ctx, r.db, "sales_submissions", id, ref)
}

// ListForPush mirrors TasksRepository.ListForPush for submissions.
func (r *SubmissionsRepository) ListForPush(ctx context.Context, sel PushSelection) ([]models.SalesSubmission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM sales_submissions
		WHERE approval_status = 'approved'
		  AND ((? AND external_id IS NULL)
		    OR (? AND COALESCE(last_sync_error, '') LIKE '%association%'))
		ORDER BY updated_at
		LIMIT ?
	`, sel.MissingExternalRef, sel.RetryAssociation, limitOrDefault(sel.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to select submissions for push: %w", err)
	}

	return collectSubmissions(rows)
}

func (r *SubmissionsRepository) List(ctx context.Context, status models.ApprovalStatus, limit int) ([]models.SalesSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM sales_submissions`
	var args []any
	if status != "" {
		query += ` WHERE approval_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY sales_date DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	return collectSubmissions(rows)
}

func collectSubmissions(rows *sql.Rows) ([]models.SalesSubmission, error) {
	defer func() { _ = rows.Close() }()

	var submissions []models.SalesSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *s)
	}

	return submissions, rows.Err()
}

func scanSubmission(row rowScanner) (*models.SalesSubmission, error) {
	var s models.SalesSubmission
	var id, ownerID, createdBy, approvalStatus string
	var customerID, description, provenance sql.NullString
	var approvedBy, rejectedBy, rejectionReason, externalID, syncError sql.NullString
	var approvedAt, rejectedAt, lastSynced sql.NullTime

	err := row.Scan(&id, &customerID, &ownerID, &s.AmountCents, &s.Currency, &s.SalesDate, &description,
		&provenance, &approvalStatus, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &rejectionReason,
		&externalID, &lastSynced, &syncError, &createdBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse submission id: %w", err)
	}
	if s.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("failed to parse submission owner: %w", err)
	}
	if s.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return nil, fmt.Errorf("failed to parse submission creator: %w", err)
	}

	s.SalesDate = s.SalesDate.UTC()
	s.CustomerID = uuidPtr(customerID)
	s.Description = description.String
	s.Provenance = models.Provenance(provenance.String)
	s.Approval = scanApproval(approvalStatus, approvedBy, approvedAt, rejectedBy, rejectedAt, rejectionReason)
	s.ExternalRef = models.ExternalRef{
		ExternalID:    externalID.String,
		LastSyncedAt:  timePtr(lastSynced),
		LastSyncError: syncError.String,
	}

	return &s, nil
}
