// ABOUTME: Visit target database operations
// ABOUTME: Stores planned customer visits with their approval and sync state
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

const visitColumns = `id, title, customer_id, owner_id, status, visit_date, latitude, longitude, address, notes,
	approval_status, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	external_id, last_synced_at, last_sync_error, created_by, created_at, updated_at`

type VisitTargetsRepository struct {
	db *sql.DB
}

func NewVisitTargetsRepository(db *sql.DB) *VisitTargetsRepository {
	return &VisitTargetsRepository{db: db}
}

func (r *VisitTargetsRepository) Create(ctx context.Context, v *models.VisitTarget) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = models.VisitStatusPending
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO visit_targets (`+visitColumns+`) VALUES (`+placeholders(22)+`)
	`, v.ID.String(), v.Title, nullUUID(v.CustomerID), v.OwnerID.String(), v.Status, v.VisitDate.UTC(),
		v.Latitude, v.Longitude, nullString(v.Address), nullString(v.Notes),
		string(v.Approval.Status), nullUUID(v.ApprovedBy), nullTime(v.ApprovedAt), nullUUID(v.RejectedBy),
		nullTime(v.RejectedAt), nullString(v.RejectionReason),
		nullString(v.ExternalID), nullTime(v.LastSyncedAt), nullString(v.LastSyncError),
		v.CreatedBy.String(), v.CreatedAt, v.UpdatedAt)

	return wrapWriteErr(err)
}

func (r *VisitTargetsRepository) Get(ctx context.Context, id uuid.UUID) (*models.VisitTarget, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visit_targets WHERE id = ?`, id.String())
	return scanVisitTarget(row)
}

// UpdateStatus moves a visit through pending, in_progress, completed or cancelled.
func (r *VisitTargetsRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE visit_targets SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update visit status: %w", err)
	}
	return expectOneRow(result)
}

func (r *VisitTargetsRepository) RecordSync(ctx context.Context, id uuid.UUID, ref models.ExternalRef) error {
	return recordExternalRef(ctx, r.db, "visit_targets", id, ref)
}

func (r *VisitTargetsRepository) List(ctx context.Context, status models.ApprovalStatus, limit int) ([]models.VisitTarget, error) {
	query := `SELECT ` + visitColumns + ` FROM visit_targets`
	var args []any
	if status != "" {
		query += ` WHERE approval_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY visit_date LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list visit targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var visits []models.VisitTarget
	for rows.Next() {
		v, err := scanVisitTarget(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}

	return visits, rows.Err()
}

func scanVisitTarget(row rowScanner) (*models.VisitTarget, error) {
	var v models.VisitTarget
	var id, ownerID, createdBy, approvalStatus string
	var customerID, address, notes sql.NullString
	var latitude, longitude sql.NullFloat64
	var approvedBy, rejectedBy, rejectionReason, externalID, syncError sql.NullString
	var approvedAt, rejectedAt, lastSynced sql.NullTime

	err := row.Scan(&id, &v.Title, &customerID, &ownerID, &v.Status, &v.VisitDate, &latitude, &longitude,
		&address, &notes, &approvalStatus, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt,
		&rejectionReason, &externalID, &lastSynced, &syncError, &createdBy, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan visit target: %w", err)
	}

	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse visit target id: %w", err)
	}
	if v.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("failed to parse visit owner: %w", err)
	}
	if v.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return nil, fmt.Errorf("failed to parse visit creator: %w", err)
	}

	v.VisitDate = v.VisitDate.UTC()
	v.CustomerID = uuidPtr(customerID)
	v.Latitude = latitude.Float64
	v.Longitude = longitude.Float64
	v.Address = address.String
	v.Notes = notes.String
	v.Approval = scanApproval(approvalStatus, approvedBy, approvedAt, rejectedBy, rejectedAt, rejectionReason)
	v.ExternalRef = models.ExternalRef{
		ExternalID:    externalID.String,
		LastSyncedAt:  timePtr(lastSynced),
		LastSyncError: syncError.String,
	}

	return &v, nil
}
