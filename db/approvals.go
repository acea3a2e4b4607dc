// ABOUTME: Approval column persistence shared by tasks, visit targets and submissions
// ABOUTME: Applies approval transitions guarded by the status they were decided from
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

// ErrStaleApproval means the record's approval status changed between read and write.
var ErrStaleApproval = errors.New("approval status changed concurrently")

// UpdateApproval writes the approval columns of a record, but only while its
// stored status still equals from.
func UpdateApproval(ctx context.Context, db *sql.DB, entity Entity, id uuid.UUID, from models.ApprovalStatus, a models.Approval) error {
	if entity == EntityCustomer {
		return fmt.Errorf("customers have no approval workflow")
	}
	table, err := TableFor(entity)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET approval_status = ?, approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
			rejection_reason = ?, updated_at = ?
		WHERE id = ? AND approval_status = ?
	`, table), string(a.Status), nullUUID(a.ApprovedBy), nullTime(a.ApprovedAt), nullUUID(a.RejectedBy),
		nullTime(a.RejectedAt), nullString(a.RejectionReason), time.Now().UTC(), id.String(), string(from))
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table), id.String()).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStaleApproval
}

func scanApproval(status string, approvedBy sql.NullString, approvedAt sql.NullTime,
	rejectedBy sql.NullString, rejectedAt sql.NullTime, reason sql.NullString) models.Approval {
	return models.Approval{
		Status:          models.ApprovalStatus(status),
		ApprovedBy:      uuidPtr(approvedBy),
		ApprovedAt:      timePtr(approvedAt),
		RejectedBy:      uuidPtr(rejectedBy),
		RejectedAt:      timePtr(rejectedAt),
		RejectionReason: reason.String,
	}
}
