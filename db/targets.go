// ABOUTME: Sales target database operations
// ABOUTME: Creates targets and credits or reverses approved sales against revenue progress exactly once
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

type TargetsRepository struct {
	db *sql.DB
}

func NewTargetsRepository(db *sql.DB) *TargetsRepository {
	return &TargetsRepository{db: db}
}

func (r *TargetsRepository) Create(ctx context.Context, t *models.SalesTarget) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("target ends before it starts")
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sales_targets (id, owner_id, type, target_value, current_progress, start_date, end_date, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID.String(), nullUUID(t.OwnerID), t.Type, t.TargetValue, t.CurrentProgress,
		t.StartDate.UTC(), t.EndDate.UTC(), t.Active, t.CreatedAt, t.UpdatedAt)

	return wrapWriteErr(err)
}

// CreditSale adds a submission's amount to every active revenue target whose
// window contains at. A submission is credited at most once until ReverseSale
// clears its mark. It returns how many targets moved and whether the credit
// was applied.
func (r *TargetsRepository) CreditSale(ctx context.Context, submissionID uuid.UUID, amount int64, at time.Time) (int64, bool, error) {
	return r.adjustRevenue(ctx, submissionID, amount, at, true)
}

// ReverseSale takes a credited submission's amount back out of the targets
// CreditSale added it to. Submissions that were never credited are left alone.
func (r *TargetsRepository) ReverseSale(ctx context.Context, submissionID uuid.UUID, amount int64, at time.Time) (int64, bool, error) {
	return r.adjustRevenue(ctx, submissionID, -amount, at, false)
}

// adjustRevenue flips the submission's credit mark and moves the revenue
// targets in one transaction.
func (r *TargetsRepository) adjustRevenue(ctx context.Context, submissionID uuid.UUID, delta int64, at time.Time, credit bool) (int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin revenue update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var marked sql.Result
	if credit {
		marked, err = tx.ExecContext(ctx, `
			UPDATE sales_submissions SET revenue_applied_at = ?
			WHERE id = ? AND revenue_applied_at IS NULL
		`, now, submissionID.String())
	} else {
		marked, err = tx.ExecContext(ctx, `
			UPDATE sales_submissions SET revenue_applied_at = NULL
			WHERE id = ? AND revenue_applied_at IS NOT NULL
		`, submissionID.String())
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to mark submission revenue: %w", err)
	}
	n, err := marked.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	at = at.UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE sales_targets
		SET current_progress = current_progress + ?, updated_at = ?
		WHERE active = 1 AND type = 'revenue' AND start_date <= ? AND end_date >= ?
	`, delta, now, at, at)
	if err != nil {
		return 0, false, fmt.Errorf("failed to update revenue progress: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit revenue update: %w", err)
	}
	return moved, true, nil
}

func (r *TargetsRepository) List(ctx context.Context, activeOnly bool) ([]models.SalesTarget, error) {
	query := `
		SELECT id, owner_id, type, target_value, current_progress, start_date, end_date, active, created_at, updated_at
		FROM sales_targets`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY start_date`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []models.SalesTarget
	for rows.Next() {
		var t models.SalesTarget
		var id string
		var ownerID sql.NullString
		if err := rows.Scan(&id, &ownerID, &t.Type, &t.TargetValue, &t.CurrentProgress,
			&t.StartDate, &t.EndDate, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse target id: %w", err)
		}
		t.OwnerID = uuidPtr(ownerID)
		targets = append(targets, t)
	}

	return targets, rows.Err()
}
