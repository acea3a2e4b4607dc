// ABOUTME: Shared bookkeeping for records mirrored in the external CRM
// ABOUTME: Writes external ids, last sync times and last sync errors across entity tables
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

// Entity names the local table a sync outcome belongs to.
type Entity string

const (
	EntityCustomer   Entity = "customer"
	EntityTask       Entity = "task"
	EntityVisit      Entity = "visit"
	EntitySubmission Entity = "submission"
)

var entityTables = map[Entity]string{
	EntityCustomer:   "customers",
	EntityTask:       "tasks",
	EntityVisit:      "visit_targets",
	EntitySubmission: "sales_submissions",
}

// TableFor returns the table backing an entity.
func TableFor(entity Entity) (string, error) {
	table, ok := entityTables[entity]
	if !ok {
		return "", fmt.Errorf("unknown entity %q", entity)
	}
	return table, nil
}

// SetSyncError records a sync failure on any syncable record without touching
// its external id. An empty message clears the error.
func SetSyncError(ctx context.Context, db *sql.DB, entity Entity, id uuid.UUID, message string) error {
	table, err := TableFor(entity)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET last_sync_error = ?, last_synced_at = ? WHERE id = ?
	`, table), nullString(message), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to set sync error: %w", err)
	}

	return expectOneRow(result)
}

func recordExternalRef(ctx context.Context, db *sql.DB, table string, id uuid.UUID, ref models.ExternalRef) error {
	syncedAt := ref.LastSyncedAt
	if syncedAt == nil {
		now := time.Now().UTC()
		syncedAt = &now
	}

	// COALESCE keeps a stored external id when the caller only has an error to report
	result, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET external_id = COALESCE(?, external_id), last_synced_at = ?, last_sync_error = ?
		WHERE id = ?
	`, table), nullString(ref.ExternalID), nullTime(syncedAt), nullString(ref.LastSyncError), id.String())
	if err != nil {
		return wrapWriteErr(err)
	}

	return expectOneRow(result)
}

func touchSynced(ctx context.Context, db *sql.DB, table string, id uuid.UUID, at time.Time) error {
	result, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET last_synced_at = ? WHERE id = ?
	`, table), at.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to touch %s: %w", table, err)
	}

	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
