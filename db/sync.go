// ABOUTME: Database operations for sync_state and sync_runs tables
// ABOUTME: Tracks per-service sync status and per-pass counters identified by ULIDs
package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/fieldsync/models"
	"github.com/oklog/ulid/v2"
)

// GetSyncState retrieves the sync state for a service. It returns nil when the
// service has never synced.
func GetSyncState(ctx context.Context, db *sql.DB, service string) (*models.SyncState, error) {
	row := db.QueryRowContext(ctx, `
		SELECT service, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		WHERE service = ?
	`, service)

	state, err := scanSyncState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	return state, nil
}

// UpdateSyncStatus updates the sync status for a service.
func UpdateSyncStatus(ctx context.Context, db *sql.DB, service, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (service, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, service, status, errorMsgVal, now, now)

	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// MarkSynced records a successful pass for a service and returns it to idle.
func MarkSynced(ctx context.Context, db *sql.DB, service string, at time.Time) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (service, last_sync_time, status, created_at, updated_at)
		VALUES (?, ?, 'idle', ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			last_sync_time = excluded.last_sync_time,
			status = 'idle',
			error_message = NULL,
			updated_at = excluded.updated_at
	`, service, at.UTC(), now, now)

	if err != nil {
		return fmt.Errorf("failed to mark sync complete: %w", err)
	}

	return nil
}

// GetAllSyncStates retrieves the sync state for all services.
func GetAllSyncStates(ctx context.Context, db *sql.DB) ([]models.SyncState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT service, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, *state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}

	return states, nil
}

func scanSyncState(row rowScanner) (*models.SyncState, error) {
	var state models.SyncState
	var lastSyncTime sql.NullTime
	var status, errorMessage sql.NullString

	if err := row.Scan(&state.Service, &lastSyncTime, &status, &errorMessage, &state.CreatedAt, &state.UpdatedAt); err != nil {
		return nil, err
	}

	state.LastSyncTime = timePtr(lastSyncTime)
	state.Status = status.String
	state.ErrorMessage = errorMessage.String

	return &state, nil
}

// StartSyncRun opens a bookkeeping row for a pass.
func StartSyncRun(ctx context.Context, db *sql.DB, direction, entity string) (*models.SyncRun, error) {
	now := time.Now().UTC()
	run := &models.SyncRun{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Direction: direction,
		Entity:    entity,
		StartedAt: now,
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, direction, entity, started_at) VALUES (?, ?, ?, ?)
	`, run.ID, run.Direction, run.Entity, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}

	return run, nil
}

// FinishSyncRun stores the final counters of a pass.
func FinishSyncRun(ctx context.Context, db *sql.DB, run *models.SyncRun) error {
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	_, err := db.ExecContext(ctx, `
		UPDATE sync_runs
		SET finished_at = ?, fetched = ?, created = ?, updated = ?, skipped = ?, failed = ?
		WHERE id = ?
	`, finished, run.Fetched, run.Created, run.Updated, run.Skipped, run.Failed, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// ListSyncRuns returns the most recent passes, newest first.
func ListSyncRuns(ctx context.Context, db *sql.DB, limit int) ([]models.SyncRun, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, direction, entity, started_at, finished_at, fetched, created, updated, skipped, failed
		FROM sync_runs
		ORDER BY id DESC
		LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Direction, &run.Entity, &run.StartedAt, &finished,
			&run.Fetched, &run.Created, &run.Updated, &run.Skipped, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.FinishedAt = timePtr(finished)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
