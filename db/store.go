// ABOUTME: Aggregate of all repositories over one database handle
// ABOUTME: Gives sync, approval and surfaces a single value to pass around
package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

type Store struct {
	DB          *sql.DB
	Actors      *ActorsRepository
	Customers   *CustomersRepository
	Tasks       *TasksRepository
	Visits      *VisitTargetsRepository
	Submissions *SubmissionsRepository
	Targets     *TargetsRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:          db,
		Actors:      NewActorsRepository(db),
		Customers:   NewCustomersRepository(db),
		Tasks:       NewTasksRepository(db),
		Visits:      NewVisitTargetsRepository(db),
		Submissions: NewSubmissionsRepository(db),
		Targets:     NewTargetsRepository(db),
	}
}

// SetSyncError records a sync failure on the given record.
func (s *Store) SetSyncError(ctx context.Context, entity Entity, id uuid.UUID, message string) error {
	return SetSyncError(ctx, s.DB, entity, id, message)
}

// UpdateApproval writes an approval transition decided from status from.
func (s *Store) UpdateApproval(ctx context.Context, entity Entity, id uuid.UUID, from models.ApprovalStatus, a models.Approval) error {
	return UpdateApproval(ctx, s.DB, entity, id, from, a)
}

func (s *Store) Close() error {
	return s.DB.Close()
}
