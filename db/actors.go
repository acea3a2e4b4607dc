// ABOUTME: Actor database operations
// ABOUTME: Creates local actors and matches them by escaped, case-insensitive exact patterns
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

// ActorsRepository provides access to local actors (sales reps, managers, admins).
type ActorsRepository struct {
	db *sql.DB
}

func NewActorsRepository(db *sql.DB) *ActorsRepository {
	return &ActorsRepository{db: db}
}

func (r *ActorsRepository) Create(ctx context.Context, actor *models.Actor) error {
	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}
	if actor.Role == "" {
		actor.Role = models.RoleRep
	}
	actor.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO actors (id, name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, actor.ID.String(), actor.Name, strings.TrimSpace(actor.Email), actor.Role, actor.CreatedAt)

	return wrapWriteErr(err)
}

func (r *ActorsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, created_at FROM actors WHERE id = ?
	`, id.String())
	return scanActor(row)
}

// FindByEmail returns the actor whose email equals email, ignoring case.
func (r *ActorsRepository) FindByEmail(ctx context.Context, email string) (*models.Actor, error) {
	return r.matchColumn(ctx, "email", email)
}

// FindByName returns the actor whose display name equals name, ignoring case.
func (r *ActorsRepository) FindByName(ctx context.Context, name string) (*models.Actor, error) {
	return r.matchColumn(ctx, "name", name)
}

func (r *ActorsRepository) matchColumn(ctx context.Context, column, value string) (*models.Actor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNotFound
	}

	// column is one of two constants chosen above, never caller input
	query := fmt.Sprintf(`
		SELECT id, name, email, role, created_at FROM actors
		WHERE COALESCE(%s, '') REGEXP ?
		ORDER BY created_at
		LIMIT 1
	`, column)

	return scanActor(r.db.QueryRowContext(ctx, query, ExactFoldPattern(value)))
}

func (r *ActorsRepository) List(ctx context.Context) ([]models.Actor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, role, created_at FROM actors ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actors []models.Actor
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, *actor)
	}

	return actors, rows.Err()
}

// ExactFoldPattern builds an anchored, case-insensitive pattern that matches
// value literally. Values come from the external CRM and must not be able to
// inject pattern syntax.
func ExactFoldPattern(value string) string {
	return `(?i)^` + regexp.QuoteMeta(value) + `$`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (*models.Actor, error) {
	var actor models.Actor
	var id string

	err := row.Scan(&id, &actor.Name, &actor.Email, &actor.Role, &actor.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan actor: %w", err)
	}

	actor.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse actor id: %w", err)
	}

	return &actor, nil
}
