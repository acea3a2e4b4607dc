// ABOUTME: Customer database operations
// ABOUTME: Handles CRUD, lookup by external contact id or normalized email, and keyed upserts
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

const customerColumns = `id, name, email, email_normalized, phone, company_name, provenance,
	external_id, last_synced_at, last_sync_error, created_at, updated_at`

type CustomersRepository struct {
	db *sql.DB
}

func NewCustomersRepository(db *sql.DB) *CustomersRepository {
	return &CustomersRepository{db: db}
}

func (r *CustomersRepository) Create(ctx context.Context, c *models.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, customerArgs(c)...)

	return wrapWriteErr(err)
}

func (r *CustomersRepository) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return r.findOne(ctx, "id = ?", id.String())
}

func (r *CustomersRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Customer, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "external_id = ?", externalID)
}

// FindByEmail looks a customer up by its normalized email.
func (r *CustomersRepository) FindByEmail(ctx context.Context, normalized string) (*models.Customer, error) {
	if normalized == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "email_normalized = ?", normalized)
}

// UpsertByExternalID inserts the customer or, when a row with the same
// external id already exists, overwrites its synced fields. It returns the id
// of the stored row and whether it was newly created.
func (r *CustomersRepository) UpsertByExternalID(ctx context.Context, c *models.Customer) (uuid.UUID, bool, error) {
	if c.ExternalID == "" {
		return uuid.Nil, false, fmt.Errorf("upsert requires an external id")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	var storedID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			email_normalized = excluded.email_normalized,
			phone = excluded.phone,
			company_name = excluded.company_name,
			provenance = excluded.provenance,
			last_synced_at = excluded.last_synced_at,
			last_sync_error = excluded.last_sync_error,
			updated_at = excluded.updated_at
		RETURNING id
	`, customerArgs(c)...).Scan(&storedID)
	if err != nil {
		return uuid.Nil, false, wrapWriteErr(err)
	}

	id, err := uuid.Parse(storedID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to parse customer id: %w", err)
	}

	return id, id == c.ID, nil
}

// Update overwrites every mutable column of an existing customer.
func (r *CustomersRepository) Update(ctx context.Context, c *models.Customer) error {
	c.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET name = ?, email = ?, email_normalized = ?, phone = ?, company_name = ?, provenance = ?,
			external_id = ?, last_synced_at = ?, last_sync_error = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, nullString(c.Email), nullString(c.EmailNormalized), nullString(c.Phone), nullString(c.CompanyName),
		nullString(string(c.Provenance)), nullString(c.ExternalID), nullTime(c.LastSyncedAt),
		nullString(c.LastSyncError), c.UpdatedAt, c.ID.String())
	if err != nil {
		return wrapWriteErr(err)
	}

	return expectOneRow(result)
}

// RecordSync stores the outcome of pushing the customer as an external contact.
func (r *CustomersRepository) RecordSync(ctx context.Context, id uuid.UUID, ref models.ExternalRef) error {
	return recordExternalRef(ctx, r.db, "customers", id, ref)
}

// TouchSynced advances last_synced_at without changing anything else.
func (r *CustomersRepository) TouchSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return touchSynced(ctx, r.db, "customers", id, at)
}

func (r *CustomersRepository) List(ctx context.Context, limit int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+customerColumns+` FROM customers ORDER BY name LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var customers []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}

	return customers, rows.Err()
}

func (r *CustomersRepository) findOne(ctx context.Context, where string, args ...any) (*models.Customer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+where, args...)
	return scanCustomer(row)
}

func customerArgs(c *models.Customer) []any {
	return []any{
		c.ID.String(),
		c.Name,
		nullString(c.Email),
		nullString(c.EmailNormalized),
		nullString(c.Phone),
		nullString(c.CompanyName),
		nullString(string(c.Provenance)),
		nullString(c.ExternalID),
		nullTime(c.LastSyncedAt),
		nullString(c.LastSyncError),
		c.CreatedAt,
		c.UpdatedAt,
	}
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	var id string
	var email, emailNormalized, phone, companyName, provenance, externalID, syncError sql.NullString
	var lastSynced sql.NullTime

	err := row.Scan(&id, &c.Name, &email, &emailNormalized, &phone, &companyName, &provenance,
		&externalID, &lastSynced, &syncError, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse customer id: %w", err)
	}
	c.Email = email.String
	c.EmailNormalized = emailNormalized.String
	c.Phone = phone.String
	c.CompanyName = companyName.String
	c.Provenance = models.Provenance(provenance.String)
	c.ExternalID = externalID.String
	c.LastSyncedAt = timePtr(lastSynced)
	c.LastSyncError = syncError.String

	return &c, nil
}
