// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation, sparse unique indexes and sync bookkeeping tables
package db

import (
	"database/sql"
	"fmt"
)

// external_id, email_normalized and external_contact_id hold NULL rather than
// an empty string so their UNIQUE indexes stay sparse.
const schema = `
CREATE TABLE IF NOT EXISTS actors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'rep' CHECK(role IN ('rep', 'manager', 'admin')),
	created_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_actors_email ON actors(email COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	email_normalized TEXT,
	phone TEXT,
	company_name TEXT,
	provenance TEXT,
	external_id TEXT,
	last_synced_at DATETIME,
	last_sync_error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email_normalized ON customers(email_normalized);
CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_external_id ON customers(external_id);

CREATE TABLE IF NOT EXISTS visit_targets (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	customer_id TEXT,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'in_progress', 'completed', 'cancelled')),
	visit_date DATETIME NOT NULL,
	latitude REAL,
	longitude REAL,
	address TEXT,
	notes TEXT,
	approval_status TEXT NOT NULL DEFAULT 'pending' CHECK(approval_status IN ('pending', 'approved', 'rejected')),
	approved_by TEXT,
	approved_at DATETIME,
	rejected_by TEXT,
	rejected_at DATETIME,
	rejection_reason TEXT,
	external_id TEXT,
	last_synced_at DATETIME,
	last_sync_error TEXT,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (customer_id) REFERENCES customers(id)
);

CREATE INDEX IF NOT EXISTS idx_visit_targets_approval ON visit_targets(approval_status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_visit_targets_external_id ON visit_targets(external_id);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	notes TEXT,
	type TEXT NOT NULL CHECK(type IN ('call', 'visit', 'email', 'quote_follow_up', 'sample_feedback', 'order_check')),
	priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low', 'medium', 'high', 'urgent')),
	status TEXT NOT NULL CHECK(status IN ('overdue', 'today', 'upcoming', 'completed')),
	due_date DATETIME NOT NULL,
	completed_date DATETIME,
	owner_id TEXT NOT NULL,
	customer_id TEXT,
	visit_target_id TEXT,
	external_owner_id TEXT,
	external_owner_name TEXT,
	external_contact_id TEXT,
	external_company_id TEXT,
	external_company_name TEXT,
	external_company_domain TEXT,
	provenance TEXT,
	approval_status TEXT NOT NULL DEFAULT 'pending' CHECK(approval_status IN ('pending', 'approved', 'rejected')),
	approved_by TEXT,
	approved_at DATETIME,
	rejected_by TEXT,
	rejected_at DATETIME,
	rejection_reason TEXT,
	external_id TEXT,
	last_synced_at DATETIME,
	last_sync_error TEXT,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (customer_id) REFERENCES customers(id),
	FOREIGN KEY (visit_target_id) REFERENCES visit_targets(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_external_id ON tasks(external_id);
DROP INDEX IF EXISTS idx_tasks_visit_companion;
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_visit_companion_task ON tasks(visit_target_id) WHERE type = 'visit';
CREATE INDEX IF NOT EXISTS idx_tasks_approval ON tasks(approval_status);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);

CREATE TABLE IF NOT EXISTS sales_submissions (
	id TEXT PRIMARY KEY,
	customer_id TEXT,
	owner_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	sales_date DATETIME NOT NULL,
	description TEXT,
	provenance TEXT,
	approval_status TEXT NOT NULL DEFAULT 'pending' CHECK(approval_status IN ('pending', 'approved', 'rejected')),
	approved_by TEXT,
	approved_at DATETIME,
	rejected_by TEXT,
	rejected_at DATETIME,
	rejection_reason TEXT,
	external_id TEXT,
	last_synced_at DATETIME,
	last_sync_error TEXT,
	revenue_applied_at DATETIME,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (customer_id) REFERENCES customers(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_submissions_external_id ON sales_submissions(external_id);
CREATE INDEX IF NOT EXISTS idx_sales_submissions_approval ON sales_submissions(approval_status);

CREATE TABLE IF NOT EXISTS sales_targets (
	id TEXT PRIMARY KEY,
	owner_id TEXT,
	type TEXT NOT NULL CHECK(type IN ('revenue', 'visits', 'orders')),
	target_value INTEGER NOT NULL,
	current_progress INTEGER NOT NULL DEFAULT 0,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_targets_window ON sales_targets(type, active, start_date, end_date);

CREATE TABLE IF NOT EXISTS sync_state (
	service TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	status TEXT CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	direction TEXT NOT NULL CHECK(direction IN ('pull', 'push')),
	entity TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	fetched INTEGER NOT NULL DEFAULT 0,
	created INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);
`

// addedColumns are columns introduced after a table first shipped.
var addedColumns = []struct {
	table, column, decl string
}{
	{"sales_submissions", "revenue_applied_at", "DATETIME"},
}

func InitSchema(db *sql.DB) error {
	for _, c := range addedColumns {
		if err := addColumnIfMissing(db, c.table, c.column, c.decl); err != nil {
			return err
		}
	}
	_, err := db.Exec(schema)
	return err
}

// addColumnIfMissing upgrades a table created by an older schema. Tables that
// do not exist yet are left to the CREATE statements.
func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&tables); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if tables == 0 {
		return nil
	}

	var columns int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&columns); err != nil {
		return fmt.Errorf("failed to inspect %s columns: %w", table, err)
	}
	if columns > 0 {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}
