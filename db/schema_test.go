// ABOUTME: Tests for database schema creation
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestInitSchema(t *testing.T) {
	db := setupTestDB(t)

	tables := []string{"actors", "customers", "visit_targets", "tasks", "sales_submissions", "sales_targets", "sync_state", "sync_runs"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{
		"idx_customers_email_normalized",
		"idx_customers_external_id",
		"idx_tasks_external_id",
		"idx_tasks_visit_companion_task",
		"idx_sales_submissions_external_id",
	}
	for _, idx := range indexes {
		var indexName string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&indexName)
		if err != nil {
			t.Errorf("Index %s not found: %v", idx, err)
		}
	}
}

func TestInitSchemaIsRepeatable(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, InitSchema(db))
}

func TestRegexpFunction(t *testing.T) {
	db := setupTestDB(t)

	var matched bool
	require.NoError(t, db.QueryRow(`SELECT 'Alice@Example.com' REGEXP ?`, ExactFoldPattern("alice@example.com")).Scan(&matched))
	require.True(t, matched)

	require.NoError(t, db.QueryRow(`SELECT 'aliceXexample.com' REGEXP ?`, ExactFoldPattern("alice.example.com")).Scan(&matched))
	require.False(t, matched, "metacharacters in the value must match literally")
}
