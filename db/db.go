// ABOUTME: Database connection management and initialization
// ABOUTME: Opens SQLite with WAL mode through a driver that understands REGEXP
package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"regexp"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// DriverName is the registered SQLite driver with the REGEXP function installed.
const DriverName = "sqlite3_fieldsync"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// X REGEXP Y calls regexp(Y, X)
			return conn.RegisterFunc("regexp", func(pattern, value string) (bool, error) {
				return regexp.MatchString(pattern, value)
			}, true)
		},
	})
}

func OpenDatabase(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Open database with WAL mode
	db, err := sql.Open(DriverName, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Configure connection pool for SQLite (avoid database locked errors)
	db.SetMaxOpenConns(1)

	// Initialize schema
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenMemory opens an initialized in-memory database. A single connection is
// kept so every caller sees the same database.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
