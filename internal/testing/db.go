// Package testing provides testing utilities and helpers for the holdings service.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/holdings/internal/database"
)

// NewTestDB creates a temporary file-backed SQLite database with the embedded migrations applied.
// Returns the database instance and a cleanup function that closes the connection and removes the file.
//
// Supported names:
//   - "ledger" - portfolios, trading accounts, assets and transactions (ledger profile)
//   - "portfolio" - positions (standard profile)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary files keep tests isolated and exercise WAL like production does
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	profile := database.ProfileStandard
	if name == "ledger" {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			// Log error but don't fail test - cleanup should be idempotent
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, p := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			_ = os.Remove(p)
		}
	}
}

// NewMemoryDB opens an in-memory go-sqlite3 database with the named migration set applied.
// The pool is pinned to one connection so every query sees the same memory database.
// The connection is closed when the test ends.
func NewMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := database.ApplyMigrations(conn, name); err != nil {
		_ = conn.Close()
		t.Fatalf("Failed to migrate in-memory database %s: %v", name, err)
	}

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
