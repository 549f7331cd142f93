package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const dbFileName = "collector.db"

// DB wraps the sqlite connection together with the data root it lives under.
// The data root can change at runtime (user picks a new directory); Reopen
// swaps the underlying connection, so callers must not hold on to the raw
// *sql.DB across calls.
type DB struct {
	mu      sync.Mutex
	sqlDB   *sql.DB
	dataDir string
}

// Open opens (creating if necessary) the sqlite database under dataDir and
// applies schema migrations and one-time data fix-ups.
func Open(dataDir string) (*DB, error) {
	sqlDB, err := openAt(dataDir)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB: sqlDB, dataDir: dataDir}

	if _, _, err := RunMigrations(db); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := RunFixups(db); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

func openAt(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: the collection pipeline is strictly sequential and
	// sqlite write concurrency is not needed.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return sqlDB, nil
}

// Reopen closes the current connection and opens the database under the new
// data root, migrating the fresh database if it does not exist yet.
func (d *DB) Reopen(dataDir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dataDir == d.dataDir {
		return nil
	}

	sqlDB, err := openAt(dataDir)
	if err != nil {
		return err
	}

	old := d.sqlDB
	d.sqlDB = sqlDB
	d.dataDir = dataDir

	if old != nil {
		old.Close()
	}

	if _, _, err := RunMigrations(d); err != nil {
		return err
	}
	return RunFixups(d)
}

// DataDir returns the data root the database currently lives under.
func (d *DB) DataDir() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dataDir
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sqlDB == nil {
		return nil
	}
	err := d.sqlDB.Close()
	d.sqlDB = nil
	return err
}

// conn returns the current underlying connection. Repositories go through
// this accessor instead of caching the *sql.DB so Reopen takes effect.
func (d *DB) conn() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sqlDB
}
