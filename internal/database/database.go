package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Initialize creates and returns a database connection
func Initialize(dbPath string, maxOpen, maxIdle int) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations
func Migrate(db *sql.DB) error {
	createEventsTable := `
	CREATE TABLE IF NOT EXISTS provisioning_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id VARCHAR(36) NOT NULL,
		device_mac VARCHAR(17),
		device_ip VARCHAR(45),
		event_type VARCHAR(50) NOT NULL,
		detail TEXT,
		success BOOLEAN DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(createEventsTable); err != nil {
		return fmt.Errorf("failed to create provisioning_events table: %w", err)
	}

	createSnapshotsTable := `
	CREATE TABLE IF NOT EXISTS inventory_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot TEXT NOT NULL,
		switch_count INTEGER NOT NULL,
		ap_count INTEGER NOT NULL,
		taken_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(createSnapshotsTable); err != nil {
		return fmt.Errorf("failed to create inventory_snapshots table: %w", err)
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_cycle ON provisioning_events(cycle_id);",
		"CREATE INDEX IF NOT EXISTS idx_events_mac ON provisioning_events(device_mac);",
		"CREATE INDEX IF NOT EXISTS idx_events_created ON provisioning_events(created_at);",
	}

	for _, index := range indices {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
