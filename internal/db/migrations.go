package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration. Each migration has a
// unique ID and an Up function that applies it; a migration runs at most once
// per database.
type Migration struct {
	ID int
	Up func(db *sql.DB) error
}

// migrations is the ordered list of all migrations. Append new entries with
// the next ID; never renumber or remove applied ones.
var migrations = []Migration{
	{
		ID: 1,
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant)`)
			return err
		},
	},
}

// applyMigrations applies all pending migrations to the database
func (d *DB) applyMigrations() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := d.db.Query(`SELECT id FROM migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan migration id: %w", err)
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		d.logger.Info("Applying migration", "id", m.ID)
		if err := m.Up(d.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.ID, err)
		}
		if _, err := d.db.Exec(`INSERT INTO migrations (id) VALUES (?)`, m.ID); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.ID, err)
		}
	}

	return nil
}
