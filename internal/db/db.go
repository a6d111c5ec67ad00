package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// DB represents a SQLite database connection holding accounts, transactions
// and receipt line items
type DB struct {
	db       *sql.DB
	logger   *log.Logger
	timezone *time.Location
}

// New creates a new database connection, creating the schema and applying any
// pending migrations
func New(dataDir string, logger *log.Logger, timezone *time.Location) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "penny-pal.db")
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	if err := createTables(conn); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	d := &DB{
		db:       conn,
		logger:   logger,
		timezone: timezone,
	}

	if err := d.applyMigrations(); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return d, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			embedding BLOB,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			description TEXT NOT NULL,
			amount DECIMAL(15,2) NOT NULL,
			category TEXT,
			merchant TEXT,
			date DATE NOT NULL,
			embedding BLOB,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS receipt_items (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL REFERENCES transactions(id),
			description TEXT NOT NULL,
			amount DECIMAL(15,2) NOT NULL,
			category TEXT,
			embedding BLOB,
			created_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)",
		"CREATE INDEX IF NOT EXISTS idx_receipt_items_transaction ON receipt_items(transaction_id)",
		"CREATE INDEX IF NOT EXISTS idx_receipt_items_created ON receipt_items(created_at)",
	}
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// DB returns the underlying database connection
func (d *DB) DB() *sql.DB {
	return d.db
}

// GenerateAccountID creates a deterministic ID from the account name
func GenerateAccountID(name string) string {
	h := sha256.Sum256([]byte(name))
	return hex.EncodeToString(h[:])[:8]
}

// GenerateTransactionID creates a deterministic ID from the fields that
// identify a transaction, so re-importing the same export is a no-op
func GenerateTransactionID(accountID string, date time.Time, merchant, description string, amount decimal.Decimal) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", accountID, date.Format("2006-01-02"), merchant, description, amount.String())
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// GenerateReceiptItemID creates a deterministic ID for the position-th line
// item of a transaction
func GenerateReceiptItemID(transactionID string, position int, description string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s", transactionID, position, description)
	return hex.EncodeToString(h.Sum(nil))[:8]
}
