package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/madjor5/penny-pal/internal/types"
)

// StoreTransaction inserts a transaction. Existing rows are left untouched so
// that a re-import never clobbers a previously computed embedding.
func (d *DB) StoreTransaction(ctx context.Context, t types.Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().In(d.timezone)
	}
	d.logger.Debug("Storing transaction",
		"id", t.ID,
		"account_id", t.AccountID,
		"date", t.Date.Format("2006-01-02"),
		"amount", t.Amount,
		"merchant", t.Merchant)

	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, account_id, description, amount, category, merchant, date, embedding, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.AccountID, t.Description, t.Amount,
		nullString(t.Category), nullString(t.Merchant),
		t.Date.In(d.timezone), encodeVector(t.Embedding), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}
	return nil
}

// GetTransactionByID retrieves a single transaction, returning ErrNotFound
// when it does not exist
func (d *DB) GetTransactionByID(ctx context.Context, id string) (*types.Transaction, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, account_id, description, amount, category, merchant, date, embedding, created_at
		FROM transactions WHERE id = ?
	`, id)

	t, err := scanTransaction(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// GetTransactions returns all transactions, newest first. An empty accountID
// returns transactions for every account.
func (d *DB) GetTransactions(ctx context.Context, accountID string) ([]types.Transaction, error) {
	query := `
		SELECT id, account_id, description, amount, category, merchant, date, embedding, created_at
		FROM transactions
	`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY date DESC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// HasTransaction checks if a transaction exists in the database
func (d *DB) HasTransaction(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE id = ?)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// CountTransactions returns the number of transactions in the database
func (d *DB) CountTransactions(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SetTransactionEmbedding stores an embedding for a transaction that does not
// have one yet. Embeddings are write-once; rows with a vector are untouched.
func (d *DB) SetTransactionEmbedding(ctx context.Context, id string, embedding []float32) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE transactions SET embedding = ? WHERE id = ? AND embedding IS NULL
	`, encodeVector(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to set transaction embedding: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		d.logger.Debug("Transaction embedding unchanged", "id", id)
	}
	return nil
}

// GetTransactionsMissingEmbeddings returns transactions that have no
// embedding yet
func (d *DB) GetTransactionsMissingEmbeddings(ctx context.Context) ([]types.Transaction, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, account_id, description, amount, category, merchant, date, embedding, created_at
		FROM transactions WHERE embedding IS NULL ORDER BY date DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// scanTransaction reads one transaction row from a Scan-style function
func scanTransaction(scan func(dest ...any) error) (*types.Transaction, error) {
	var t types.Transaction
	var category, merchant sql.NullString
	var embedding []byte

	if err := scan(
		&t.ID, &t.AccountID, &t.Description, &t.Amount,
		&category, &merchant, &t.Date, &embedding, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Category = category.String
	t.Merchant = merchant.String
	t.Embedding = decodeVector(embedding)
	return &t, nil
}

// nullString maps the empty string to NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
