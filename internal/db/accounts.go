package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/madjor5/penny-pal/internal/types"
)

// StoreAccount inserts an account. Existing rows are left untouched so that a
// re-import never clobbers a previously computed embedding.
func (d *DB) StoreAccount(ctx context.Context, a types.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().In(d.timezone)
	}
	d.logger.Debug("Storing account", "id", a.ID, "name", a.Name)

	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (id, name, embedding, created_at)
		VALUES (?, ?, ?, ?)
	`, a.ID, a.Name, encodeVector(a.Embedding), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}
	return nil
}

// GetAccountByID retrieves a single account, returning ErrNotFound when it
// does not exist
func (d *DB) GetAccountByID(ctx context.Context, id string) (*types.Account, error) {
	var a types.Account
	var embedding []byte

	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, embedding, created_at FROM accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &embedding, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Embedding = decodeVector(embedding)
	return &a, nil
}

// GetAccounts returns all accounts ordered by name
func (d *DB) GetAccounts(ctx context.Context) ([]types.Account, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, embedding, created_at FROM accounts ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		var a types.Account
		var embedding []byte
		if err := rows.Scan(&a.ID, &a.Name, &embedding, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Embedding = decodeVector(embedding)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// SetAccountEmbedding stores an embedding for an account that does not have
// one yet. Embeddings are write-once; setting one on a row that already has a
// vector is a no-op.
func (d *DB) SetAccountEmbedding(ctx context.Context, id string, embedding []float32) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE accounts SET embedding = ? WHERE id = ? AND embedding IS NULL
	`, encodeVector(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to set account embedding: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		d.logger.Debug("Account embedding unchanged", "id", id)
	}
	return nil
}

// GetAccountsMissingEmbeddings returns accounts that have no embedding yet
func (d *DB) GetAccountsMissingEmbeddings(ctx context.Context) ([]types.Account, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM accounts WHERE embedding IS NULL ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		var a types.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}
