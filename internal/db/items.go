package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/madjor5/penny-pal/internal/types"
)

// StoreReceiptItem inserts a receipt line item. Existing rows are left
// untouched so that a re-import never clobbers a previously computed
// embedding.
func (d *DB) StoreReceiptItem(ctx context.Context, item types.ReceiptLineItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().In(d.timezone)
	}
	d.logger.Debug("Storing receipt item",
		"id", item.ID,
		"transaction_id", item.TransactionID,
		"description", item.Description,
		"amount", item.Amount)

	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO receipt_items (
			id, transaction_id, description, amount, category, embedding, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID, item.TransactionID, item.Description, item.Amount,
		nullString(item.Category), encodeVector(item.Embedding), item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store receipt item: %w", err)
	}
	return nil
}

// GetReceiptItems returns all line items for a transaction in entry order:
// ascending creation time, with ID as the final tie-break
func (d *DB) GetReceiptItems(ctx context.Context, transactionID string) ([]types.ReceiptLineItem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, transaction_id, description, amount, category, embedding, created_at
		FROM receipt_items
		WHERE transaction_id = ?
		ORDER BY created_at ASC, id ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// GetItemsWithTransactions returns every receipt line item joined with its
// transaction. An empty accountID returns items for every account. This is
// the snapshot the semantic index is built from on each search.
func (d *DB) GetItemsWithTransactions(ctx context.Context, accountID string) ([]types.ItemWithTransaction, error) {
	query := itemWithTransactionSelect
	var args []any
	if accountID != "" {
		query += ` WHERE t.account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY i.created_at ASC, i.id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	return collectItemsWithTransactions(rows)
}

// GetItemsWithTransactionsByIDs returns the given line items joined with
// their transactions, in no particular order
func (d *DB) GetItemsWithTransactionsByIDs(ctx context.Context, ids []string) ([]types.ItemWithTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := itemWithTransactionSelect + ` WHERE i.id IN (` + placeholders + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	return collectItemsWithTransactions(rows)
}

// SetReceiptItemEmbedding stores an embedding for a line item that does not
// have one yet. Embeddings are write-once; rows with a vector are untouched.
func (d *DB) SetReceiptItemEmbedding(ctx context.Context, id string, embedding []float32) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE receipt_items SET embedding = ? WHERE id = ? AND embedding IS NULL
	`, encodeVector(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to set receipt item embedding: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		d.logger.Debug("Receipt item embedding unchanged", "id", id)
	}
	return nil
}

// GetReceiptItemsMissingEmbeddings returns line items that have no embedding
// yet
func (d *DB) GetReceiptItemsMissingEmbeddings(ctx context.Context) ([]types.ReceiptLineItem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, transaction_id, description, amount, category, embedding, created_at
		FROM receipt_items WHERE embedding IS NULL ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// CountReceiptItems returns the number of receipt line items in the database
func (d *DB) CountReceiptItems(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipt_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count receipt items: %w", err)
	}
	return count, nil
}

const itemWithTransactionSelect = `
	SELECT i.id, i.transaction_id, i.description, i.amount, i.category, i.embedding, i.created_at,
		t.id, t.account_id, t.description, t.amount, t.category, t.merchant, t.date, t.created_at
	FROM receipt_items i
	JOIN transactions t ON t.id = i.transaction_id
`

func collectItems(rows *sql.Rows) ([]types.ReceiptLineItem, error) {
	var items []types.ReceiptLineItem
	for rows.Next() {
		var item types.ReceiptLineItem
		var category sql.NullString
		var embedding []byte
		if err := rows.Scan(
			&item.ID, &item.TransactionID, &item.Description, &item.Amount,
			&category, &embedding, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt item: %w", err)
		}
		item.Category = category.String
		item.Embedding = decodeVector(embedding)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt items: %w", err)
	}
	return items, nil
}

func collectItemsWithTransactions(rows *sql.Rows) ([]types.ItemWithTransaction, error) {
	var items []types.ItemWithTransaction
	for rows.Next() {
		var item types.ItemWithTransaction
		var itemCategory, txCategory, merchant sql.NullString
		var embedding []byte
		if err := rows.Scan(
			&item.ID, &item.TransactionID, &item.Description, &item.Amount,
			&itemCategory, &embedding, &item.CreatedAt,
			&item.Transaction.ID, &item.Transaction.AccountID, &item.Transaction.Description,
			&item.Transaction.Amount, &txCategory, &merchant,
			&item.Transaction.Date, &item.Transaction.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item with transaction: %w", err)
		}
		item.Category = itemCategory.String
		item.Embedding = decodeVector(embedding)
		item.Transaction.Category = txCategory.String
		item.Transaction.Merchant = merchant.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
