package receipt

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/types"
)

// Reconstructor rebuilds full receipts from a stored transaction and its line
// items
type Reconstructor struct {
	logger *log.Logger
	db     *db.DB
}

// New creates a Reconstructor backed by the given database
func New(logger *log.Logger, database *db.DB) *Reconstructor {
	return &Reconstructor{
		logger: logger,
		db:     database,
	}
}

// Reconstruct returns the receipt for a transaction: the transaction itself,
// its line items in the order they were recorded, and a total summed from the
// absolute line item amounts. The total is computed from the items alone, so
// it can legitimately differ from the transaction amount when the statement
// rounds or nets things differently. Items named in highlightIDs are flagged
// so callers can point at the line a search matched. A missing transaction
// reports db.ErrNotFound.
func (r *Reconstructor) Reconstruct(ctx context.Context, transactionID string, highlightIDs ...string) (*types.Receipt, error) {
	tx, err := r.db.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	items, err := r.db.GetReceiptItems(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	highlight := make(map[string]bool, len(highlightIDs))
	for _, id := range highlightIDs {
		highlight[id] = true
	}

	receipt := &types.Receipt{
		Transaction: *tx,
		Items:       make([]types.ReceiptItem, 0, len(items)),
		Total:       decimal.Zero,
	}
	for _, item := range items {
		receipt.Total = receipt.Total.Add(item.Amount.Abs())
		receipt.Items = append(receipt.Items, types.ReceiptItem{
			ReceiptLineItem: item,
			Highlighted:     highlight[item.ID],
		})
	}

	r.logger.Debug("Reconstructed receipt",
		"transaction", transactionID,
		"items", len(receipt.Items),
		"total", receipt.Total)
	return receipt, nil
}
