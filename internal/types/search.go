package types

import "github.com/shopspring/decimal"

// ItemMatch represents a line item returned by semantic search along with its
// cosine similarity to the query, kept for display and debugging
type ItemMatch struct {
	ItemWithTransaction
	Similarity float64 `json:"similarity"`
}

// ReceiptItem is a line item as presented on a reconstructed receipt.
// Highlighted marks the item a search matched on, so callers can distinguish
// it from its siblings.
type ReceiptItem struct {
	ReceiptLineItem
	Highlighted bool `json:"highlighted,omitempty"`
}

// Receipt is a fully reconstructed receipt: the transaction, its line items in
// entry order, and a total computed from the items themselves (which may
// differ from the transaction amount due to real-world rounding).
type Receipt struct {
	Transaction Transaction     `json:"transaction"`
	Items       []ReceiptItem   `json:"items"`
	Total       decimal.Decimal `json:"total"`
}
