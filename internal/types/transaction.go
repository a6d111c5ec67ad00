package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a money source a transaction is drawn from
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction represents a single purchase or charge against an account
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Merchant    string          `json:"merchant,omitempty"`
	Date        time.Time       `json:"date"`
	Embedding   []float32       `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReceiptLineItem represents one itemized entry on a transaction's receipt.
// Amount is an unsigned magnitude; the owning transaction carries the sign.
type ReceiptLineItem struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category,omitempty"`
	Embedding     []float32       `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ItemWithTransaction pairs a line item with the transaction it belongs to
type ItemWithTransaction struct {
	ReceiptLineItem
	Transaction Transaction `json:"transaction"`
}
