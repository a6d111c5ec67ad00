package receipt

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/types"
)

func setupTestDB(t *testing.T) (*db.DB, func()) {
	tempDir, err := os.MkdirTemp("", "penny-pal-receipt-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	logger := log.New(io.Discard)
	database, err := db.New(tempDir, logger, time.UTC)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create database: %v", err)
	}

	return database, func() {
		database.Close()
		os.RemoveAll(tempDir)
	}
}

func seedReceipt(t *testing.T, database *db.DB, amounts []string) (types.Transaction, []types.ReceiptLineItem) {
	t.Helper()
	ctx := context.Background()

	account := types.Account{ID: db.GenerateAccountID("Everyday Checking"), Name: "Everyday Checking"}
	if err := database.StoreAccount(ctx, account); err != nil {
		t.Fatalf("failed to store account: %v", err)
	}

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txAmount := decimal.RequireFromString("-20.00")
	tx := types.Transaction{
		ID:          db.GenerateTransactionID(account.ID, date, "Corner Store", "Groceries", txAmount),
		AccountID:   account.ID,
		Description: "Groceries",
		Amount:      txAmount,
		Merchant:    "Corner Store",
		Date:        date,
	}
	if err := database.StoreTransaction(ctx, tx); err != nil {
		t.Fatalf("failed to store transaction: %v", err)
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var items []types.ReceiptLineItem
	for i, amount := range amounts {
		item := types.ReceiptLineItem{
			ID:            db.GenerateReceiptItemID(tx.ID, i, amount),
			TransactionID: tx.ID,
			Description:   "Item " + amount,
			Amount:        decimal.RequireFromString(amount),
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if err := database.StoreReceiptItem(ctx, item); err != nil {
			t.Fatalf("failed to store item: %v", err)
		}
		items = append(items, item)
	}
	return tx, items
}

func TestReconstructTotalsLineItems(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	// mixed signs: the total sums absolute item amounts and ignores the
	// transaction amount entirely
	tx, _ := seedReceipt(t, database, []string{"-4.99", "12.99", "-3.50"})

	reconstructor := New(log.New(io.Discard), database)
	receipt, err := reconstructor.Reconstruct(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	want := decimal.RequireFromString("21.48")
	if !receipt.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, receipt.Total)
	}
	if receipt.Total.Equal(receipt.Transaction.Amount.Abs()) {
		t.Error("total should come from the items, not the transaction amount")
	}
	if len(receipt.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(receipt.Items))
	}
}

func TestReconstructNotFound(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	reconstructor := New(log.New(io.Discard), database)
	_, err := reconstructor.Reconstruct(context.Background(), "missing")
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconstructKeepsItemOrder(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	tx, items := seedReceipt(t, database, []string{"-1.00", "-2.00", "-3.00"})

	reconstructor := New(log.New(io.Discard), database)
	receipt, err := reconstructor.Reconstruct(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	if len(receipt.Items) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(receipt.Items))
	}
	for i, item := range items {
		if receipt.Items[i].ID != item.ID {
			t.Errorf("position %d: expected %q, got %q", i, item.ID, receipt.Items[i].ID)
		}
	}
}

func TestReconstructHighlightsRequestedItems(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	tx, items := seedReceipt(t, database, []string{"-1.00", "-2.00", "-3.00"})

	reconstructor := New(log.New(io.Discard), database)
	receipt, err := reconstructor.Reconstruct(context.Background(), tx.ID, items[1].ID)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}

	for i, item := range receipt.Items {
		want := i == 1
		if item.Highlighted != want {
			t.Errorf("position %d: expected highlighted=%v, got %v", i, want, item.Highlighted)
		}
	}
}

func TestReconstructEmptyReceipt(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	tx, _ := seedReceipt(t, database, nil)

	reconstructor := New(log.New(io.Discard), database)
	receipt, err := reconstructor.Reconstruct(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if len(receipt.Items) != 0 {
		t.Errorf("expected no items, got %d", len(receipt.Items))
	}
	if !receipt.Total.IsZero() {
		t.Errorf("expected zero total, got %s", receipt.Total)
	}
}
