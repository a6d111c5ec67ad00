package router

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/receipt"
	"github.com/madjor5/penny-pal/internal/search"
	"github.com/madjor5/penny-pal/internal/types"
)

type stubProvider struct {
	embedding []float32
	err       error
	calls     int
}

func (p *stubProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.embedding, nil
}

func (p *stubProvider) GetEmbeddingModelName() string {
	return "stub-model"
}

// simVector returns a unit vector with cosine similarity s against the stub
// query vector {1, 0}
func simVector(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
}

type routerEnv struct {
	db       *db.DB
	provider *stubProvider
	router   *Router
}

func setupRouter(t *testing.T) (*routerEnv, func()) {
	tempDir, err := os.MkdirTemp("", "penny-pal-router-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	logger := log.New(io.Discard)
	database, err := db.New(tempDir, logger, time.UTC)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create database: %v", err)
	}

	provider := &stubProvider{embedding: []float32{1, 0}}
	searcher := search.New(logger, database, provider)
	reconstructor := receipt.New(logger, database)

	env := &routerEnv{
		db:       database,
		provider: provider,
		router:   New(logger, searcher, reconstructor),
	}
	return env, func() {
		database.Close()
		os.RemoveAll(tempDir)
	}
}

func (e *routerEnv) seedAccount(t *testing.T, name string, embedding []float32) types.Account {
	t.Helper()
	account := types.Account{ID: db.GenerateAccountID(name), Name: name, Embedding: embedding}
	if err := e.db.StoreAccount(context.Background(), account); err != nil {
		t.Fatalf("failed to store account: %v", err)
	}
	return account
}

func (e *routerEnv) seedTransaction(t *testing.T, accountID, merchant string, date time.Time) types.Transaction {
	t.Helper()
	amount := decimal.NewFromInt(-25)
	tx := types.Transaction{
		ID:          db.GenerateTransactionID(accountID, date, merchant, merchant+" purchase", amount),
		AccountID:   accountID,
		Description: merchant + " purchase",
		Amount:      amount,
		Merchant:    merchant,
		Date:        date,
	}
	if err := e.db.StoreTransaction(context.Background(), tx); err != nil {
		t.Fatalf("failed to store transaction: %v", err)
	}
	return tx
}

func (e *routerEnv) seedItem(t *testing.T, transactionID string, position int, description string, embedding []float32) types.ReceiptLineItem {
	t.Helper()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	item := types.ReceiptLineItem{
		ID:            db.GenerateReceiptItemID(transactionID, position, description),
		TransactionID: transactionID,
		Description:   description,
		Amount:        decimal.NewFromFloat(4.99),
		Embedding:     embedding,
		CreatedAt:     base.Add(time.Duration(position) * time.Second),
	}
	if err := e.db.StoreReceiptItem(context.Background(), item); err != nil {
		t.Fatalf("failed to store item: %v", err)
	}
	return item
}

func TestRouteProductGroupsOneReceiptPerTransaction(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	txA := env.seedTransaction(t, account.ID, "Costco", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	txB := env.seedTransaction(t, account.ID, "Grocer", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	env.seedItem(t, txA.ID, 0, "Banana Chips", simVector(0.95))
	env.seedItem(t, txA.ID, 1, "Banana Bread", simVector(0.85))
	env.seedItem(t, txA.ID, 2, "Paper Towels", simVector(0.10))
	env.seedItem(t, txB.ID, 0, "Dried Banana", simVector(0.75))

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Query:      "show me banana snacks I bought",
		Term:       "banana snacks",
		SearchType: types.SearchTypeProduct,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Outcome != OutcomeResults {
		t.Fatalf("expected results, got %s", result.Outcome)
	}
	if result.Mode != ModeProduct {
		t.Errorf("expected product mode, got %s", result.Mode)
	}
	if len(result.Matches) != 3 {
		t.Errorf("expected 3 matches, got %d", len(result.Matches))
	}
	if len(result.Receipts) != 2 {
		t.Fatalf("expected 2 receipts (one per transaction), got %d", len(result.Receipts))
	}

	first := result.Receipts[0]
	if first.Transaction.ID != txA.ID {
		t.Errorf("expected best-ranked transaction first, got %s", first.Transaction.ID)
	}
	if len(first.Items) != 3 {
		t.Fatalf("expected the full receipt, got %d items", len(first.Items))
	}
	wantHighlights := map[string]bool{"Banana Chips": true, "Banana Bread": true, "Paper Towels": false}
	for _, item := range first.Items {
		if item.Highlighted != wantHighlights[item.Description] {
			t.Errorf("item %q: expected highlighted=%v", item.Description, wantHighlights[item.Description])
		}
	}

	second := result.Receipts[1]
	if second.Transaction.ID != txB.ID {
		t.Errorf("expected second transaction %s, got %s", txB.ID, second.Transaction.ID)
	}
	if len(second.Items) != 1 || !second.Items[0].Highlighted {
		t.Errorf("expected the single matched item highlighted on the second receipt")
	}

	if result.Trace == nil || result.Trace.Len() == 0 || result.Trace.ID == "" {
		t.Error("expected a populated trace on the result")
	}
}

func TestRouteLatestProductReturnsSingleReceipt(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	txJan := env.seedTransaction(t, account.ID, "Grocer", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	txMar := env.seedTransaction(t, account.ID, "Corner Store", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	env.seedItem(t, txJan.ID, 0, "Banana Chips", simVector(0.91))
	env.seedItem(t, txMar.ID, 0, "Chips", simVector(0.89))

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "banana chips",
		SearchType: types.SearchTypeProduct,
		IsLatest:   true,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Outcome != OutcomeResults {
		t.Fatalf("expected results, got %s", result.Outcome)
	}
	if len(result.Receipts) != 1 {
		t.Fatalf("expected exactly one receipt for a latest query, got %d", len(result.Receipts))
	}
	// near-tied scores resolve to the more recent purchase
	if result.Receipts[0].Transaction.ID != txMar.ID {
		t.Errorf("expected the March purchase, got %s", result.Receipts[0].Transaction.ID)
	}
	if len(result.Receipts[0].Items) != 1 || !result.Receipts[0].Items[0].Highlighted {
		t.Error("expected the matched item highlighted")
	}
}

func TestRoutePhraseOverrideForcesLatestProduct(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	txJan := env.seedTransaction(t, account.ID, "Grocer", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	txMar := env.seedTransaction(t, account.ID, "Corner Store", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	env.seedItem(t, txJan.ID, 0, "Banana Chips", simVector(0.91))
	env.seedItem(t, txMar.ID, 0, "Chips", simVector(0.89))

	// the parser mislabelled this as a store lookup; the phrase wins
	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Query:      "When did I last buy banana chips?",
		Term:       "banana chips",
		SearchType: types.SearchTypeStore,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Mode != ModeLatestProduct {
		t.Fatalf("expected latest product mode, got %s", result.Mode)
	}
	if result.Descriptor.SearchType != types.SearchTypeProduct || !result.Descriptor.IsLatest {
		t.Errorf("expected rewritten descriptor, got %+v", result.Descriptor)
	}
	if len(result.Receipts) != 1 {
		t.Fatalf("expected exactly one receipt, got %d", len(result.Receipts))
	}
	if result.Receipts[0].Transaction.ID != txMar.ID {
		t.Errorf("expected the most recent purchase, got %s", result.Receipts[0].Transaction.ID)
	}
}

func TestRouteRejectsBadDescriptors(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	_, err := env.router.Route(ctx, types.QueryDescriptor{Term: "", SearchType: types.SearchTypeProduct})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery for empty term, got %v", err)
	}

	_, err = env.router.Route(ctx, types.QueryDescriptor{Term: "bananas", SearchType: "merchant"})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery for unknown type, got %v", err)
	}
}

func TestRouteAmbiguousAccountHint(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	env.seedAccount(t, "Angelica Checking", nil)
	env.seedAccount(t, "Angelica Savings", nil)

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "bananas",
		SearchType: types.SearchTypeProduct,
		Account:    "angelica",
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Outcome != OutcomeAmbiguousAccount {
		t.Fatalf("expected ambiguous account outcome, got %s", result.Outcome)
	}
	if len(result.AccountCandidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(result.AccountCandidates))
	}
	if len(result.Receipts) != 0 {
		t.Errorf("expected no search to run, got %d receipts", len(result.Receipts))
	}
	if env.provider.calls != 0 {
		t.Errorf("expected no embedding calls before surfacing the tie, got %d", env.provider.calls)
	}
}

func TestRouteUnmatchedAccountHintSearchesEverything(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	tx := env.seedTransaction(t, account.ID, "Grocer", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	env.seedItem(t, tx.ID, 0, "Bananas", simVector(0.95))

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "bananas",
		SearchType: types.SearchTypeProduct,
		Account:    "mystery card",
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Outcome != OutcomeResults {
		t.Fatalf("expected unscoped results, got %s", result.Outcome)
	}
	if len(result.Receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(result.Receipts))
	}

	var loggedFallback bool
	for _, event := range result.Trace.Events {
		if strings.Contains(event.Detail, "searching all accounts") {
			loggedFallback = true
		}
	}
	if !loggedFallback {
		t.Error("expected the unmatched-hint fallback recorded in the trace")
	}
}

func TestRouteScopesToResolvedAccount(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	checking := env.seedAccount(t, "Checking", nil)
	savings := env.seedAccount(t, "Savings", nil)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	txChecking := env.seedTransaction(t, checking.ID, "Grocer", date)
	txSavings := env.seedTransaction(t, savings.ID, "Duty Free", date)
	env.seedItem(t, txChecking.ID, 0, "Bananas", simVector(0.95))
	env.seedItem(t, txSavings.ID, 0, "Banana Liqueur", simVector(0.90))

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "bananas",
		SearchType: types.SearchTypeProduct,
		Account:    "checking",
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if len(result.Receipts) != 1 {
		t.Fatalf("expected 1 receipt in the resolved account, got %d", len(result.Receipts))
	}
	if result.Receipts[0].Transaction.AccountID != checking.ID {
		t.Errorf("expected receipt from checking, got account %s", result.Receipts[0].Transaction.AccountID)
	}
}

func TestRouteStoreVisitsNewestFirst(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	env.seedTransaction(t, account.ID, "Trader Joe's", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	env.seedTransaction(t, account.ID, "TRADER JOE'S #512", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	env.seedTransaction(t, account.ID, "Costco", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "trader joe",
		SearchType: types.SearchTypeStore,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Mode != ModeStore {
		t.Errorf("expected store mode, got %s", result.Mode)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(result.Transactions))
	}
	if result.Transactions[0].Merchant != "TRADER JOE'S #512" {
		t.Errorf("expected newest visit first, got %q", result.Transactions[0].Merchant)
	}
	if len(result.Receipts) != 0 {
		t.Errorf("expected no receipts in store mode, got %d", len(result.Receipts))
	}
}

func TestRouteLatestStoreReconstructsReceipt(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	older := env.seedTransaction(t, account.ID, "Trader Joe's", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	newest := env.seedTransaction(t, account.ID, "Trader Joe's #512", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	env.seedItem(t, older.ID, 0, "Frozen Dumplings", nil)
	env.seedItem(t, newest.ID, 0, "Orange Chicken", nil)
	env.seedItem(t, newest.ID, 1, "Sparkling Water", nil)

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "trader joe",
		SearchType: types.SearchTypeStore,
		IsLatest:   true,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if result.Mode != ModeLatestStore {
		t.Errorf("expected latest store mode, got %s", result.Mode)
	}
	if len(result.Receipts) != 1 {
		t.Fatalf("expected exactly one receipt, got %d", len(result.Receipts))
	}
	rec := result.Receipts[0]
	if rec.Transaction.ID != newest.ID {
		t.Errorf("expected the most recent visit, got %s", rec.Transaction.ID)
	}
	if len(rec.Items) != 2 {
		t.Errorf("expected the full receipt, got %d items", len(rec.Items))
	}
	for _, item := range rec.Items {
		if item.Highlighted {
			t.Errorf("store lookups highlight nothing, but %q is highlighted", item.Description)
		}
	}
}

func TestRouteNoResults(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	tx := env.seedTransaction(t, account.ID, "Grocer", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	env.seedItem(t, tx.ID, 0, "Motor Oil", simVector(0.30))

	product, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "bananas",
		SearchType: types.SearchTypeProduct,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if product.Outcome != OutcomeNoResults {
		t.Errorf("expected no results for weak matches, got %s", product.Outcome)
	}

	store, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "starbucks",
		SearchType: types.SearchTypeStore,
	})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if store.Outcome != OutcomeNoResults {
		t.Errorf("expected no results for unknown merchant, got %s", store.Outcome)
	}
}

func TestRouteProviderFailureDegradesGracefully(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()
	ctx := context.Background()

	account := env.seedAccount(t, "Everyday Checking", nil)
	tx := env.seedTransaction(t, account.ID, "Grocer", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	env.seedItem(t, tx.ID, 0, "Bananas", simVector(0.95))

	env.provider.err = errors.New("connection refused")

	result, err := env.router.Route(ctx, types.QueryDescriptor{
		Term:       "bananas",
		SearchType: types.SearchTypeProduct,
	})
	if err != nil {
		t.Fatalf("expected embedding failure swallowed, got %v", err)
	}
	if result.Outcome != OutcomeNoResults {
		t.Errorf("expected an empty result, got %s", result.Outcome)
	}
}
