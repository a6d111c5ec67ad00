package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/embeddings"
	"github.com/madjor5/penny-pal/internal/index"
	"github.com/madjor5/penny-pal/internal/types"
)

type Config struct {
	Concurrency int
	Progress    bool
	DryRun      bool
	Limit       int
}

// Stats summarizes an import run
type Stats struct {
	Accounts     int
	Transactions int
	Items        int
	Skipped      int
}

// BackfillStats summarizes a backfill run
type BackfillStats struct {
	Accounts     int
	Transactions int
	Items        int
	Indexed      int
}

// Importer loads receipt export records into the database, generating
// embeddings as rows are created. Rows whose embeddings fail to generate are
// stored without one and picked up by Backfill later.
type Importer struct {
	logger   *log.Logger
	db       *db.DB
	provider embeddings.EmbeddingProvider
	timezone *time.Location
	ann      *index.ChromemIndex
}

type Option func(*Importer)

// WithIndex keeps the vector index in step with imported line items
func WithIndex(idx *index.ChromemIndex) Option {
	return func(i *Importer) {
		i.ann = idx
	}
}

func New(logger *log.Logger, database *db.DB, provider embeddings.EmbeddingProvider, timezone *time.Location, opts ...Option) *Importer {
	imp := &Importer{
		logger:   logger,
		db:       database,
		provider: provider,
		timezone: timezone,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

type pendingRecord struct {
	record Record
	tx     types.Transaction
}

// Import stores records that are not already in the database. Duplicate
// detection uses the deterministic transaction ID, so re-running an import
// over the same export is safe.
func (i *Importer) Import(ctx context.Context, records []Record, config Config) (Stats, error) {
	startTime := time.Now()
	i.logger.Info("Starting receipt import", "total_records", len(records))

	accountIDs, accountsCreated, err := i.ensureAccounts(ctx, records, config.DryRun)
	if err != nil {
		return Stats{}, err
	}

	// Filter out records whose transactions already exist in the database
	filterStart := time.Now()
	var pending []pendingRecord
	skipped := 0
	for _, record := range records {
		tx, err := i.transactionFor(record, accountIDs)
		if err != nil {
			return Stats{}, err
		}
		exists, err := i.db.HasTransaction(ctx, tx.ID)
		if err != nil {
			return Stats{}, fmt.Errorf("error checking for existing transaction: %w", err)
		}
		if exists {
			skipped++
			continue
		}
		pending = append(pending, pendingRecord{record: record, tx: tx})
	}
	// Apply limit after filtering
	if config.Limit > 0 && len(pending) > config.Limit {
		pending = pending[:config.Limit]
	}
	i.logger.Debug("Filtered existing transactions",
		"duration", time.Since(filterStart),
		"total", len(pending),
		"skipped", skipped)

	progress := progressFor(config, len(pending), "Importing receipts")
	defer progress.Close()

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var txCount, itemCount int32

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, p := range pending {
		p := p // Create new variable for the goroutine
		g.Go(func() error {
			// Check if context is canceled before starting
			if err := gCtx.Err(); err != nil {
				return err
			}

			if !config.DryRun {
				storeStart := time.Now()
				stored, err := i.storeRecord(gCtx, p)
				if err != nil {
					// If context was canceled, return immediately
					if errors.Is(err, context.Canceled) {
						return err
					}
					i.logger.Error("Failed to store record",
						"error", err,
						"merchant", p.record.Merchant,
						"date", p.record.Date,
						"duration", time.Since(storeStart))
					return fmt.Errorf("error storing record: %w", err)
				}
				atomic.AddInt32(&itemCount, int32(stored))
			}
			atomic.AddInt32(&txCount, 1)

			// Update progress
			if err := progress.Add(1); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return fmt.Errorf("error updating progress: %w", err)
			}

			return nil
		})
	}

	// Wait for all goroutines to complete
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			i.logger.Info("Import interrupted by user")
			return Stats{}, err
		}
		return Stats{}, fmt.Errorf("error importing records: %w", err)
	}

	stats := Stats{
		Accounts:     accountsCreated,
		Transactions: int(txCount),
		Items:        int(itemCount),
		Skipped:      skipped,
	}
	i.logger.Info("Receipt import completed",
		"total_duration", time.Since(startTime),
		"accounts", stats.Accounts,
		"transactions", stats.Transactions,
		"items", stats.Items,
		"skipped", stats.Skipped)
	return stats, nil
}

// ensureAccounts stores any accounts the records reference that are not in
// the database yet, and maps each account name to its row ID
func (i *Importer) ensureAccounts(ctx context.Context, records []Record, dryRun bool) (map[string]string, int, error) {
	ids := make(map[string]string)
	var order []string
	for _, record := range records {
		name := strings.TrimSpace(record.Account)
		if _, ok := ids[name]; ok {
			continue
		}
		ids[name] = db.GenerateAccountID(name)
		order = append(order, name)
	}
	if dryRun {
		return ids, 0, nil
	}

	created := 0
	for _, name := range order {
		id := ids[name]
		existing, err := i.db.GetAccountByID(ctx, id)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, 0, fmt.Errorf("error looking up account %q: %w", name, err)
		}
		if existing != nil {
			continue
		}
		account := types.Account{
			ID:        id,
			Name:      name,
			Embedding: i.embed(ctx, name, "account", name),
		}
		if err := i.db.StoreAccount(ctx, account); err != nil {
			return nil, 0, fmt.Errorf("error storing account %q: %w", name, err)
		}
		created++
		i.logger.Debug("Stored account", "name", name, "id", id)
	}
	return ids, created, nil
}

func (i *Importer) transactionFor(record Record, accountIDs map[string]string) (types.Transaction, error) {
	date, err := i.parseDate(record.Date)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("record for %q on %q: %w", record.Merchant, record.Date, err)
	}
	accountID := accountIDs[strings.TrimSpace(record.Account)]
	tx := types.Transaction{
		AccountID:   accountID,
		Description: strings.TrimSpace(record.Description),
		Amount:      record.Amount,
		Category:    strings.TrimSpace(record.Category),
		Merchant:    strings.TrimSpace(record.Merchant),
		Date:        date,
	}
	tx.ID = db.GenerateTransactionID(accountID, date, tx.Merchant, tx.Description, tx.Amount)
	return tx, nil
}

func (i *Importer) parseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, value, i.timezone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// storeRecord inserts one transaction and its line items, returning how many
// items were stored
func (i *Importer) storeRecord(ctx context.Context, p pendingRecord) (int, error) {
	tx := p.tx
	tx.Embedding = i.embed(ctx, transactionText(tx), "merchant", tx.Merchant)
	if err := i.db.StoreTransaction(ctx, tx); err != nil {
		return 0, fmt.Errorf("error storing transaction: %w", err)
	}

	stored := 0
	for position, line := range p.record.Items {
		item := types.ReceiptLineItem{
			ID:            db.GenerateReceiptItemID(tx.ID, position, line.Description),
			TransactionID: tx.ID,
			Description:   strings.TrimSpace(line.Description),
			Amount:        line.Amount,
			Category:      strings.TrimSpace(line.Category),
			// receipt order survives the created_at sort
			CreatedAt: tx.Date.Add(time.Duration(position) * time.Second),
		}
		item.Embedding = i.embed(ctx, item.Description, "item", item.Description)
		if err := i.db.StoreReceiptItem(ctx, item); err != nil {
			return stored, fmt.Errorf("error storing receipt item %q: %w", line.Description, err)
		}
		stored++

		if i.ann != nil && item.Embedding != nil {
			if err := i.indexItem(ctx, item); err != nil {
				i.logger.Warn("Failed to index receipt item", "error", err, "id", item.ID)
			}
		}
	}
	return stored, nil
}

// embed generates a vector for text, or nil when the provider is down.
// Rows stored without a vector are picked up by Backfill later.
func (i *Importer) embed(ctx context.Context, text, kind, label string) []float32 {
	embedding, err := i.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		i.logger.Warn("Failed to generate embedding, leaving for backfill",
			"error", err, kind, label)
		return nil
	}
	return embedding
}

func (i *Importer) indexItem(ctx context.Context, item types.ReceiptLineItem) error {
	metadata := embeddings.EmbeddingMetadata{
		ContentHash: embeddings.Hash(item.Description),
		ModelName:   i.provider.GetEmbeddingModelName(),
		Length:      len(item.Embedding),
		LastUpdated: time.Now(),
	}
	return i.ann.Add(ctx, item.ID, item.Description, item.Embedding, metadata)
}

// transactionText is the embedded form of a transaction: merchant plus
// description so a semantic query can match either
func transactionText(tx types.Transaction) string {
	var parts []string
	for _, part := range []string{tx.Merchant, tx.Description} {
		if s := strings.TrimSpace(part); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Backfill generates embeddings for rows stored while the provider was
// unavailable, then syncs the vector index with the item table
func (i *Importer) Backfill(ctx context.Context, config Config) (BackfillStats, error) {
	startTime := time.Now()
	i.logger.Info("Backfilling missing embeddings")

	var stats BackfillStats

	accounts, err := i.db.GetAccountsMissingEmbeddings(ctx)
	if err != nil {
		return stats, fmt.Errorf("error listing accounts missing embeddings: %w", err)
	}
	transactions, err := i.db.GetTransactionsMissingEmbeddings(ctx)
	if err != nil {
		return stats, fmt.Errorf("error listing transactions missing embeddings: %w", err)
	}
	items, err := i.db.GetReceiptItemsMissingEmbeddings(ctx)
	if err != nil {
		return stats, fmt.Errorf("error listing receipt items missing embeddings: %w", err)
	}

	progress := progressFor(config, len(accounts)+len(transactions)+len(items), "Backfilling embeddings")
	defer progress.Close()

	advance := func() error {
		if err := progress.Add(1); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			i.logger.Warn("Failed to update progress", "error", err)
		}
		return nil
	}

	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		embedding, err := i.provider.GenerateEmbedding(ctx, account.Name)
		if err != nil {
			i.logger.Warn("Failed to backfill account embedding", "error", err, "name", account.Name)
		} else {
			if err := i.db.SetAccountEmbedding(ctx, account.ID, embedding); err != nil {
				return stats, fmt.Errorf("error storing account embedding: %w", err)
			}
			stats.Accounts++
		}
		if err := advance(); err != nil {
			return stats, err
		}
	}

	for _, tx := range transactions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		embedding, err := i.provider.GenerateEmbedding(ctx, transactionText(tx))
		if err != nil {
			i.logger.Warn("Failed to backfill transaction embedding", "error", err, "merchant", tx.Merchant)
		} else {
			if err := i.db.SetTransactionEmbedding(ctx, tx.ID, embedding); err != nil {
				return stats, fmt.Errorf("error storing transaction embedding: %w", err)
			}
			stats.Transactions++
		}
		if err := advance(); err != nil {
			return stats, err
		}
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		embedding, err := i.provider.GenerateEmbedding(ctx, item.Description)
		if err != nil {
			i.logger.Warn("Failed to backfill item embedding", "error", err, "description", item.Description)
		} else {
			if err := i.db.SetReceiptItemEmbedding(ctx, item.ID, embedding); err != nil {
				return stats, fmt.Errorf("error storing item embedding: %w", err)
			}
			item.Embedding = embedding
			if i.ann != nil {
				if err := i.indexItem(ctx, item); err != nil {
					i.logger.Warn("Failed to index receipt item", "error", err, "id", item.ID)
				}
			}
			stats.Items++
		}
		if err := advance(); err != nil {
			return stats, err
		}
	}

	if i.ann != nil {
		synced, err := i.syncIndex(ctx)
		if err != nil {
			return stats, err
		}
		stats.Indexed = synced
	}

	i.logger.Info("Backfill completed",
		"total_duration", time.Since(startTime),
		"accounts", stats.Accounts,
		"transactions", stats.Transactions,
		"items", stats.Items,
		"indexed", stats.Indexed)
	return stats, nil
}

// syncIndex adds any embedded line item the index does not hold yet, so an
// index enabled after import still covers the whole table
func (i *Importer) syncIndex(ctx context.Context) (int, error) {
	items, err := i.db.GetItemsWithTransactions(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("error listing receipt items: %w", err)
	}

	synced := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if len(item.Embedding) == 0 {
			continue
		}
		exists, metadata, err := i.ann.Has(ctx, item.ID)
		if err != nil {
			return synced, fmt.Errorf("error checking index for item %s: %w", item.ID, err)
		}
		if exists && metadata.MatchContent(item.Description) {
			continue
		}
		if err := i.indexItem(ctx, item.ReceiptLineItem); err != nil {
			return synced, fmt.Errorf("error indexing item %s: %w", item.ID, err)
		}
		synced++
	}
	if synced > 0 {
		i.logger.Debug("Synced vector index", "added", synced)
	}
	return synced, nil
}

func progressFor(config Config, total int, description string) Progress {
	if !config.Progress || total == 0 {
		return NewNoopProgress()
	}
	return NewBarProgress(total, description)
}
