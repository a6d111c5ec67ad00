package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/embeddings"
	"github.com/madjor5/penny-pal/internal/index"
	"github.com/madjor5/penny-pal/internal/trace"
	"github.com/madjor5/penny-pal/internal/types"
)

// Searcher answers product and store queries against the purchase database.
// Product queries rank receipt line items by embedding similarity; store
// queries match the transaction merchant field directly. An optional vector
// index accelerates product queries, with a full scan of stored items as the
// fallback when the index is absent, empty or failing.
type Searcher struct {
	logger   *log.Logger
	db       *db.DB
	provider embeddings.EmbeddingProvider
	ann      *index.ChromemIndex
}

// Option configures a Searcher
type Option func(*Searcher)

// WithIndex gives the searcher a persistent vector index to consult before
// falling back to scanning the database
func WithIndex(idx *index.ChromemIndex) Option {
	return func(s *Searcher) {
		s.ann = idx
	}
}

// New creates a Searcher backed by the given database and embedding provider
func New(logger *log.Logger, database *db.DB, provider embeddings.EmbeddingProvider, opts ...Option) *Searcher {
	s := &Searcher{
		logger:   logger,
		db:       database,
		provider: provider,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// searchOptions defines options for a single search call
type searchOptions struct {
	threshold float64
	accountID string
	limit     int
	trace     *trace.Trace
}

// SearchOption is a function that modifies searchOptions
type SearchOption func(*searchOptions)

// WithThreshold overrides the minimum similarity for item matches
func WithThreshold(threshold float64) SearchOption {
	return func(opts *searchOptions) {
		opts.threshold = threshold
	}
}

// WithAccount restricts the search to a single account
func WithAccount(accountID string) SearchOption {
	return func(opts *searchOptions) {
		opts.accountID = accountID
	}
}

// WithLimit caps the number of results returned
func WithLimit(limit int) SearchOption {
	return func(opts *searchOptions) {
		opts.limit = limit
	}
}

// WithTrace records the steps the search takes into tr
func WithTrace(tr *trace.Trace) SearchOption {
	return func(opts *searchOptions) {
		opts.trace = tr
	}
}

// SearchItems finds receipt line items semantically similar to term, ordered
// by similarity with near-ties broken by purchase recency. A failed or empty
// query embedding is not an error: the failure is logged and an empty result
// returned, so an unavailable embedding service degrades to "no matches"
// instead of taking the caller down.
func (s *Searcher) SearchItems(ctx context.Context, term string, opts ...SearchOption) ([]types.ItemMatch, error) {
	options := searchOptions{threshold: defaultItemThreshold}
	for _, opt := range opts {
		opt(&options)
	}

	s.logger.Info("Searching items",
		"term", term,
		"threshold", options.threshold,
		"account", options.accountID)
	startTime := time.Now()
	options.trace.Add("search_items", "term %q, threshold %.2f", term, options.threshold)

	queryEmbedding, err := s.provider.GenerateEmbedding(ctx, term)
	if err == nil && len(queryEmbedding) == 0 {
		err = fmt.Errorf("provider returned an empty embedding")
	}
	if err != nil {
		s.logger.Warn("Could not embed query, returning no matches", "term", term, "error", err)
		options.trace.Add("search_items", "query embedding failed: %v", err)
		return []types.ItemMatch{}, nil
	}

	matches, err := s.itemMatches(ctx, queryEmbedding, options)
	if err != nil {
		return nil, err
	}

	rankItemMatches(matches)
	if options.limit > 0 && len(matches) > options.limit {
		matches = matches[:options.limit]
	}

	s.logger.Info("Item search completed",
		"term", term,
		"results", len(matches),
		"duration", time.Since(startTime))
	options.trace.Add("search_items", "%d matches", len(matches))
	return matches, nil
}

// itemMatches gathers threshold-filtered candidates, preferring the vector
// index when one is configured and populated and falling back to a scan of
// all stored items otherwise.
func (s *Searcher) itemMatches(ctx context.Context, queryEmbedding []float32, options searchOptions) ([]types.ItemMatch, error) {
	if s.ann != nil && s.ann.Count() > 0 {
		matches, err := s.indexMatches(ctx, queryEmbedding, options)
		if err == nil {
			return matches, nil
		}
		s.logger.Warn("Vector index query failed, falling back to full scan", "error", err)
		options.trace.Add("search_items", "index failed (%v), falling back to full scan", err)
	} else if s.ann != nil {
		options.trace.Add("search_items", "index empty, using full scan")
	}
	return s.scanMatches(ctx, queryEmbedding, options)
}

func (s *Searcher) scanMatches(ctx context.Context, queryEmbedding []float32, options searchOptions) ([]types.ItemMatch, error) {
	items, err := s.db.GetItemsWithTransactions(ctx, options.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}

	docs := make([]index.Doc, len(items))
	byID := make(map[string]types.ItemWithTransaction, len(items))
	for i, item := range items {
		docs[i] = index.Doc{ID: item.ID, Embedding: item.Embedding}
		byID[item.ID] = item
	}

	hits := index.Scan(queryEmbedding, docs, options.threshold)
	matches := make([]types.ItemMatch, 0, len(hits))
	for _, hit := range hits {
		matches = append(matches, types.ItemMatch{ItemWithTransaction: byID[hit.ID], Similarity: hit.Similarity})
	}

	options.trace.Add("search_items", "scanned %d items, %d at or above threshold", len(items), len(matches))
	return matches, nil
}

func (s *Searcher) indexMatches(ctx context.Context, queryEmbedding []float32, options searchOptions) ([]types.ItemMatch, error) {
	hits, err := s.ann.Query(ctx, queryEmbedding, options.threshold)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		options.trace.Add("search_items", "index returned no hits")
		return []types.ItemMatch{}, nil
	}

	ids := make([]string, len(hits))
	similarity := make(map[string]float64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
		similarity[hit.ID] = hit.Similarity
	}

	items, err := s.db.GetItemsWithTransactionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load indexed items: %w", err)
	}

	found := make(map[string]bool, len(items))
	matches := make([]types.ItemMatch, 0, len(items))
	for _, item := range items {
		found[item.ID] = true
		if options.accountID != "" && item.Transaction.AccountID != options.accountID {
			continue
		}
		matches = append(matches, types.ItemMatch{ItemWithTransaction: item, Similarity: similarity[item.ID]})
	}

	// no other path purges rows deleted from the database, so drop stale
	// index entries when we encounter them
	for _, hit := range hits {
		if found[hit.ID] {
			continue
		}
		if err := s.ann.Remove(ctx, hit.ID); err != nil {
			s.logger.Warn("Failed to remove stale index entry", "id", hit.ID, "error", err)
		}
	}

	options.trace.Add("search_items", "index returned %d hits, %d kept", len(hits), len(matches))
	return matches, nil
}

// SearchStoreVisits returns transactions whose merchant name contains store,
// compared case-insensitively, newest first
func (s *Searcher) SearchStoreVisits(ctx context.Context, store string, opts ...SearchOption) ([]types.Transaction, error) {
	options := searchOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s.logger.Info("Searching store visits", "store", store, "account", options.accountID)
	options.trace.Add("search_stores", "store %q", store)

	transactions, err := s.db.GetTransactions(ctx, options.accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(store))
	visits := []types.Transaction{}
	for _, tx := range transactions {
		if strings.Contains(strings.ToLower(tx.Merchant), needle) {
			visits = append(visits, tx)
		}
	}
	if options.limit > 0 && len(visits) > options.limit {
		visits = visits[:options.limit]
	}

	options.trace.Add("search_stores", "%d of %d transactions matched", len(visits), len(transactions))
	return visits, nil
}
