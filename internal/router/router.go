package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/receipt"
	"github.com/madjor5/penny-pal/internal/search"
	"github.com/madjor5/penny-pal/internal/trace"
	"github.com/madjor5/penny-pal/internal/types"
)

// Mode is the concrete search strategy a descriptor routes to
type Mode string

const (
	// ModeProduct finds every receipt containing a matching line item
	ModeProduct Mode = "product"
	// ModeLatestProduct finds only the most relevant recent purchase
	ModeLatestProduct Mode = "latest_product"
	// ModeStore lists visits to a matching merchant
	ModeStore Mode = "store"
	// ModeLatestStore reconstructs the most recent receipt from a merchant
	ModeLatestStore Mode = "latest_store"
)

// Outcome says what kind of answer a routed query produced
type Outcome string

const (
	OutcomeResults          Outcome = "results"
	OutcomeNoResults        Outcome = "no_results"
	OutcomeAmbiguousAccount Outcome = "ambiguous_account"
)

// Result is the routed answer to one query. Which collection is populated
// depends on the mode: product modes fill Receipts (and keep the raw Matches
// for display), store mode fills Transactions, and an ambiguous account hint
// fills AccountCandidates instead of searching anything.
type Result struct {
	Outcome           Outcome               `json:"outcome"`
	Mode              Mode                  `json:"mode"`
	Descriptor        types.QueryDescriptor `json:"descriptor"`
	Matches           []types.ItemMatch     `json:"matches,omitempty"`
	Receipts          []types.Receipt       `json:"receipts,omitempty"`
	Transactions      []types.Transaction   `json:"transactions,omitempty"`
	AccountCandidates []types.Account       `json:"account_candidates,omitempty"`
	Trace             *trace.Trace          `json:"trace,omitempty"`
}

// Router turns a parsed query descriptor into searches and receipts. Every
// request gets a fresh trace that records each routing decision and is
// returned with the result.
type Router struct {
	logger        *log.Logger
	searcher      *search.Searcher
	reconstructor *receipt.Reconstructor
}

// New creates a Router over the given searcher and receipt reconstructor
func New(logger *log.Logger, searcher *search.Searcher, reconstructor *receipt.Reconstructor) *Router {
	return &Router{
		logger:        logger,
		searcher:      searcher,
		reconstructor: reconstructor,
	}
}

// Route validates the descriptor, applies phrase overrides, resolves any
// account hint and dispatches to the mode the descriptor selects. Upstream
// search degradation surfaces as an empty result, not an error; only invalid
// descriptors and database failures are returned as errors.
func (r *Router) Route(ctx context.Context, desc types.QueryDescriptor) (*Result, error) {
	tr := trace.New()
	tr.Add("route", "query %q", desc.Query)
	startTime := time.Now()

	desc = applyPhraseOverrides(desc, tr)
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}

	m := modeFor(desc)
	r.logger.Info("Routing query",
		"mode", m,
		"term", desc.Term,
		"account_hint", desc.Account,
		"trace_id", tr.ID)
	tr.Add("route", "mode %s, term %q", m, desc.Term)

	accountID, result, err := r.resolveAccountHint(ctx, desc, m, tr)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	switch m {
	case ModeProduct, ModeLatestProduct:
		result, err = r.productSearch(ctx, desc, m, accountID, tr)
	default:
		result, err = r.storeSearch(ctx, desc, m, accountID, tr)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("Routing completed",
		"mode", m,
		"outcome", result.Outcome,
		"receipts", len(result.Receipts),
		"transactions", len(result.Transactions),
		"duration", time.Since(startTime))
	return result, nil
}

func modeFor(desc types.QueryDescriptor) Mode {
	switch {
	case desc.SearchType == types.SearchTypeProduct && desc.IsLatest:
		return ModeLatestProduct
	case desc.SearchType == types.SearchTypeProduct:
		return ModeProduct
	case desc.IsLatest:
		return ModeLatestStore
	default:
		return ModeStore
	}
}

// resolveAccountHint maps a descriptor's account hint to an account ID. An
// ambiguous hint short-circuits routing with the candidates; a hint that
// matches nothing falls back to searching every account, logged so the wider
// scope is visible.
func (r *Router) resolveAccountHint(ctx context.Context, desc types.QueryDescriptor, m Mode, tr *trace.Trace) (string, *Result, error) {
	if strings.TrimSpace(desc.Account) == "" {
		return "", nil, nil
	}

	resolution, err := r.searcher.ResolveAccount(ctx, desc.Account, tr)
	if err != nil {
		return "", nil, err
	}

	switch {
	case resolution.Ambiguous:
		r.logger.Info("Account hint is ambiguous",
			"hint", desc.Account,
			"candidates", len(resolution.Candidates))
		tr.Add("route", "account hint %q ambiguous, asking the caller to pick", desc.Account)
		return "", &Result{
			Outcome:           OutcomeAmbiguousAccount,
			Mode:              m,
			Descriptor:        desc,
			AccountCandidates: resolution.Candidates,
			Trace:             tr,
		}, nil
	case resolution.Account != nil:
		tr.Add("route", "scoped to account %q", resolution.Account.Name)
		return resolution.Account.ID, nil, nil
	default:
		r.logger.Warn("Account hint matched nothing, searching all accounts", "hint", desc.Account)
		tr.Add("route", "account hint %q unmatched, searching all accounts", desc.Account)
		return "", nil, nil
	}
}

func (r *Router) productSearch(ctx context.Context, desc types.QueryDescriptor, m Mode, accountID string, tr *trace.Trace) (*Result, error) {
	opts := []search.SearchOption{search.WithTrace(tr)}
	if accountID != "" {
		opts = append(opts, search.WithAccount(accountID))
	}

	matches, err := r.searcher.SearchItems(ctx, desc.Term, opts...)
	if err != nil {
		return nil, err
	}

	result := &Result{Mode: m, Descriptor: desc, Trace: tr}
	if len(matches) == 0 {
		result.Outcome = OutcomeNoResults
		return result, nil
	}

	if m == ModeLatestProduct {
		// a "when did I last buy" question has at most one answer
		matches = matches[:1]
		tr.Add("route", "keeping only the most relevant recent match")
	}
	result.Matches = matches

	receipts, err := r.receiptsForMatches(ctx, matches, tr)
	if err != nil {
		return nil, err
	}
	result.Receipts = receipts
	if len(receipts) == 0 {
		result.Outcome = OutcomeNoResults
		return result, nil
	}
	result.Outcome = OutcomeResults
	return result, nil
}

// receiptsForMatches reconstructs one receipt per distinct transaction, in
// the order the transactions first appear in the ranked matches. Matched
// items landing on the same receipt are highlighted together rather than
// producing duplicate receipts.
func (r *Router) receiptsForMatches(ctx context.Context, matches []types.ItemMatch, tr *trace.Trace) ([]types.Receipt, error) {
	order := make([]string, 0, len(matches))
	highlights := make(map[string][]string, len(matches))
	for _, match := range matches {
		txID := match.Transaction.ID
		if _, seen := highlights[txID]; !seen {
			order = append(order, txID)
		}
		highlights[txID] = append(highlights[txID], match.ID)
	}

	receipts := make([]types.Receipt, 0, len(order))
	for _, txID := range order {
		rec, err := r.reconstructor.Reconstruct(ctx, txID, highlights[txID]...)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				// the row vanished between search and reconstruction
				r.logger.Warn("Transaction disappeared during reconstruction", "transaction", txID)
				tr.Add("route", "transaction %s not found, skipped", txID)
				continue
			}
			return nil, err
		}
		receipts = append(receipts, *rec)
	}

	tr.Add("route", "%d matches grouped into %d receipts", len(matches), len(receipts))
	return receipts, nil
}

func (r *Router) storeSearch(ctx context.Context, desc types.QueryDescriptor, m Mode, accountID string, tr *trace.Trace) (*Result, error) {
	opts := []search.SearchOption{search.WithTrace(tr)}
	if accountID != "" {
		opts = append(opts, search.WithAccount(accountID))
	}

	visits, err := r.searcher.SearchStoreVisits(ctx, desc.Term, opts...)
	if err != nil {
		return nil, err
	}

	result := &Result{Mode: m, Descriptor: desc, Trace: tr}
	if len(visits) == 0 {
		result.Outcome = OutcomeNoResults
		return result, nil
	}

	if m == ModeLatestStore {
		rec, err := r.reconstructor.Reconstruct(ctx, visits[0].ID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				r.logger.Warn("Transaction disappeared during reconstruction", "transaction", visits[0].ID)
				tr.Add("route", "transaction %s not found", visits[0].ID)
				result.Outcome = OutcomeNoResults
				return result, nil
			}
			return nil, err
		}
		tr.Add("route", "reconstructed latest visit %s", visits[0].ID)
		result.Receipts = []types.Receipt{*rec}
		result.Outcome = OutcomeResults
		return result, nil
	}

	result.Transactions = visits
	result.Outcome = OutcomeResults
	return result, nil
}
