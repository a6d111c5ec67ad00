package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/madjor5/penny-pal/internal/trace"
	"github.com/madjor5/penny-pal/internal/types"
	"github.com/madjor5/penny-pal/internal/vector"
)

// AccountResolution is the outcome of matching a free-form account hint
// against the known accounts. Exactly one shape comes back: a resolved
// Account, Ambiguous with the candidates that tied, or neither when nothing
// matched at all.
type AccountResolution struct {
	Account    *types.Account
	Candidates []types.Account
	Ambiguous  bool
}

// ResolveAccount matches hint against account names in three tiers, each
// tried only when the previous one found nothing: exact name match, substring
// match, then embedding similarity. A tier that matches more than one account
// stops the search and reports the tie rather than guessing, so "angelica"
// against two Angelica accounts comes back ambiguous instead of picking one.
func (s *Searcher) ResolveAccount(ctx context.Context, hint string, tr *trace.Trace) (AccountResolution, error) {
	accounts, err := s.db.GetAccounts(ctx)
	if err != nil {
		return AccountResolution{}, fmt.Errorf("failed to load accounts: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(hint))
	if needle == "" || len(accounts) == 0 {
		return AccountResolution{}, nil
	}

	var exact, partial []types.Account
	for _, account := range accounts {
		name := strings.ToLower(account.Name)
		if name == needle {
			exact = append(exact, account)
		} else if strings.Contains(name, needle) {
			partial = append(partial, account)
		}
	}

	if len(exact) == 1 {
		tr.Add("resolve_account", "exact match %q", exact[0].Name)
		return AccountResolution{Account: &exact[0]}, nil
	}
	if len(exact) > 1 {
		tr.Add("resolve_account", "%d accounts named %q", len(exact), hint)
		return AccountResolution{Candidates: exact, Ambiguous: true}, nil
	}

	s.logger.Debug("No exact account match, trying substring", "hint", hint)
	tr.Add("resolve_account", "no exact match, trying substring")

	if len(partial) == 1 {
		tr.Add("resolve_account", "substring match %q", partial[0].Name)
		return AccountResolution{Account: &partial[0]}, nil
	}
	if len(partial) > 1 {
		tr.Add("resolve_account", "%d account names contain %q", len(partial), hint)
		return AccountResolution{Candidates: partial, Ambiguous: true}, nil
	}

	s.logger.Debug("No substring account match, trying embeddings", "hint", hint)
	tr.Add("resolve_account", "no substring match, trying embeddings")

	return s.resolveAccountSemantic(ctx, hint, accounts, tr)
}

// resolveAccountSemantic scores every account embedding against the hint and
// keeps those at or above accountSimilarityThreshold. The best candidate wins
// only when it leads the runner-up by accountClearWinnerGap; a closer race is
// reported as ambiguous.
func (s *Searcher) resolveAccountSemantic(ctx context.Context, hint string, accounts []types.Account, tr *trace.Trace) (AccountResolution, error) {
	hintEmbedding, err := s.provider.GenerateEmbedding(ctx, hint)
	if err == nil && len(hintEmbedding) == 0 {
		err = fmt.Errorf("provider returned an empty embedding")
	}
	if err != nil {
		s.logger.Warn("Could not embed account hint, leaving it unresolved", "hint", hint, "error", err)
		tr.Add("resolve_account", "hint embedding failed: %v", err)
		return AccountResolution{}, nil
	}

	scores := make(map[string]float64, len(accounts))
	var candidates []types.Account
	for _, account := range accounts {
		sim := vector.Cosine(hintEmbedding, account.Embedding)
		if sim < accountSimilarityThreshold {
			continue
		}
		scores[account.ID] = sim
		candidates = append(candidates, account)
	}

	if len(candidates) == 0 {
		tr.Add("resolve_account", "no account at or above similarity %.2f", accountSimilarityThreshold)
		return AccountResolution{}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i].ID] > scores[candidates[j].ID]
	})

	best := scores[candidates[0].ID]
	if len(candidates) == 1 || best-scores[candidates[1].ID] >= accountClearWinnerGap {
		tr.Add("resolve_account", "semantic match %q at %.2f", candidates[0].Name, best)
		return AccountResolution{Account: &candidates[0]}, nil
	}

	tr.Add("resolve_account", "%d accounts within %.2f of the best score", len(candidates), accountClearWinnerGap)
	return AccountResolution{Candidates: candidates, Ambiguous: true}, nil
}
