package search

import (
	"sort"

	"github.com/madjor5/penny-pal/internal/types"
)

const (
	// defaultItemThreshold is the minimum cosine similarity for a receipt
	// line item to count as a product match
	defaultItemThreshold = 0.5

	// similarityTieGap is the band within which two similarity scores are
	// too close to rank on score alone; runs of near-tied matches are
	// ordered by purchase date instead
	similarityTieGap = 0.05

	// accountSimilarityThreshold is the minimum similarity for an account
	// hint to match an account semantically
	accountSimilarityThreshold = 0.65

	// accountClearWinnerGap is how far ahead of the runner-up the best
	// semantic account match must be to win outright
	accountClearWinnerGap = 0.15
)

// rankItemMatches orders matches by similarity, highest first, then reorders
// runs of near-identical scores by transaction date so a marginally higher
// score never outranks a much more recent purchase. A run is a maximal
// stretch of the sorted scores in which each adjacent pair differs by at most
// similarityTieGap.
func rankItemMatches(matches []types.ItemMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	start := 0
	for i := 1; i <= len(matches); i++ {
		if i < len(matches) && matches[i-1].Similarity-matches[i].Similarity <= similarityTieGap {
			continue
		}
		if i-start > 1 {
			run := matches[start:i]
			sort.SliceStable(run, func(a, b int) bool {
				return run[a].Transaction.Date.After(run[b].Transaction.Date)
			})
		}
		start = i
	}
}
