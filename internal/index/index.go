package index

import (
	"sort"

	"github.com/madjor5/penny-pal/internal/vector"
)

// Doc is one candidate row in the transient semantic index. The index owns no
// data: callers load a fresh snapshot from the store for every search, so
// results always reflect the latest persisted state.
type Doc struct {
	ID        string
	Embedding []float32
}

// Hit is a candidate scored against a query embedding
type Hit struct {
	ID         string
	Similarity float64
}

// Scan scores every doc against the query embedding and returns those at or
// above threshold, highest similarity first with ID as the final tie-break.
// Docs with a missing or mismatched embedding score 0.
func Scan(query []float32, docs []Doc, threshold float64) []Hit {
	hits := make([]Hit, 0, len(docs))
	for _, doc := range docs {
		sim := vector.Cosine(query, doc.Embedding)
		if sim < threshold {
			continue
		}
		hits = append(hits, Hit{ID: doc.ID, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}
