package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/philippgille/chromem-go"

	"github.com/madjor5/penny-pal/internal/embeddings"
)

// ChromemIndex is an optional persistent vector index over receipt line
// items, maintained at import and backfill time. Queries return the same
// threshold-filtered, similarity-ordered hits as Scan, so the searcher can
// use it as a drop-in candidate source and fall back to the full scan when
// the index is unavailable.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *log.Logger
	modelName  string
}

// NewChromemIndex opens (or creates) the persistent index under dataDir
func NewChromemIndex(dataDir string, provider embeddings.EmbeddingProvider, logger *log.Logger) (*ChromemIndex, error) {
	dbPath := filepath.Join(dataDir, "chromem-go")

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return provider.GenerateEmbedding(ctx, text)
	}

	db, err := chromem.NewPersistentDB(dbPath, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem database: %w", err)
	}

	collection, err := db.GetOrCreateCollection("receipt_items", nil, embeddingFunc)
	if err != nil {
		db.Reset()
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	idx := &ChromemIndex{
		db:         db,
		collection: collection,
		logger:     logger,
		modelName:  provider.GetEmbeddingModelName(),
	}

	logger.Info("Opened chromem vector index",
		"path", dbPath,
		"document_count", collection.Count(),
		"model_name", idx.modelName)

	return idx, nil
}

// Add stores one line item's embedding under its row ID
func (x *ChromemIndex) Add(ctx context.Context, id, text string, embedding []float32, metadata embeddings.EmbeddingMetadata) error {
	doc, err := chromem.NewDocument(ctx, id, metadata.ToMap(), embedding, text, nil)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document to collection: %w", err)
	}
	x.logger.Debug("Indexed embedding", "id", id, "content_hash", metadata.ContentHash)
	return nil
}

// Has reports whether the index holds a document for the given row ID and
// returns its metadata if so
func (x *ChromemIndex) Has(ctx context.Context, id string) (bool, embeddings.EmbeddingMetadata, error) {
	doc, err := x.collection.GetByID(ctx, id)
	if err != nil {
		return false, embeddings.EmbeddingMetadata{}, nil
	}
	metadata, err := embeddings.EmbeddingFromMap(doc.Metadata)
	if err != nil {
		return false, embeddings.EmbeddingMetadata{}, fmt.Errorf("failed to parse metadata for id %s: %w", id, err)
	}
	return true, metadata, nil
}

// Count reports how many documents the index holds
func (x *ChromemIndex) Count() int {
	return x.collection.Count()
}

// Query returns indexed rows with similarity at or above threshold, highest
// first. An empty index yields no hits rather than an error.
func (x *ChromemIndex) Query(ctx context.Context, embedding []float32, threshold float64) ([]Hit, error) {
	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}

	results, err := x.collection.QueryEmbedding(ctx, embedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	var hits []Hit
	for _, result := range results {
		sim := float64(result.Similarity)
		if sim < threshold {
			continue
		}
		hits = append(hits, Hit{ID: result.ID, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// Remove deletes a document by row ID
func (x *ChromemIndex) Remove(ctx context.Context, id string) error {
	return x.collection.Delete(ctx, nil, nil, id)
}

// Close is a no-op: chromem persists on every write
func (x *ChromemIndex) Close() error {
	return nil
}
