package index

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madjor5/penny-pal/internal/embeddings"
)

// mockEmbeddingProvider implements embeddings.EmbeddingProvider for testing
type mockEmbeddingProvider struct{}

func (m *mockEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1.0, 2.0, 3.0}, nil
}
func (m *mockEmbeddingProvider) GetEmbeddingModelName() string {
	return "mock-model"
}

func TestChromemIndexIntegration(t *testing.T) {
	logger := log.New(io.Discard)
	provider := &mockEmbeddingProvider{}

	idx, err := NewChromemIndex(t.TempDir(), provider, logger)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	id := "item-1"
	text := "Organic Bananas"
	embedding, _ := provider.GenerateEmbedding(ctx, text)
	meta := embeddings.EmbeddingMetadata{
		ContentHash: embeddings.Hash(text),
		ModelName:   provider.GetEmbeddingModelName(),
		Length:      len(embedding),
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}

	err = idx.Add(ctx, id, text, embedding, meta)
	assert.NoError(t, err)

	exists, gotMeta, err := idx.Has(ctx, id)
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, meta.ContentHash, gotMeta.ContentHash)
	assert.Equal(t, meta.ModelName, gotMeta.ModelName)
	assert.Equal(t, meta.Length, gotMeta.Length)

	hits, err := idx.Query(ctx, embedding, 0.9)
	assert.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-3)

	err = idx.Remove(ctx, id)
	assert.NoError(t, err)

	exists, _, err = idx.Has(ctx, id)
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemIndexQueryEmptyCollection(t *testing.T) {
	logger := log.New(io.Discard)
	idx, err := NewChromemIndex(t.TempDir(), &mockEmbeddingProvider{}, logger)
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Query(context.Background(), []float32{1, 2, 3}, 0.5)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}
