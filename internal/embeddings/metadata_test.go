package embeddings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingMetadataToMapAndFromMap(t *testing.T) {
	meta := EmbeddingMetadata{
		ContentHash: "abc123",
		ModelName:   "test-model",
		Length:      42,
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
	m := meta.ToMap()
	parsed, err := EmbeddingFromMap(m)
	assert.NoError(t, err)
	assert.Equal(t, meta.ContentHash, parsed.ContentHash)
	assert.Equal(t, meta.ModelName, parsed.ModelName)
	assert.Equal(t, meta.Length, parsed.Length)
	// Allow a small delta for time parsing
	assert.WithinDuration(t, meta.LastUpdated, parsed.LastUpdated, time.Second)
}

func TestEmbeddingMetadataMatchContent(t *testing.T) {
	content := "Organic Bananas"
	meta := EmbeddingMetadata{ContentHash: Hash(content)}
	assert.True(t, meta.MatchContent(content))
	assert.False(t, meta.MatchContent("Banana Chips"))
}

func TestHashDeterministic(t *testing.T) {
	content := "2% Reduced Fat Milk"
	h1 := Hash(content)
	h2 := Hash(content)
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
}
