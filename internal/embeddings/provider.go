package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// EmbeddingProvider is an interface for generating embeddings from text.
// Implementations must return a non-empty vector or an error; an empty vector
// is never a valid success result.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GetEmbeddingModelName() string
}

// Hash creates a SHA-256 hash of the content, used to detect when a stored
// embedding no longer matches the text it was generated from
func Hash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
