package embeddings

import (
	"fmt"
	"strconv"
	"time"
)

// EmbeddingMetadata describes a stored vector: what text it was computed
// from, with which model, and when
type EmbeddingMetadata struct {
	ContentHash string    `json:"content_hash"`
	ModelName   string    `json:"model_name"`
	Length      int       `json:"length"`
	LastUpdated time.Time `json:"last_updated"`
}

func (m *EmbeddingMetadata) ToMap() map[string]string {
	return map[string]string{
		"content_hash": m.ContentHash,
		"model_name":   m.ModelName,
		"length":       strconv.Itoa(m.Length),
		"last_updated": m.LastUpdated.Format(time.RFC3339),
	}
}

func EmbeddingFromMap(metadata map[string]string) (EmbeddingMetadata, error) {
	length, err := strconv.Atoi(metadata["length"])
	if err != nil {
		return EmbeddingMetadata{}, fmt.Errorf("failed to parse length: %w", err)
	}
	lastUpdated, err := time.Parse(time.RFC3339, metadata["last_updated"])
	if err != nil {
		return EmbeddingMetadata{}, fmt.Errorf("failed to parse last updated: %w", err)
	}
	return EmbeddingMetadata{
		ContentHash: metadata["content_hash"],
		ModelName:   metadata["model_name"],
		Length:      length,
		LastUpdated: lastUpdated,
	}, nil
}

// MatchContent reports whether the metadata was computed from the given text
func (m *EmbeddingMetadata) MatchContent(content string) bool {
	return m.ContentHash == Hash(content)
}
