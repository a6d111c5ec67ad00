package commands

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/madjor5/penny-pal/internal/embeddings"
	"github.com/madjor5/penny-pal/internal/index"
)

// SetupVectorIndex opens the optional chromem vector index stored under dataDir
func SetupVectorIndex(
	dataDir string,
	provider embeddings.EmbeddingProvider,
	logger *log.Logger,
) (*index.ChromemIndex, error) {
	idx, err := index.NewChromemIndex(dataDir, provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	return idx, nil
}
