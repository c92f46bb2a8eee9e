package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/recordsql/recordsql/internal/embedding"
)

type Entity struct {
	ID   int64
	Name string
}

// Embed embeds entity names in chunks and returns the matrix and the parallel
// id array. Entities with blank names are skipped.
func Embed(ctx context.Context, embedder embedding.Embedder, entities []Entity, chunkSize int) ([][]float32, []int64, error) {
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder is required")
	}
	if chunkSize <= 0 {
		chunkSize = 256
	}
	kept := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		if strings.TrimSpace(entity.Name) == "" {
			continue
		}
		kept = append(kept, entity)
	}

	vectors := make([][]float32, 0, len(kept))
	ids := make([]int64, 0, len(kept))
	for start := 0; start < len(kept); start += chunkSize {
		end := min(start+chunkSize, len(kept))
		names := make([]string, 0, end-start)
		for _, entity := range kept[start:end] {
			names = append(names, strings.TrimSpace(entity.Name))
		}
		embedded, err := embedder.EmbedText(ctx, names)
		if err != nil {
			return nil, nil, fmt.Errorf("embed entities %d-%d: %w", start, end, err)
		}
		if len(embedded) != len(names) {
			return nil, nil, fmt.Errorf("embedder returned %d vectors for %d names", len(embedded), len(names))
		}
		vectors = append(vectors, embedded...)
		for _, entity := range kept[start:end] {
			ids = append(ids, entity.ID)
		}
	}
	return vectors, ids, nil
}
