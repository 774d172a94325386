package memory

import "context"

// VectorMatch is one nearest-neighbor hit from the vector store.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// IndexStats summarizes the state of the backing index.
type IndexStats struct {
	Count     int
	Dimension int
	Fullness  float64
}

// VectorStore is the interface to the vector index backend. The production
// implementation talks to a Pinecone index over HTTP.
type VectorStore interface {
	Upsert(ctx context.Context, id string, values []float32, metadata map[string]any) error
	Query(ctx context.Context, values []float32, topK int) ([]VectorMatch, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (IndexStats, error)
}
