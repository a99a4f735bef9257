// Package embed defines the pluggable Embedder and Reranker
// collaborator interfaces, plus a reference Ollama-style HTTP embedder
// and an LRU-caching decorator, adapted from the teacher's embedding
// client at a scale appropriate for a library rather than a
// long-running daemon.
package embed

import "context"

// Embedder turns passage or query text into a dense vector. Concrete
// ML runtimes are kept out of the retrieval core proper: callers wire
// in whichever implementation matches their deployment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Reranker scores a (query, passage) pair with a cross-encoder-style
// real-valued relevance judgment, higher is more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}
