package embed

import "context"

// NoOpReranker is the fallback reranker: it assigns strictly
// decreasing scores that preserve the fused ordering passed in, so a
// caller that falls back to it degrades to fused ordering rather than
// failing the query.
type NoOpReranker struct{}

// Score returns len(passages) decreasing scores, one per passage, in
// the order given.
func (NoOpReranker) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	for i := range passages {
		scores[i] = float64(len(passages) - i)
	}
	return scores, nil
}
