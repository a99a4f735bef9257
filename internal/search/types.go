// Package search implements the Hybrid Searcher (C7): it runs the
// Vector and Lexical indices in parallel, fuses their shortlists with
// Reciprocal Rank Fusion, optionally reranks, and hydrates results
// with snippets from the Catalogue. Sub-retriever failures degrade
// gracefully rather than failing the whole query, following the
// teacher's FusionSearcher.
package search

// Mode selects which sub-retrievers participate in a query.
type Mode string

const (
	ModeVector       Mode = "vector"
	ModeHybrid       Mode = "hybrid"
	ModeHybridRerank Mode = "hybrid+rerank"
)

// State is a query's position in its lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateDispatched State = "dispatched"
	StateFused      State = "fused"
	StateReranked   State = "reranked"
	StateHydrated   State = "hydrated"
	StateReturned   State = "returned"
)

// Result is one returned passage, hydrated with source context and a snippet.
type Result struct {
	ID         int64
	Source     string
	Page       int
	ChunkIndex int
	Score      float64
	Text       string
	Snippet    string
}

// Response is the outcome of a query, including the final lifecycle
// state and whether it proceeded in degraded mode (one sub-retriever
// failed, or reranking was skipped under the memory ceiling).
type Response struct {
	Results  []Result
	State    State
	Degraded bool
}

// candidate is a sub-retriever hit before fusion.
type candidate struct {
	ID    int64
	Rank  int // 1-indexed
	Score float64
}
