package search

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kugutsushi/engine/internal/catalogue"
	"github.com/kugutsushi/engine/internal/config"
	"github.com/kugutsushi/engine/internal/embed"
	kerrors "github.com/kugutsushi/engine/internal/errors"
	"github.com/kugutsushi/engine/internal/lexical"
	"github.com/kugutsushi/engine/internal/rescheck"
	"github.com/kugutsushi/engine/internal/vectorindex"
)

// Searcher is the Hybrid Searcher (C7): it owns no state of its own,
// dispatching to the Vector Index, Lexical Index, and Catalogue handed
// to it at construction.
type Searcher struct {
	vectorIndex *vectorindex.Index
	lexicalIdx  *lexical.Index
	catalogue   *catalogue.Catalogue
	embedder    embed.Embedder
	reranker    embed.Reranker
	resCheck    *rescheck.Checker
	cfg         config.Config
}

// New builds a Searcher. reranker may be nil if no mode uses it; a nil
// reranker on ModeHybridRerank falls back to fused ordering. resCheck
// may be nil, which disables the memory-ceiling rerank gate entirely
// (equivalent to a Checker built with a non-positive ceiling).
func New(vectorIndex *vectorindex.Index, lexicalIdx *lexical.Index, cat *catalogue.Catalogue, embedder embed.Embedder, reranker embed.Reranker, resCheck *rescheck.Checker, cfg config.Config) *Searcher {
	return &Searcher{
		vectorIndex: vectorIndex,
		lexicalIdx:  lexicalIdx,
		catalogue:   cat,
		embedder:    embedder,
		reranker:    reranker,
		resCheck:    resCheck,
		cfg:         cfg,
	}
}

// Search runs the query lifecycle: received -> dispatched(vector, bm25)
// -> fused -> [reranked] -> hydrated -> returned.
func (s *Searcher) Search(ctx context.Context, queryText string, mode Mode, topK int) (*Response, error) {
	if queryText == "" {
		return &Response{Results: nil, State: StateReturned}, nil
	}

	if topK <= 0 {
		topK = s.cfg.Search.DefaultTopK
	}
	if topK > s.cfg.Search.MaxTopK {
		topK = s.cfg.Search.MaxTopK
	}
	fetch := shortlistSize(topK, s.cfg.Search.ShortlistFloor)

	vectorHits, bm25Hits, degraded, err := s.dispatch(ctx, queryText, mode, fetch)
	if err != nil {
		return nil, err
	}

	fusedList := reciprocalRankFusion(vectorHits, bm25Hits, s.cfg.Search.RRFConstant, s.cfg.Search.VectorWeight, s.cfg.Search.BM25Weight)
	if topK < len(fusedList) {
		fusedList = fusedList[:topK]
	}

	finalIDs, finalScores, _, memDegraded := s.rerankIfRequested(ctx, queryText, mode, fusedList)

	results, err := s.hydrate(queryText, finalIDs, finalScores)
	if err != nil {
		return nil, err
	}

	return &Response{Results: results, State: StateReturned, Degraded: degraded || memDegraded}, nil
}

// dispatch runs the vector and (for hybrid modes) bm25 sub-retrievers
// in parallel with per-stage deadlines, degrading gracefully if one
// fails.
func (s *Searcher) dispatch(ctx context.Context, queryText string, mode Mode, fetch int) (vectorHits, bm25Hits []candidate, degraded bool, err error) {
	var vectorErr, bm25Err error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vctx, cancel := context.WithTimeout(gctx, s.cfg.Deadlines.Vector)
		defer cancel()
		vectorHits, vectorErr = s.searchVector(vctx, queryText, fetch)
		return nil
	})

	runBM25 := mode != ModeVector
	if runBM25 {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, s.cfg.Deadlines.BM25)
			defer cancel()
			bm25Hits, bm25Err = s.searchBM25(bctx, queryText, fetch)
			return nil
		})
	}
	_ = g.Wait()

	if mode == ModeVector {
		if vectorErr != nil {
			return nil, nil, false, kerrors.QueryDegraded("vector search failed and no fallback retriever is configured in vector-only mode").WithDetail("cause", vectorErr.Error())
		}
		return vectorHits, nil, false, nil
	}

	if vectorErr != nil && bm25Err != nil {
		return nil, nil, false, kerrors.QueryDegraded("both sub-retrievers failed").
			WithDetail("vector_error", vectorErr.Error()).
			WithDetail("bm25_error", bm25Err.Error())
	}
	if vectorErr != nil {
		return nil, bm25Hits, true, nil
	}
	if bm25Err != nil {
		return vectorHits, nil, true, nil
	}
	return vectorHits, bm25Hits, false, nil
}

func (s *Searcher) searchVector(ctx context.Context, queryText string, n int) ([]candidate, error) {
	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectorIndex.Search(vectorindex.Vector(vec), n, s.cfg.Vector.NProbe)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = candidate{ID: h.ID, Rank: i + 1, Score: h.Score}
	}
	return out, nil
}

func (s *Searcher) searchBM25(ctx context.Context, queryText string, n int) ([]candidate, error) {
	hits, err := s.lexicalIdx.Search(queryText, n)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = candidate{ID: h.ID, Rank: i + 1, Score: h.Score}
	}
	return out, nil
}

// rerankIfRequested reorders the rerank pool (min(rerank_pool_max,
// |fused|) top fused results) by 0.5*normalise(rrf)+0.5*sigmoid(rerank),
// falling back silently to fused ordering on any reranker failure. It
// also declines to rerank — and reports memDegraded — when resCheck
// says the process is over its soft memory ceiling, since building the
// rerank pool and scoring it is the most memory-hungry step of a query.
func (s *Searcher) rerankIfRequested(ctx context.Context, queryText string, mode Mode, fusedList []fused) (ids []int64, scores map[int64]float64, state State, memDegraded bool) {
	scores = make(map[int64]float64, len(fusedList))
	for _, f := range fusedList {
		scores[f.ID] = f.RRFScore
	}
	ids = make([]int64, len(fusedList))
	for i, f := range fusedList {
		ids[i] = f.ID
	}

	if mode != ModeHybridRerank || s.reranker == nil || len(fusedList) == 0 {
		return ids, scores, StateFused, false
	}

	if s.resCheck != nil && !s.resCheck.Allow() {
		return ids, scores, StateFused, true
	}

	poolSize := rerankPoolSize(s.cfg.Search.RerankPoolMax, len(fusedList))
	pool := fusedList[:poolSize]
	poolIDs := make([]int64, len(pool))
	for i, f := range pool {
		poolIDs[i] = f.ID
	}

	passages, err := s.catalogue.GetPassagesByIDs(poolIDs)
	if err != nil {
		return ids, scores, StateFused, false
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.Deadlines.Rerank)
	rerankScores, err := s.reranker.Score(rctx, queryText, texts)
	cancel()
	if err != nil || len(rerankScores) != len(pool) {
		return ids, scores, StateFused, false
	}

	rrfScores := make([]float64, len(pool))
	for i, f := range pool {
		rrfScores[i] = f.RRFScore
	}
	normalizedRRF := normalise(rrfScores)

	type reranked struct {
		id    int64
		score float64
	}
	combined := make([]reranked, len(pool))
	for i, f := range pool {
		combined[i] = reranked{
			id:    f.ID,
			score: 0.5*normalizedRRF[i] + 0.5*sigmoid(rerankScores[i]),
		}
	}
	sort.Slice(combined, func(i, j int) bool {
		if combined[i].score != combined[j].score {
			return combined[i].score > combined[j].score
		}
		return combined[i].id < combined[j].id
	})

	newIDs := make([]int64, 0, len(fusedList))
	newScores := make(map[int64]float64, len(fusedList))
	for _, c := range combined {
		newIDs = append(newIDs, c.id)
		newScores[c.id] = c.score
	}
	for _, f := range fusedList[poolSize:] {
		newIDs = append(newIDs, f.ID)
		newScores[f.ID] = f.RRFScore
	}
	return newIDs, newScores, StateReranked, false
}

// hydrate fetches passage text from the Catalogue for the final id
// order and builds each Result's snippet.
func (s *Searcher) hydrate(queryText string, ids []int64, scores map[int64]float64) ([]Result, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	passages, err := s.catalogue.GetPassagesByIDs(ids)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(passages))
	for i, p := range passages {
		results[i] = Result{
			ID:         p.ID,
			Source:     p.SourcePath,
			Page:       p.PageNumber,
			ChunkIndex: p.ChunkIndex,
			Score:      scores[p.ID],
			Text:       p.Text,
			Snippet:    buildSnippet(queryText, p.Text),
		}
	}
	return results, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
