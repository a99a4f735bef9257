package vectorindex

import (
	"fmt"
	"sort"
	"sync"

	kerrors "github.com/kugutsushi/engine/internal/errors"
)

// Result is a single search hit.
type Result struct {
	ID    int64
	Score float64
}

type posting struct {
	ID   int64
	Code []byte
}

// Index is an IVF-PQ structure with exact-refinement rescoring
// (RFlat). IVF(nlist=256), PQ(M=16, nbits=8) per the retrieval
// contract; vectors are L2-normalised before training, adding, and
// querying so inner product equals cosine similarity.
type Index struct {
	mu sync.RWMutex

	dim     int
	nlist   int
	pqM     int
	pqNBits int
	subDim  int

	trained         bool
	trainingSamples int

	coarseCentroids []Vector
	codebooks       [][]Vector // [pqM][2^pqNBits]Vector(subDim)

	lists  map[int][]posting
	nTotal int
}

// New constructs an untrained index for the given dimension and
// structural parameters (nlist, PQ M, PQ nbits).
func New(dimension, nlist, pqM, pqNBits int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	if pqM <= 0 || dimension%pqM != 0 {
		return nil, fmt.Errorf("pq_m must evenly divide dimension")
	}
	return &Index{
		dim:     dimension,
		nlist:   nlist,
		pqM:     pqM,
		pqNBits: pqNBits,
		subDim:  dimension / pqM,
		lists:   make(map[int][]posting),
	}, nil
}

func (ix *Index) codebookSize() int {
	return 1 << uint(ix.pqNBits)
}

// Train builds the coarse quantizer and the per-subquantizer
// codebooks from a training sample. Training may occur only once per
// index; the codebook is then immutable for the index's lifetime.
func (ix *Index) Train(vectors []Vector) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.trained {
		return kerrors.IndexCorruption("vector index is already trained; reset requires full rebuild", nil)
	}
	if len(vectors) < ix.nlist {
		return fmt.Errorf("need at least %d training vectors, got %d", ix.nlist, len(vectors))
	}

	normed := make([]Vector, len(vectors))
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("training vector %d has dimension %d, want %d", i, len(v), ix.dim)
		}
		normed[i] = Normalize(v)
	}

	ix.coarseCentroids = kMeans(normed, ix.nlist, 25)

	codebookSize := ix.codebookSize()
	ix.codebooks = make([][]Vector, ix.pqM)
	for m := 0; m < ix.pqM; m++ {
		subVectors := make([]Vector, len(normed))
		for i, v := range normed {
			subVectors[i] = v[m*ix.subDim : (m+1)*ix.subDim]
		}
		ix.codebooks[m] = kMeans(subVectors, codebookSize, 25)
	}

	ix.trained = true
	ix.trainingSamples = len(vectors)
	return nil
}

// Add appends ids and their vectors. Requires trained state. Addition
// is append-only; there is no duplicate-id check, as the Catalogue
// guarantees id uniqueness.
func (ix *Index) Add(ids []int64, vectors []Vector) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.trained {
		return kerrors.IndexCorruption("cannot add vectors before training", nil)
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), ix.dim)
		}
		normed := Normalize(v)
		list := nearest(normed, ix.coarseCentroids)
		code := ix.encode(normed)
		ix.lists[list] = append(ix.lists[list], posting{ID: ids[i], Code: code})
		ix.nTotal++
	}
	return nil
}

func (ix *Index) encode(v Vector) []byte {
	code := make([]byte, ix.pqM)
	for m := 0; m < ix.pqM; m++ {
		sub := v[m*ix.subDim : (m+1)*ix.subDim]
		code[m] = byte(nearest(sub, ix.codebooks[m]))
	}
	return code
}

func (ix *Index) reconstruct(code []byte) Vector {
	out := make(Vector, ix.dim)
	for m := 0; m < ix.pqM; m++ {
		centroid := ix.codebooks[m][code[m]]
		copy(out[m*ix.subDim:(m+1)*ix.subDim], centroid)
	}
	return out
}

// Search returns at most k results ordered by descending score. It
// probes the nprobe nearest coarse lists, ranks candidates by an
// asymmetric-distance-computation table lookup, then re-scores the
// short-list by an exact inner product against each candidate's
// quantised reconstruction (RFlat) to stabilise ranking near the top.
func (ix *Index) Search(query Vector, k, nprobe int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.trained {
		return nil, kerrors.IndexCorruption("cannot search before training", nil)
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query vector has dimension %d, want %d", len(query), ix.dim)
	}
	if nprobe <= 0 {
		nprobe = 8
	}
	if nprobe > ix.nlist {
		nprobe = ix.nlist
	}

	q := Normalize(query)
	probedLists := ix.nearestLists(q, nprobe)

	adcTable := ix.buildADCTable(q)

	type candidate struct {
		posting posting
		adc     float64
	}
	var candidates []candidate
	for _, list := range probedLists {
		for _, p := range ix.lists[list] {
			candidates = append(candidates, candidate{posting: p, adc: adcScore(adcTable, p.Code)})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].adc > candidates[j].adc })

	shortlistSize := k * 4
	if shortlistSize < 40 {
		shortlistSize = 40
	}
	if shortlistSize > len(candidates) {
		shortlistSize = len(candidates)
	}
	shortlist := candidates[:shortlistSize]

	results := make([]Result, len(shortlist))
	for i, c := range shortlist {
		reconstructed := ix.reconstruct(c.posting.Code)
		results[i] = Result{ID: c.posting.ID, Score: dot(q, reconstructed)}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (ix *Index) nearestLists(q Vector, nprobe int) []int {
	type scored struct {
		list int
		dist float64
	}
	scores := make([]scored, len(ix.coarseCentroids))
	for i, c := range ix.coarseCentroids {
		scores[i] = scored{list: i, dist: squaredL2(q, c)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	out := make([]int, 0, nprobe)
	for i := 0; i < nprobe && i < len(scores); i++ {
		out = append(out, scores[i].list)
	}
	return out
}

// buildADCTable precomputes, for each subquantizer, the dot product of
// the query's sub-vector against every codebook centroid.
func (ix *Index) buildADCTable(q Vector) [][]float64 {
	table := make([][]float64, ix.pqM)
	for m := 0; m < ix.pqM; m++ {
		sub := q[m*ix.subDim : (m+1)*ix.subDim]
		table[m] = make([]float64, len(ix.codebooks[m]))
		for c, centroid := range ix.codebooks[m] {
			table[m][c] = dot(sub, centroid)
		}
	}
	return table
}

func adcScore(table [][]float64, code []byte) float64 {
	sum := 0.0
	for m, c := range code {
		sum += table[m][c]
	}
	return sum
}

// NTotal returns the number of added vectors (across all lists).
func (ix *Index) NTotal() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.nTotal
}

// Trained reports whether the index has completed training.
func (ix *Index) Trained() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.trained
}

// Verify checks internal consistency: trained state, that the code
// count matches the id count, and that ids are injective (no id
// appears twice, which would indicate a corrupted add).
func (ix *Index) Verify() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.trained {
		return kerrors.IndexCorruption("index reports untrained state", nil)
	}

	seen := make(map[int64]bool, ix.nTotal)
	codeCount := 0
	for _, postings := range ix.lists {
		for _, p := range postings {
			codeCount++
			if len(p.Code) != ix.pqM {
				return kerrors.IndexCorruption("code length does not match pq_m", nil)
			}
			if seen[p.ID] {
				return kerrors.IndexCorruption("duplicate id across inverted lists", nil).WithDetail("id", fmt.Sprint(p.ID))
			}
			seen[p.ID] = true
		}
	}
	if codeCount != ix.nTotal {
		return kerrors.IndexCorruption("code count does not match recorded total", nil)
	}
	return nil
}
