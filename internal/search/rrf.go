package search

import "sort"

// fused is a passage's accumulated RRF score plus its vector rank,
// kept for the documented tie-break order.
type fused struct {
	ID         int64
	RRFScore   float64
	VectorRank int // 0 if absent from the vector list
}

// reciprocalRankFusion combines vector and bm25 candidate lists:
// score(d) = Σ weight_list / (k_rrf + rank_in_list), summed over
// whichever lists contain d. The result is sorted by descending RRF
// score, ties broken by vector score (rank ascending, i.e. better),
// then by ascending id.
func reciprocalRankFusion(vectorHits, bm25Hits []candidate, kRRF int, vectorWeight, bm25Weight float64) []fused {
	scores := make(map[int64]*fused)

	for _, c := range vectorHits {
		scores[c.ID] = &fused{
			ID:         c.ID,
			RRFScore:   vectorWeight / float64(kRRF+c.Rank),
			VectorRank: c.Rank,
		}
	}
	for _, c := range bm25Hits {
		contribution := bm25Weight / float64(kRRF+c.Rank)
		if existing, ok := scores[c.ID]; ok {
			existing.RRFScore += contribution
		} else {
			scores[c.ID] = &fused{ID: c.ID, RRFScore: contribution}
		}
	}

	out := make([]fused, 0, len(scores))
	for _, f := range scores {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		iRank, jRank := out[i].VectorRank, out[j].VectorRank
		if iRank == 0 {
			iRank = int(^uint(0) >> 1)
		}
		if jRank == 0 {
			jRank = int(^uint(0) >> 1)
		}
		if iRank != jRank {
			return iRank < jRank // a better (lower, i.e. closer to rank 1) vector rank wins ties
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// shortlistSize is max(top_k * 4, 40), the per-sub-retriever fetch size.
func shortlistSize(topK, floor int) int {
	n := topK * 4
	if n < floor {
		return floor
	}
	return n
}

// rerankPoolSize is min(30, |fused|).
func rerankPoolSize(maxPool, fusedLen int) int {
	if fusedLen < maxPool {
		return fusedLen
	}
	return maxPool
}

// normalise min-max scales scores to [0, 1]. A constant input maps to 1.
func normalise(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}
