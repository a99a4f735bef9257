package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReciprocalRankFusionSumsContributionsAcrossLists(t *testing.T) {
	vectorHits := []candidate{{ID: 1, Rank: 1}, {ID: 2, Rank: 2}}
	bm25Hits := []candidate{{ID: 2, Rank: 1}, {ID: 3, Rank: 2}}

	out := reciprocalRankFusion(vectorHits, bm25Hits, 60, 0.7, 0.3)

	scoreByID := make(map[int64]float64)
	for _, f := range out {
		scoreByID[f.ID] = f.RRFScore
	}
	assert.InDelta(t, 0.7/61, scoreByID[1], 1e-9)
	assert.InDelta(t, 0.7/62+0.3/61, scoreByID[2], 1e-9)
	assert.InDelta(t, 0.3/62, scoreByID[3], 1e-9)
}

func TestReciprocalRankFusionSortsDescendingThenTieBreaksByID(t *testing.T) {
	vectorHits := []candidate{{ID: 5, Rank: 1}, {ID: 1, Rank: 1}}
	out := reciprocalRankFusion(vectorHits, nil, 60, 0.7, 0.3)
	assert.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ID) // equal rank => equal score => ascending id breaks tie
}

func TestShortlistSizeAppliesFloor(t *testing.T) {
	assert.Equal(t, 40, shortlistSize(5, 40))
	assert.Equal(t, 40, shortlistSize(9, 40))
	assert.Equal(t, 44, shortlistSize(11, 40))
}

func TestRerankPoolSizeCapsAtMax(t *testing.T) {
	assert.Equal(t, 10, rerankPoolSize(30, 10))
	assert.Equal(t, 30, rerankPoolSize(30, 100))
}

func TestNormaliseMinMaxScalesToUnitRange(t *testing.T) {
	out := normalise([]float64{1, 2, 3})
	assert.Equal(t, []float64{0, 0.5, 1}, out)
}

func TestNormaliseConstantInputMapsToOne(t *testing.T) {
	out := normalise([]float64{2, 2, 2})
	assert.Equal(t, []float64{1, 1, 1}, out)
}
