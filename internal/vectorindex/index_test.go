package vectorindex

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func randomVector(r *rand.Rand) Vector {
	v := make(Vector, testDim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func trainedIndex(t *testing.T, nlist, pqM, pqNBits, samples int) (*Index, []Vector) {
	t.Helper()
	ix, err := New(testDim, nlist, pqM, pqNBits)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	training := make([]Vector, samples)
	for i := range training {
		training[i] = randomVector(r)
	}
	require.NoError(t, ix.Train(training))
	return ix, training
}

func TestNewRejectsPQMNotDividingDimension(t *testing.T) {
	_, err := New(10, 4, 3, 8)
	assert.Error(t, err)
}

func TestTrainRejectsInsufficientSamples(t *testing.T) {
	ix, err := New(testDim, 16, 2, 4)
	require.NoError(t, err)
	err = ix.Train(make([]Vector, 2))
	assert.Error(t, err)
}

func TestTrainIsOnceOnly(t *testing.T) {
	ix, training := trainedIndex(t, 4, 2, 4, 20)
	err := ix.Train(training)
	assert.Error(t, err)
}

func TestAddRequiresTrainedState(t *testing.T) {
	ix, err := New(testDim, 4, 2, 4)
	require.NoError(t, err)
	err = ix.Add([]int64{1}, []Vector{make(Vector, testDim)})
	assert.Error(t, err)
}

func TestAddThenSearchFindsNearVector(t *testing.T) {
	ix, training := trainedIndex(t, 4, 2, 4, 40)

	ids := make([]int64, len(training))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	require.NoError(t, ix.Add(ids, training))
	assert.Equal(t, len(training), ix.NTotal())

	query := training[5]
	results, err := ix.Search(query, 5, 4)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	found := false
	for _, r := range results {
		if r.ID == ids[5] {
			found = true
		}
	}
	assert.True(t, found, "expected the exact training vector's id to be recalled")
}

func TestSearchReturnsAtMostK(t *testing.T) {
	ix, training := trainedIndex(t, 4, 2, 4, 40)
	ids := make([]int64, len(training))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	require.NoError(t, ix.Add(ids, training))

	results, err := ix.Search(training[0], 3, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)
}

func TestSearchResultsAreDescendingByScore(t *testing.T) {
	ix, training := trainedIndex(t, 4, 2, 4, 40)
	ids := make([]int64, len(training))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	require.NoError(t, ix.Add(ids, training))

	results, err := ix.Search(training[0], 10, 4)
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestVerifyDetectsDuplicateID(t *testing.T) {
	ix, training := trainedIndex(t, 4, 2, 4, 20)
	require.NoError(t, ix.Add([]int64{1, 1}, training[:2]))
	assert.Error(t, ix.Verify())
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	ix, training := trainedIndex(t, 4, 2, 4, 40)
	ids := make([]int64, len(training))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	require.NoError(t, ix.Add(ids, training))

	path := filepath.Join(t.TempDir(), "vectors.kgsv")
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Trained())
	assert.Equal(t, ix.NTotal(), loaded.NTotal())

	results, err := loaded.Search(training[0], 5, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestLoadRejectsMissingMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.kgsv")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
