package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOllamaServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls++
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = float32(i + 1)
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}))
}

func TestOllamaEmbedderEmbedReturnsConfiguredDimensions(t *testing.T) {
	srv := fakeOllamaServer(t, 4)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "test-model", 4)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestOllamaEmbedderHealthCheckSucceeds(t *testing.T) {
	srv := fakeOllamaServer(t, 4)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "test-model", 4)
	assert.NoError(t, e.HealthCheck(context.Background()))
}

func TestOllamaEmbedderEmbedBatchEmbedsEachText(t *testing.T) {
	srv := fakeOllamaServer(t, 3)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "test-model", 3)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestCachedEmbedderAvoidsDuplicateCallsForSameText(t *testing.T) {
	srv := fakeOllamaServer(t, 2)
	defer srv.Close()

	inner := NewOllamaEmbedder(srv.URL, "test-model", 2)
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	v1, err := cached.Embed(context.Background(), "repeat me")
	require.NoError(t, err)
	v2, err := cached.Embed(context.Background(), "repeat me")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestCachedEmbedderBatchOnlyCallsThroughForMisses(t *testing.T) {
	srv := fakeOllamaServer(t, 2)
	defer srv.Close()

	inner := NewOllamaEmbedder(srv.URL, "test-model", 2)
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "cached text")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), []string{"cached text", "new text"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestNoOpRerankerProducesStrictlyDecreasingScores(t *testing.T) {
	r := NoOpReranker{}
	scores, err := r.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.True(t, scores[0] > scores[1])
	assert.True(t, scores[1] > scores[2])
}
