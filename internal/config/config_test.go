package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesFixedSpecConstants(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 256, cfg.Vector.NList)
	assert.Equal(t, 16, cfg.Vector.PQM)
	assert.Equal(t, 8, cfg.Vector.PQNBits)
	assert.Equal(t, 1.2, cfg.Lexical.K1)
	assert.Equal(t, 0.75, cfg.Lexical.B)
	assert.Equal(t, 2, cfg.Lexical.MinDF)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
	assert.Equal(t, 0.3, cfg.Search.BM25Weight)
	assert.Equal(t, 30, cfg.Search.RerankPoolMax)
	assert.Equal(t, 200*time.Millisecond, cfg.Deadlines.Vector)
	assert.Equal(t, 500*time.Millisecond, cfg.Deadlines.BM25)
	assert.Equal(t, 400*time.Millisecond, cfg.Deadlines.Rerank)
	assert.Equal(t, 500, cfg.Resources.MemoryCeilingMB)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "vector:\n  nprobe: 16\nsearch:\n  default_top_k: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Vector.NProbe)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	// Untouched fields keep their defaults.
	assert.Equal(t, 256, cfg.Vector.NList)
}

func TestValidateRejectsPQMNotDividingDimensions(t *testing.T) {
	cfg := Default()
	cfg.Vector.Dimensions = 100
	cfg.Vector.PQM = 16
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeWeights(t *testing.T) {
	cfg := Default()
	cfg.Search.VectorWeight = -0.1
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
