package driver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kugutsushi/engine/internal/catalogue"
	"github.com/kugutsushi/engine/internal/config"
	"github.com/kugutsushi/engine/internal/extract"
	"github.com/kugutsushi/engine/internal/lexical"
	"github.com/kugutsushi/engine/internal/vectorindex"
)

const testDim = 8

// stubEmbedder returns a fixed-dimension deterministic vector per text,
// so a run's vectors are trainable without a real model.
type stubEmbedder struct {
	calls        int
	failuresLeft int
	dimension    int
}

func (s *stubEmbedder) Dimensions() int { return s.dimension }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, assert.AnError
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dimension)
		for j, r := range []byte(t) {
			v[j%s.dimension] += float32(r % 7)
		}
		v[s.dimension-1] += 0.01
		out[i] = v
	}
	return out, nil
}

// fakeExtract stands in for extract.FromBytes: every test PDF's bytes
// are just its intended page text, so no real PDF parser is exercised
// by this package's tests.
func fakeExtract(data []byte, sourceName string, _ *slog.Logger) ([]extract.Page, error) {
	return []extract.Page{{Number: 1, Text: string(data)}}, nil
}

func buildTestDriver(t *testing.T) (*Driver, *catalogue.Catalogue, *vectorindex.Index, *stubEmbedder) {
	t.Helper()

	cat, err := catalogue.Open(filepath.Join(t.TempDir(), "catalogue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	lex, err := lexical.Open(filepath.Join(t.TempDir(), "lexical.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lex.Close() })

	vec, err := vectorindex.New(testDim, 2, 2, 2)
	require.NoError(t, err)

	embedder := &stubEmbedder{dimension: testDim}

	cfg := config.Default()
	cfg.Vector.Dimensions = testDim
	cfg.Vector.NList = 2
	cfg.Vector.PQM = 2
	cfg.Vector.PQNBits = 2
	cfg.Driver.BufferSize = 2
	cfg.Driver.TrainingThreshold = 100000

	d := New(cat, vec, lex, embedder, cfg, nil)
	d.extractFn = fakeExtract
	return d, cat, vec, embedder
}

func writeTestFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestRunIndexesDiscoveredPDFs(t *testing.T) {
	d, cat, vec, embedder := buildTestDriver(t)
	dir := t.TempDir()
	// 434 runes: two chunks, enough to train an index with nlist=2.
	writeTestFile(t, dir, "a.pdf", strings.Repeat("猫についての長い文章をここに書いています。猫は可愛い動物です。", 14))

	result, err := d.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesSkipped)
	assert.Positive(t, result.Passages)
	assert.Positive(t, embedder.calls)

	counts, err := cat.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(result.Passages), counts.Passages)

	// A configured training threshold far above this corpus's size must
	// not leave the vector index permanently untrained: the run-level
	// threshold is min(configured, expected corpus).
	assert.True(t, vec.Trained())
	assert.Equal(t, result.Passages, vec.NTotal())
}

func TestRunSkipsUnchangedFileOnSecondPass(t *testing.T) {
	d, _, _, _ := buildTestDriver(t)
	dir := t.TempDir()
	writeTestFile(t, dir, "a.pdf", "犬についての長い文章をここに書いています。犬は忠実な動物です。")

	_, err := d.Run(context.Background(), dir)
	require.NoError(t, err)

	result, err := d.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesSkipped)
}

func TestRunReindexesFileWhoseContentChanged(t *testing.T) {
	d, cat, _, _ := buildTestDriver(t)
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.pdf", "最初のバージョンの長い本文です。とても長い文章になっています。")

	_, err := d.Run(context.Background(), dir)
	require.NoError(t, err)
	firstCounts, err := cat.Counts()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("更新されたバージョンの長い本文です。内容が変わりました。"), 0o644))
	result, err := d.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)

	secondCounts, err := cat.Counts()
	require.NoError(t, err)
	assert.Equal(t, firstCounts.Passages, secondCounts.Passages)
}

func TestRunPropagatesEmbeddingFailureAndMarksFileFailed(t *testing.T) {
	d, cat, _, embedder := buildTestDriver(t)
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.pdf", "埋め込みに失敗するはずの長い文章です。ここにテキストを書きます。")

	embedder.failuresLeft = 2 // the driver retries once; both attempts must fail to abort
	_, err := d.Run(context.Background(), dir)
	require.Error(t, err)

	rec, found, err := cat.FileState(path)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, catalogue.StatusFailed, rec.Status)

	counts, err := cat.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Passages)
}

func TestRecoverPendingFilesRollsBackCrashedRange(t *testing.T) {
	d, cat, _, _ := buildTestDriver(t)

	_, err := cat.BeginFile("crashed.pdf", "h")
	require.NoError(t, err)
	first, last, err := cat.AssignIDs(3)
	require.NoError(t, err)
	require.NoError(t, cat.RecordRange("crashed.pdf", first, last))
	require.NoError(t, cat.CommitPassages([]catalogue.Passage{
		{ID: first, SourcePath: "crashed.pdf", PageNumber: 1, ChunkIndex: 0, Text: "orphaned"},
	}))

	require.NoError(t, d.recoverPendingFiles())

	counts, err := cat.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Passages)
}

func TestDedupeExactTextDropsRepeatedChunks(t *testing.T) {
	chunks := dedupeExactText([]extract.Chunk{
		{PageNumber: 1, ChunkIndex: 0, Text: "same"},
		{PageNumber: 1, ChunkIndex: 1, Text: "same"},
		{PageNumber: 1, ChunkIndex: 2, Text: "different"},
	})
	assert.Len(t, chunks, 2)
}

func TestDiscoverPDFsFindsOnlyPDFExtension(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.pdf", "x")
	writeTestFile(t, dir, "b.txt", "x")
	writeTestFile(t, dir, "c.PDF", "x")

	paths, err := discoverPDFs(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], ".pdf")
}
