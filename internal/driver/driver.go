// Package driver walks a directory of PDFs through extraction, the
// text filter, chunking, catalogue identity assignment, embedding,
// and the two indices, making every step resumable after a crash.
package driver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kugutsushi/engine/internal/catalogue"
	"github.com/kugutsushi/engine/internal/config"
	"github.com/kugutsushi/engine/internal/embed"
	kerrors "github.com/kugutsushi/engine/internal/errors"
	"github.com/kugutsushi/engine/internal/extract"
	"github.com/kugutsushi/engine/internal/lexical"
	"github.com/kugutsushi/engine/internal/vectorindex"
)

// Result summarises a single Run invocation.
type Result struct {
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	Passages     int
}

// Driver orchestrates extraction, catalogue identity, embedding, and
// the two indices for a directory of PDFs.
type Driver struct {
	cat      *catalogue.Catalogue
	vec      *vectorindex.Index
	lex      *lexical.Index
	embedder embed.Embedder
	cfg      config.Config
	logger   *slog.Logger

	// extractFn is extract.FromBytes in production; tests substitute a
	// fake so they don't depend on parsing a real PDF byte stream.
	extractFn func(data []byte, sourceName string, logger *slog.Logger) ([]extract.Page, error)

	trainOverflowIDs  []int64
	trainOverflowVecs []vectorindex.Vector

	// trainingThreshold is the per-run training trigger: min(configured
	// threshold, expected corpus size), computed once the planning phase
	// knows how many chunks this Run will actually produce.
	trainingThreshold int
}

// New builds a Driver. logger may be nil.
func New(cat *catalogue.Catalogue, vec *vectorindex.Index, lex *lexical.Index, embedder embed.Embedder, cfg config.Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cat: cat, vec: vec, lex: lex, embedder: embedder, cfg: cfg, logger: logger, extractFn: extract.FromBytes}
}

// filePlan is the outcome of the planning phase for one file: either a
// skip, or a set of chunks ready for the processing phase. Chunking
// happens once, here, so the processing phase never re-extracts.
type filePlan struct {
	path   string
	hash   string
	rec    catalogue.FileRecord
	found  bool
	chunks []extract.Chunk
}

// Run discovers every *.pdf under dir (recursively) and indexes it,
// skipping files whose content hash already matches an indexed
// record. It rolls back any file left in status=pending from a prior
// crashed run before reprocessing it.
//
// Indexing runs in two phases. Planning reads, hashes, extracts, and
// chunks every file once, which is also the only way to learn the
// run's expected corpus size before any vector is added — the
// training threshold is min(configured threshold, expected corpus),
// so a corpus smaller than the configured threshold still trains as
// long as it yields at least nlist passages.
// Processing then assigns ids, embeds, and commits each planned file
// to the catalogue and both indices.
func (d *Driver) Run(ctx context.Context, dir string) (Result, error) {
	if err := d.recoverPendingFiles(); err != nil {
		return Result{}, err
	}

	paths, err := discoverPDFs(dir)
	if err != nil {
		return Result{}, kerrors.IOError("discover PDF files", err)
	}

	var result Result
	plans, expectedCorpus, err := d.planFiles(paths, &result)
	if err != nil {
		return result, err
	}

	threshold := d.cfg.Driver.TrainingThreshold
	if threshold <= 0 {
		threshold = d.cfg.Vector.TrainingSample
	}
	if expectedCorpus > 0 && expectedCorpus < threshold {
		threshold = expectedCorpus
	}
	d.trainingThreshold = threshold

	for _, plan := range plans {
		if err := d.indexPlannedFile(ctx, plan); err != nil {
			return result, err
		}
		result.FilesIndexed++
	}

	if !d.vec.Trained() && len(d.trainOverflowVecs) >= d.cfg.Vector.NList {
		if err := d.forceTrainAndDrain(); err != nil {
			return result, err
		}
	}

	if err := d.lex.Finalize(); err != nil {
		return result, err
	}

	counts, err := d.cat.Counts()
	if err != nil {
		return result, err
	}
	result.Passages = int(counts.Passages)
	return result, nil
}

// planFiles reads, hashes, extracts, and chunks every discovered path,
// skipping files whose content hash already matches an indexed record
// and counting extraction/chunking failures as non-fatal. It returns
// only the files left to process, plus their total chunk count.
func (d *Driver) planFiles(paths []string, result *Result) ([]filePlan, int, error) {
	var plans []filePlan
	var expectedCorpus int

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn("file failed to read, continuing", slog.String("path", path), slog.Any("error", err))
			result.FilesFailed++
			continue
		}
		hash := catalogue.HashFile(data)

		rec, found, err := d.cat.FileState(path)
		if err != nil {
			return nil, 0, err
		}
		if catalogue.ShouldSkip(rec, found, hash) {
			result.FilesSkipped++
			continue
		}

		pages, err := d.extractFn(data, path, d.logger)
		if err != nil {
			d.logger.Warn("file failed extraction, continuing", slog.String("path", path), slog.Any("error", err))
			result.FilesFailed++
			continue
		}

		chunks, err := extract.ChunksForPages(pages)
		if err != nil {
			d.logger.Warn("file failed chunking, continuing", slog.String("path", path), slog.Any("error", err))
			result.FilesFailed++
			continue
		}
		chunks = dedupeExactText(chunks)

		plans = append(plans, filePlan{path: path, hash: hash, rec: rec, found: found, chunks: chunks})
		expectedCorpus += len(chunks)
	}

	return plans, expectedCorpus, nil
}

// indexPlannedFile processes one planned file: it reuses chunks
// produced during planning, so no extraction happens here — any error
// from this point on (assigning ids, embedding, committing) is fatal
// to the whole Run, per the failure-semantics contract.
func (d *Driver) indexPlannedFile(ctx context.Context, plan filePlan) error {
	// Content changed since the last successful index: the file's old
	// passage range is superseded and must be torn down before the new
	// one is assigned, or both ranges would coexist.
	if plan.found && plan.rec.Status == catalogue.StatusIndexed && plan.rec.FirstPassageID > 0 {
		if err := d.cat.DeleteRange(plan.rec.FirstPassageID, plan.rec.LastPassageID); err != nil {
			return err
		}
	}

	if _, err := d.cat.BeginFile(plan.path, plan.hash); err != nil {
		return err
	}

	if len(plan.chunks) == 0 {
		return d.cat.FinishFile(plan.path, 0, 0, true)
	}

	first, last, err := d.cat.AssignIDs(len(plan.chunks))
	if err != nil {
		return err
	}
	if err := d.cat.RecordRange(plan.path, first, last); err != nil {
		return err
	}

	if err := d.processChunks(ctx, plan.path, plan.chunks, first); err != nil {
		_ = d.cat.DeleteRange(first, last)
		_ = d.cat.FinishFile(plan.path, 0, 0, false)
		return err
	}

	if err := d.lex.Commit(); err != nil {
		_ = d.cat.DeleteRange(first, last)
		_ = d.cat.FinishFile(plan.path, 0, 0, false)
		return err
	}
	return d.cat.FinishFile(plan.path, first, last, true)
}

// processChunks flushes chunks through the buffer in batches of at
// most BufferSize, embedding, committing to the Catalogue, and adding
// to both indices at each flush.
func (d *Driver) processChunks(ctx context.Context, path string, chunks []extract.Chunk, firstID int64) error {
	bufferSize := d.cfg.Driver.BufferSize
	if bufferSize <= 0 {
		bufferSize = 128
	}

	for start := 0; start < len(chunks); start += bufferSize {
		end := start + bufferSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		ids := make([]int64, len(batch))
		texts := make([]string, len(batch))
		passages := make([]catalogue.Passage, len(batch))
		for i, c := range batch {
			id := firstID + int64(start+i)
			ids[i] = id
			texts[i] = c.Text
			passages[i] = catalogue.Passage{
				ID:         id,
				SourcePath: path,
				PageNumber: c.PageNumber,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
			}
		}

		vectors, err := d.embedWithRetry(ctx, texts)
		if err != nil {
			return kerrors.EmbedderError("embedding batch failed after retry", err).WithDetail("source_path", path)
		}

		if err := d.cat.CommitPassages(passages); err != nil {
			return err
		}
		for i, text := range texts {
			d.lex.Add(ids[i], text)
		}

		if err := d.addVectors(ids, vectors); err != nil {
			return err
		}
	}
	return nil
}

// embedRetryBackoff is the wait before the single embedding retry.
const embedRetryBackoff = 200 * time.Millisecond

// embedWithRetry embeds texts, retrying once after embedRetryBackoff
// on failure before giving up, per the failure-semantics contract.
func (d *Driver) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := d.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(embedRetryBackoff):
	}
	return d.embedder.EmbedBatch(ctx, texts)
}

// addVectors adds to the Vector Index if it is trained, otherwise
// buffers the vectors until this run's training threshold is reached,
// at which point it forces training and drains the overflow. Training
// never fires below nlist vectors, since Train itself requires at
// least one sample per cluster; a corpus that never crosses the
// threshold mid-run is caught by Run's end-of-run drain instead.
func (d *Driver) addVectors(ids []int64, vectors [][]float32) error {
	if d.vec.Trained() {
		return d.vec.Add(ids, toVectorSlice(vectors))
	}

	d.trainOverflowIDs = append(d.trainOverflowIDs, ids...)
	d.trainOverflowVecs = append(d.trainOverflowVecs, toVectorSlice(vectors)...)

	threshold := d.trainingThreshold
	if threshold <= 0 {
		threshold = d.cfg.Driver.TrainingThreshold
	}
	if len(d.trainOverflowVecs) < threshold || len(d.trainOverflowVecs) < d.cfg.Vector.NList {
		return nil
	}
	return d.forceTrainAndDrain()
}

func (d *Driver) forceTrainAndDrain() error {
	if err := d.vec.Train(d.trainOverflowVecs); err != nil {
		return err
	}
	if err := d.vec.Add(d.trainOverflowIDs, d.trainOverflowVecs); err != nil {
		return err
	}
	d.trainOverflowIDs = nil
	d.trainOverflowVecs = nil
	return nil
}

func toVectorSlice(vectors [][]float32) []vectorindex.Vector {
	out := make([]vectorindex.Vector, len(vectors))
	for i, v := range vectors {
		out[i] = vectorindex.Vector(v)
	}
	return out
}

// dedupeExactText drops a chunk whose text exactly matches a
// previously seen chunk within the same file (cheap page-header suppression).
func dedupeExactText(chunks []extract.Chunk) []extract.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]extract.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		out = append(out, c)
	}
	return out
}

// recoverPendingFiles rolls back files left in status=pending from a
// prior crashed run: their allocated id range (if any) is deleted
// from the Catalogue so a fresh AssignIDs doesn't collide, and they
// are reprocessed on this run since their status remains pending.
func (d *Driver) recoverPendingFiles() error {
	pending, err := d.cat.PendingFiles()
	if err != nil {
		return err
	}
	for _, path := range pending {
		rec, found, err := d.cat.FileState(path)
		if err != nil {
			return err
		}
		if !found || rec.FirstPassageID == 0 {
			continue
		}
		if err := d.cat.DeleteRange(rec.FirstPassageID, rec.LastPassageID); err != nil {
			return err
		}
	}
	return nil
}

func discoverPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
