package vectorindex

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	kerrors "github.com/kugutsushi/engine/internal/errors"
)

// magic identifies the binary artifact format. A load that doesn't see
// this prefix is treated as index corruption rather than a parse error.
const magic = "KGSV01"

type onDiskState struct {
	Dim             int
	NList           int
	PQM             int
	PQNBits         int
	Trained         bool
	TrainingSamples int
	NTotal          int
	CoarseCentroids []Vector
	Codebooks       [][]Vector
	Lists           map[int][]posting
}

// indexState is the sidecar JSON summary written alongside the binary
// artifact, mirroring the training-state fields the contract names.
type indexState struct {
	Trained         bool `json:"trained"`
	NTotal          int  `json:"ntotal"`
	NList           int  `json:"nlist"`
	PQM             int  `json:"pq_m"`
	PQNBits         int  `json:"pq_nbits"`
	Dimension       int  `json:"dimension"`
	TrainingSamples int  `json:"training_sample_count"`
}

// Save persists the index atomically: the binary artifact is written
// to a temp file and renamed into place, following the teacher's
// HNSW-store pattern, with a human-readable sidecar summarising
// training state.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kerrors.IOError("create vector index directory", err)
	}

	state := onDiskState{
		Dim:             ix.dim,
		NList:           ix.nlist,
		PQM:             ix.pqM,
		PQNBits:         ix.pqNBits,
		Trained:         ix.trained,
		TrainingSamples: ix.trainingSamples,
		NTotal:          ix.nTotal,
		CoarseCentroids: ix.coarseCentroids,
		Codebooks:       ix.codebooks,
		Lists:           ix.lists,
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(state); err != nil {
		return kerrors.IOError("encode vector index", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return kerrors.IOError("create temp vector index file", err)
	}
	if _, err := f.WriteString(magic); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return kerrors.IOError("write vector index magic", err)
	}
	if _, err := f.Write(body.Bytes()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return kerrors.IOError("write vector index body", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return kerrors.IOError("close temp vector index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return kerrors.IOError("rename vector index file", err)
	}

	sidecar := indexState{
		Trained:         ix.trained,
		NTotal:          ix.nTotal,
		NList:           ix.nlist,
		PQM:             ix.pqM,
		PQNBits:         ix.pqNBits,
		Dimension:       ix.dim,
		TrainingSamples: ix.trainingSamples,
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return kerrors.IOError("marshal vector index sidecar", err)
	}
	if err := os.WriteFile(sidecarPath(path), data, 0o644); err != nil {
		return kerrors.IOError("write vector index sidecar", err)
	}
	return nil
}

// Load reads a previously-Saved index. A missing or corrupted magic
// prefix fails with IndexCorruption rather than a bare parse error.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.IOError("read vector index file", err)
	}
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, kerrors.IndexCorruption("vector index file missing magic prefix", nil).WithDetail("path", path)
	}

	var state onDiskState
	if err := gob.NewDecoder(bytes.NewReader(data[len(magic):])).Decode(&state); err != nil {
		return nil, kerrors.IndexCorruption("vector index file is unreadable", err)
	}

	ix := &Index{
		dim:             state.Dim,
		nlist:           state.NList,
		pqM:             state.PQM,
		pqNBits:         state.PQNBits,
		subDim:          state.Dim / state.PQM,
		trained:         state.Trained,
		trainingSamples: state.TrainingSamples,
		coarseCentroids: state.CoarseCentroids,
		codebooks:       state.Codebooks,
		lists:           state.Lists,
		nTotal:          state.NTotal,
	}
	if ix.lists == nil {
		ix.lists = make(map[int][]posting)
	}
	if err := ix.Verify(); err != nil && state.Trained {
		return nil, fmt.Errorf("loaded vector index failed verification: %w", err)
	}
	return ix, nil
}

func sidecarPath(path string) string {
	return filepath.Join(filepath.Dir(path), "index_state.json")
}
