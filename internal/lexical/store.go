package lexical

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	kerrors "github.com/kugutsushi/engine/internal/errors"
)

// MinDocumentFrequency is the vocabulary-reduction threshold: terms
// below this document frequency are pruned by Finalize.
const MinDocumentFrequency = 2

// Index is the 2-gram BM25 lexical index. Adds are staged in memory
// and applied in a single transaction on Commit, per the contract's
// "blobs are rewritten, not patched in place" rule.
type Index struct {
	mu sync.Mutex
	db *sql.DB

	pending map[string][]Posting // term -> new postings from this batch
	docLen  map[int64]int        // id -> token count, staged this batch
}

// Open opens (creating if necessary) the lexical index database.
//
// The contract names three tables (term, posting, stats); this
// implementation adds a fourth, doc_length, to hold per-document
// 2-gram counts — standard BM25 scoring needs a document's own length
// to compute the length-normalisation term, and stats only carries
// the corpus-wide average.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, kerrors.IOError("create lexical index directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, kerrors.IOError("open lexical index database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, kerrors.IOError("set lexical index pragma", err)
		}
	}

	idx := &Index{
		db:      db,
		pending: make(map[string][]Posting),
		docLen:  make(map[int64]int),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (ix *Index) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS term (
	term_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	term_text TEXT UNIQUE NOT NULL,
	df        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS posting (
	term_id INTEGER PRIMARY KEY REFERENCES term(term_id),
	blob    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS stats (
	id               INTEGER PRIMARY KEY CHECK (id = 0),
	corpus_size      INTEGER NOT NULL DEFAULT 0,
	avg_doc_length   REAL NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO stats (id, corpus_size, avg_doc_length) VALUES (0, 0, 0);
CREATE TABLE IF NOT EXISTS doc_length (
	passage_id INTEGER PRIMARY KEY,
	length     INTEGER NOT NULL
);
`
	if _, err := ix.db.Exec(schema); err != nil {
		return kerrors.IOError("initialize lexical index schema", err)
	}
	return nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Add tokenizes text and stages (id, text) for the next Commit. Staged
// additions accumulate in memory; nothing is written until Commit.
func (ix *Index) Add(id int64, text string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tokens := Tokenize(text)
	ix.docLen[id] = len(tokens)

	counts := make(map[string]int)
	for _, tok := range tokens {
		counts[tok]++
	}
	for term, tf := range counts {
		ix.pending[term] = append(ix.pending[term], Posting{ID: id, TF: tf})
	}
}

// Commit applies every staged Add since the last Commit in a single
// transaction: for each touched term, decode its existing blob, merge
// in the new postings (sorted ascending by id), and rewrite the blob.
// It does not prune low-document-frequency terms — a term under
// min_df in this commit may cross the threshold in a later one, and
// pruning now would delete it before it gets the chance. Call Finalize
// once the whole build is done to apply vocabulary reduction.
func (ix *Index) Commit() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.pending) == 0 && len(ix.docLen) == 0 {
		return nil
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return kerrors.IOError("begin lexical commit transaction", err)
	}
	defer tx.Rollback()

	for term, newPostings := range ix.pending {
		termID, existing, err := ix.loadTerm(tx, term)
		if err != nil {
			return err
		}
		merged := mergePostings(existing, newPostings)

		blob, err := EncodePostings(merged)
		if err != nil {
			return kerrors.IOError("encode merged postings", err)
		}

		df := len(merged)
		if termID == 0 {
			res, err := tx.Exec("INSERT INTO term (term_text, df) VALUES (?, ?)", term, df)
			if err != nil {
				return kerrors.IOError("insert term", err)
			}
			termID, err = res.LastInsertId()
			if err != nil {
				return kerrors.IOError("read inserted term id", err)
			}
			if _, err := tx.Exec("INSERT INTO posting (term_id, blob) VALUES (?, ?)", termID, blob); err != nil {
				return kerrors.IOError("insert posting", err)
			}
		} else {
			if _, err := tx.Exec("UPDATE term SET df = ? WHERE term_id = ?", df, termID); err != nil {
				return kerrors.IOError("update term df", err)
			}
			if _, err := tx.Exec("UPDATE posting SET blob = ? WHERE term_id = ?", blob, termID); err != nil {
				return kerrors.IOError("update posting blob", err)
			}
		}
	}

	for id, length := range ix.docLen {
		if _, err := tx.Exec(`
			INSERT INTO doc_length (passage_id, length) VALUES (?, ?)
			ON CONFLICT(passage_id) DO UPDATE SET length = excluded.length
		`, id, length); err != nil {
			return kerrors.IOError("upsert doc length", err)
		}
	}

	if err := ix.recomputeStats(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return kerrors.IOError("commit lexical transaction", err)
	}

	ix.pending = make(map[string][]Posting)
	ix.docLen = make(map[int64]int)
	return nil
}

// Finalize applies vocabulary reduction (min_df) across the whole
// corpus and refreshes stats. It must run once, after every file's
// Commit for a build is done — pruning mid-build would delete a term
// that later re-crosses min_df in a subsequent file, losing it for
// good instead of keeping it.
func (ix *Index) Finalize() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return kerrors.IOError("begin lexical finalize transaction", err)
	}
	defer tx.Rollback()

	if err := ix.pruneBelowMinDF(tx); err != nil {
		return err
	}
	if err := ix.recomputeStats(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return kerrors.IOError("commit lexical finalize", err)
	}
	return nil
}

func (ix *Index) loadTerm(tx *sql.Tx, term string) (termID int64, postings []Posting, err error) {
	var blob []byte
	row := tx.QueryRow(`
		SELECT term.term_id, posting.blob FROM term
		JOIN posting ON posting.term_id = term.term_id
		WHERE term.term_text = ?
	`, term)
	err = row.Scan(&termID, &blob)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, kerrors.IOError("load existing term", err)
	}
	postings, err = DecodePostings(blob)
	if err != nil {
		return 0, nil, kerrors.IndexCorruption("corrupt posting blob", err).WithDetail("term", term)
	}
	return termID, postings, nil
}

// mergePostings combines existing and incoming postings for the same
// term, letting incoming entries overwrite an existing id's tf
// (re-adding the same passage id replaces its term frequency), and
// returns the result sorted ascending by id.
func mergePostings(existing, incoming []Posting) []Posting {
	byID := make(map[int64]int, len(existing)+len(incoming))
	for _, p := range existing {
		byID[p.ID] = p.TF
	}
	for _, p := range incoming {
		byID[p.ID] = p.TF
	}
	merged := make([]Posting, 0, len(byID))
	for id, tf := range byID {
		merged = append(merged, Posting{ID: id, TF: tf})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}

func (ix *Index) pruneBelowMinDF(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT term_id FROM term WHERE df < ?", MinDocumentFrequency)
	if err != nil {
		return kerrors.IOError("query low-df terms", err)
	}
	var toDelete []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return kerrors.IOError("scan low-df term id", err)
		}
		toDelete = append(toDelete, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return kerrors.IOError("iterate low-df terms", err)
	}

	for _, id := range toDelete {
		if _, err := tx.Exec("DELETE FROM posting WHERE term_id = ?", id); err != nil {
			return kerrors.IOError("delete pruned posting", err)
		}
		if _, err := tx.Exec("DELETE FROM term WHERE term_id = ?", id); err != nil {
			return kerrors.IOError("delete pruned term", err)
		}
	}
	return nil
}

func (ix *Index) recomputeStats(tx *sql.Tx) error {
	var corpusSize int64
	var totalLength int64
	row := tx.QueryRow("SELECT COUNT(*), COALESCE(SUM(length), 0) FROM doc_length")
	if err := row.Scan(&corpusSize, &totalLength); err != nil {
		return kerrors.IOError("compute corpus stats", err)
	}
	avg := 0.0
	if corpusSize > 0 {
		avg = float64(totalLength) / float64(corpusSize)
	}
	if _, err := tx.Exec("UPDATE stats SET corpus_size = ?, avg_doc_length = ? WHERE id = 0", corpusSize, avg); err != nil {
		return kerrors.IOError("update stats", err)
	}
	return nil
}
