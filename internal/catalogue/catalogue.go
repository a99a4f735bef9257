// Package catalogue implements the Catalogue (C3): the single-writer,
// embedded store that owns passage identity and per-file indexing
// state. It is backed by modernc.org/sqlite (pure Go, no CGO) and
// guarded by a process-level advisory lock, following the teacher's
// single-writer discipline for its embedded stores.
package catalogue

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	kerrors "github.com/kugutsushi/engine/internal/errors"
)

// Status is a File Record's indexing state.
type Status string

const (
	StatusPending Status = "pending"
	StatusIndexed Status = "indexed"
	StatusFailed  Status = "failed"
)

// Passage is the unit of retrieval: a (source, page, chunk) with its text.
type Passage struct {
	ID         int64
	SourcePath string
	PageNumber int
	ChunkIndex int
	Text       string
}

// FileRecord tracks per-source-file indexing state.
type FileRecord struct {
	SourcePath     string
	ContentHash    string
	IndexedAt      time.Time
	FirstPassageID int64
	LastPassageID  int64
	Status         Status
}

// Counts summarises catalogue size.
type Counts struct {
	Passages int64
	Files    int64
}

// Catalogue is the single-writer passage and file-state store.
type Catalogue struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open opens (creating if necessary) the catalogue database at path,
// taking an exclusive process-level lease via a sibling .lock file so
// two processes never write concurrently.
func Open(path string) (*Catalogue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, kerrors.IOError("create catalogue directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, kerrors.IOError("acquire catalogue writer lease", err)
	}
	if !locked {
		return nil, kerrors.CatalogueConflict("catalogue is held by another writer", nil).WithDetail("path", path)
	}

	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, kerrors.IOError("open catalogue database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, kerrors.IOError("set catalogue pragma", err)
		}
	}

	c := &Catalogue{db: db, lock: lock, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return c, nil
}

func (c *Catalogue) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS passage (
	id          INTEGER PRIMARY KEY,
	source_path TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	UNIQUE(source_path, page_number, chunk_index)
);

CREATE TABLE IF NOT EXISTS file_record (
	source_path       TEXT PRIMARY KEY,
	content_hash      TEXT NOT NULL,
	indexed_at        TIMESTAMP,
	first_passage_id  INTEGER,
	last_passage_id   INTEGER,
	status            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS id_sequence (
	id     INTEGER PRIMARY KEY CHECK (id = 0),
	next   INTEGER NOT NULL
);
INSERT OR IGNORE INTO id_sequence (id, next) VALUES (0, 1);
`
	if _, err := c.db.Exec(schema); err != nil {
		return kerrors.IOError("initialize catalogue schema", err)
	}
	return nil
}

// Close releases the database handle and the writer lease.
func (c *Catalogue) Close() error {
	err := c.db.Close()
	_ = c.lock.Unlock()
	return err
}

// HashFile computes the SHA-256 content hash used for skip/reindex decisions.
func HashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// AssignIDs atomically reserves n consecutive passage ids, returning
// the inclusive [first, last] range.
func (c *Catalogue) AssignIDs(n int) (first, last int64, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("n must be positive")
	}
	tx, err := c.db.Begin()
	if err != nil {
		return 0, 0, kerrors.IOError("begin id assignment transaction", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRow("SELECT next FROM id_sequence WHERE id = 0").Scan(&next); err != nil {
		return 0, 0, kerrors.IOError("read id sequence", err)
	}
	first = next
	last = next + int64(n) - 1
	if _, err := tx.Exec("UPDATE id_sequence SET next = ? WHERE id = 0", last+1); err != nil {
		return 0, 0, kerrors.IOError("advance id sequence", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, kerrors.IOError("commit id assignment", err)
	}
	return first, last, nil
}

// CommitPassages upserts passage rows; it is idempotent on id.
func (c *Catalogue) CommitPassages(passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return kerrors.IOError("begin commit passages transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO passage (id, source_path, page_number, chunk_index, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			page_number = excluded.page_number,
			chunk_index = excluded.chunk_index,
			text        = excluded.text
	`)
	if err != nil {
		return kerrors.IOError("prepare commit passages statement", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		if _, err := stmt.Exec(p.ID, p.SourcePath, p.PageNumber, p.ChunkIndex, p.Text); err != nil {
			return kerrors.CatalogueConflict("failed to commit passage", err).WithDetail("id", fmt.Sprint(p.ID))
		}
	}
	if err := tx.Commit(); err != nil {
		return kerrors.IOError("commit passages", err)
	}
	return nil
}

// GetPassagesByIDs returns passages in the order ids were supplied.
// A missing id fails the entire call.
func (c *Catalogue) GetPassagesByIDs(ids []int64) ([]Passage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		"SELECT id, source_path, page_number, chunk_index, text FROM passage WHERE id IN (%s)",
		joinPlaceholders(placeholders),
	)
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, kerrors.IOError("query passages by id", err)
	}
	defer rows.Close()

	byID := make(map[int64]Passage, len(ids))
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.SourcePath, &p.PageNumber, &p.ChunkIndex, &p.Text); err != nil {
			return nil, kerrors.IOError("scan passage row", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, kerrors.IOError("iterate passage rows", err)
	}

	out := make([]Passage, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, kerrors.CatalogueConflict("passage id not found", nil).WithDetail("id", fmt.Sprint(id))
		}
		out = append(out, p)
	}
	return out, nil
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}

// BeginFile records a file as pending, returning its (possibly
// pre-existing) FileRecord.
func (c *Catalogue) BeginFile(sourcePath, contentHash string) (FileRecord, error) {
	_, err := c.db.Exec(`
		INSERT INTO file_record (source_path, content_hash, status)
		VALUES (?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET content_hash = excluded.content_hash, status = excluded.status
	`, sourcePath, contentHash, string(StatusPending))
	if err != nil {
		return FileRecord{}, kerrors.IOError("begin file record", err)
	}
	rec, ok, err := c.FileState(sourcePath)
	if err != nil {
		return FileRecord{}, err
	}
	if !ok {
		return FileRecord{}, kerrors.IOError("file record vanished after begin_file", nil)
	}
	return rec, nil
}

// RecordRange records a file's allocated passage id range without
// changing its status. It is called immediately after AssignIDs so a
// crash mid-processing still leaves enough information for startup
// recovery to roll back the partial range.
func (c *Catalogue) RecordRange(sourcePath string, first, last int64) error {
	_, err := c.db.Exec(`
		UPDATE file_record SET first_passage_id = ?, last_passage_id = ? WHERE source_path = ?
	`, first, last, sourcePath)
	if err != nil {
		return kerrors.IOError("record passage range", err)
	}
	return nil
}

// FinishFile transitions a file to indexed (ok=true) or failed
// (ok=false), recording its final passage id range.
func (c *Catalogue) FinishFile(sourcePath string, first, last int64, ok bool) error {
	status := StatusIndexed
	if !ok {
		status = StatusFailed
	}
	_, err := c.db.Exec(`
		UPDATE file_record
		SET status = ?, first_passage_id = ?, last_passage_id = ?, indexed_at = ?
		WHERE source_path = ?
	`, string(status), first, last, time.Now().UTC(), sourcePath)
	if err != nil {
		return kerrors.IOError("finish file record", err)
	}
	return nil
}

// FileState returns the current FileRecord for sourcePath, if any.
func (c *Catalogue) FileState(sourcePath string) (FileRecord, bool, error) {
	var rec FileRecord
	var indexedAt sql.NullTime
	var firstID, lastID sql.NullInt64
	row := c.db.QueryRow(`
		SELECT source_path, content_hash, indexed_at, first_passage_id, last_passage_id, status
		FROM file_record WHERE source_path = ?
	`, sourcePath)
	err := row.Scan(&rec.SourcePath, &rec.ContentHash, &indexedAt, &firstID, &lastID, &rec.Status)
	if err == sql.ErrNoRows {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, kerrors.IOError("query file state", err)
	}
	if indexedAt.Valid {
		rec.IndexedAt = indexedAt.Time
	}
	rec.FirstPassageID = firstID.Int64
	rec.LastPassageID = lastID.Int64
	return rec, true, nil
}

// ShouldSkip implements the skip-or-reindex algorithm: a file with a
// matching content hash and status=indexed is skipped.
func ShouldSkip(rec FileRecord, found bool, contentHash string) bool {
	return found && rec.Status == StatusIndexed && rec.ContentHash == contentHash
}

// DeleteRange removes passages in [first, last], used by the
// tombstone sweep when a file's content hash changes.
func (c *Catalogue) DeleteRange(first, last int64) error {
	_, err := c.db.Exec("DELETE FROM passage WHERE id BETWEEN ? AND ?", first, last)
	if err != nil {
		return kerrors.IOError("delete tombstoned passage range", err)
	}
	return nil
}

// Counts reports the current passage and file counts.
func (c *Catalogue) Counts() (Counts, error) {
	var counts Counts
	if err := c.db.QueryRow("SELECT COUNT(*) FROM passage").Scan(&counts.Passages); err != nil {
		return Counts{}, kerrors.IOError("count passages", err)
	}
	if err := c.db.QueryRow("SELECT COUNT(*) FROM file_record").Scan(&counts.Files); err != nil {
		return Counts{}, kerrors.IOError("count files", err)
	}
	return counts, nil
}

// PendingFiles returns source paths left in status=pending, used on
// startup to find partially-processed files that need rolling back
// and reprocessing.
func (c *Catalogue) PendingFiles() ([]string, error) {
	rows, err := c.db.Query("SELECT source_path FROM file_record WHERE status = ?", string(StatusPending))
	if err != nil {
		return nil, kerrors.IOError("query pending files", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, kerrors.IOError("scan pending file row", err)
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, rows.Err()
}
