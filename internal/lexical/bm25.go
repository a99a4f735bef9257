package lexical

import (
	"math"
	"sort"

	kerrors "github.com/kugutsushi/engine/internal/errors"
)

// K1 and B are the standard Okapi BM25 constants fixed by the contract.
const (
	K1 = 1.2
	B  = 0.75
)

// Result is a single BM25 search hit.
type Result struct {
	ID    int64
	Score float64
}

// Search tokenizes query_text, decodes each present term's posting
// blob into an in-memory iterator, and performs a k-way merge,
// accumulating BM25 scores in a map keyed by passage id. Ties are
// broken by ascending id.
func (ix *Index) Search(queryText string, k int) ([]Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tokens := Tokenize(queryText)
	if len(tokens) == 0 {
		return nil, nil
	}

	corpusSize, avgDocLength, err := ix.readStats()
	if err != nil {
		return nil, err
	}
	if corpusSize == 0 {
		return nil, nil
	}

	termCounts := make(map[string]int)
	for _, t := range tokens {
		termCounts[t]++
	}

	scores := make(map[int64]float64)
	for term := range termCounts {
		df, postings, err := ix.termPostings(term)
		if err != nil {
			return nil, err
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(corpusSize)-float64(df)+0.5)/(float64(df)+0.5))

		for _, p := range postings {
			dl, err := ix.docLength(p.ID)
			if err != nil {
				return nil, err
			}
			denom := float64(p.TF) + K1*(1-B+B*float64(dl)/avgDocLength)
			contribution := idf * (float64(p.TF) * (K1 + 1)) / denom
			scores[p.ID] += contribution
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (ix *Index) readStats() (corpusSize int64, avgDocLength float64, err error) {
	row := ix.db.QueryRow("SELECT corpus_size, avg_doc_length FROM stats WHERE id = 0")
	if scanErr := row.Scan(&corpusSize, &avgDocLength); scanErr != nil {
		return 0, 0, kerrors.IOError("read lexical stats", scanErr)
	}
	if avgDocLength == 0 {
		avgDocLength = 1
	}
	return corpusSize, avgDocLength, nil
}

func (ix *Index) termPostings(term string) (df int, postings []Posting, err error) {
	var blob []byte
	row := ix.db.QueryRow(`
		SELECT term.df, posting.blob FROM term
		JOIN posting ON posting.term_id = term.term_id
		WHERE term.term_text = ?
	`, term)
	scanErr := row.Scan(&df, &blob)
	if scanErr != nil {
		return 0, nil, nil // absent term contributes nothing, not an error
	}
	postings, err = DecodePostings(blob)
	if err != nil {
		return 0, nil, kerrors.IndexCorruption("corrupt posting blob during search", err).WithDetail("term", term)
	}
	return df, postings, nil
}

func (ix *Index) docLength(id int64) (int, error) {
	var length int
	row := ix.db.QueryRow("SELECT length FROM doc_length WHERE passage_id = ?", id)
	if err := row.Scan(&length); err != nil {
		return 0, kerrors.IOError("read document length", err)
	}
	return length, nil
}

// Stats reports the current corpus size and average document length.
func (ix *Index) Stats() (corpusSize int64, avgDocLength float64, err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.readStats()
}
