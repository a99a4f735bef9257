// Package extract implements the Extractor (C2): it reads a PDF,
// yields per-page text filtered by textfilter, then slides a
// fixed-width overlapping window over each surviving page to produce
// Chunks.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"

	pdfparse "github.com/ledongthuc/pdf"

	kerrors "github.com/kugutsushi/engine/internal/errors"
	"github.com/kugutsushi/engine/internal/textfilter"
)

const (
	// ChunkWindow is the sliding-window size in characters.
	ChunkWindow = 400
	// ChunkOverlap is the overlap between consecutive chunks in characters.
	ChunkOverlap = 50
)

// Chunk is a fixed-width slice of a single page's text.
type Chunk struct {
	PageNumber int
	ChunkIndex int
	Text       string
}

// Page is a page that survived the text filter.
type Page struct {
	Number int
	Text   string
}

// FromPath opens the PDF at path and returns its surviving pages.
// Unreadable or encrypted files fail with an ExtractionError.
func FromPath(path string, logger *slog.Logger) ([]Page, error) {
	f, r, err := pdfparse.Open(path)
	if err != nil {
		return nil, kerrors.ExtractionError("failed to open PDF", err).WithDetail("source_path", path)
	}
	defer f.Close()
	return extractPages(r, path, logger)
}

// FromBytes parses PDF bytes held entirely in memory.
func FromBytes(data []byte, sourceName string, logger *slog.Logger) ([]Page, error) {
	reader := bytes.NewReader(data)
	r, err := pdfparse.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, kerrors.ExtractionError("failed to parse PDF", err).WithDetail("source_path", sourceName)
	}
	return extractPages(r, sourceName, logger)
}

func extractPages(r *pdfparse.Reader, sourceName string, logger *slog.Logger) ([]Page, error) {
	total := r.NumPage()
	if total == 0 {
		return nil, kerrors.ExtractionError("PDF has no pages", nil).WithDetail("source_path", sourceName)
	}

	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			if logger != nil {
				logger.Warn("page extraction failed, skipping",
					slog.String("source_path", sourceName),
					slog.Int("page", i),
					slog.Any("error", err))
			}
			continue
		}

		if textfilter.Evaluate(text) == textfilter.Drop {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// Chunks slides a ChunkWindow-character window with ChunkOverlap
// overlap across page.Text, never crossing the page boundary. A page
// shorter than the window produces exactly one chunk.
func Chunks(page Page) []Chunk {
	runes := []rune(page.Text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= ChunkWindow {
		return []Chunk{{PageNumber: page.Number, ChunkIndex: 0, Text: string(runes)}}
	}

	stride := ChunkWindow - ChunkOverlap
	var chunks []Chunk
	idx := 0
	for start := 0; start < len(runes); start += stride {
		end := start + ChunkWindow
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			PageNumber: page.Number,
			ChunkIndex: idx,
			Text:       string(runes[start:end]),
		})
		idx++
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// ChunksForPages extracts chunks for every page in order. It fails on
// a negative page number, naming that number in the error.
func ChunksForPages(pages []Page) ([]Chunk, error) {
	var all []Chunk
	for _, p := range pages {
		if p.Number < 0 {
			return nil, fmt.Errorf("invalid page number %d", p.Number)
		}
		all = append(all, Chunks(p)...)
	}
	return all, nil
}
