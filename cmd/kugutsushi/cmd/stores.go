package cmd

import (
	"os"
	"path/filepath"

	"github.com/kugutsushi/engine/internal/catalogue"
	"github.com/kugutsushi/engine/internal/config"
	"github.com/kugutsushi/engine/internal/embed"
	"github.com/kugutsushi/engine/internal/lexical"
	"github.com/kugutsushi/engine/internal/rescheck"
	"github.com/kugutsushi/engine/internal/vectorindex"
)

func catalogueDBPath(c config.Config) string { return filepath.Join(c.Paths.DataDir, "metadata.db") }
func lexicalDBPath(c config.Config) string   { return filepath.Join(c.Paths.DataDir, "bm25.db") }
func vectorIndexPath(c config.Config) string { return filepath.Join(c.Paths.DataDir, "faiss.index") }

// openCatalogue opens the catalogue database under the configured data directory.
func openCatalogue(c config.Config) (*catalogue.Catalogue, error) {
	return catalogue.Open(catalogueDBPath(c))
}

// openLexical opens the lexical index database under the configured data directory.
func openLexical(c config.Config) (*lexical.Index, error) {
	return lexical.Open(lexicalDBPath(c))
}

// openVectorIndex loads a previously-saved vector index, or constructs
// a fresh untrained one if none exists yet.
func openVectorIndex(c config.Config) (*vectorindex.Index, error) {
	path := vectorIndexPath(c)
	if _, err := os.Stat(path); err == nil {
		return vectorindex.Load(path)
	}
	return vectorindex.New(c.Vector.Dimensions, c.Vector.NList, c.Vector.PQM, c.Vector.PQNBits)
}

// buildEmbedder constructs the embedding client configured for this
// run, wrapped in an LRU cache so repeated passages (query terms that
// recur across a session) skip the network round trip.
func buildEmbedder(c config.Config) (embed.Embedder, error) {
	inner := embed.NewOllamaEmbedder(c.Embeddings.Host, c.Embeddings.Model, c.Embeddings.Dimensions)
	return embed.NewCachedEmbedder(inner, c.Embeddings.CacheSize)
}

// buildResChecker constructs the soft memory ceiling checker the
// Searcher consults before enabling hybrid+rerank mode.
func buildResChecker(c config.Config) *rescheck.Checker {
	return rescheck.New(c.Resources.MemoryCeilingMB)
}
