// Package config loads the YAML configuration for the retrieval core:
// vector index training parameters, lexical scoring constants, fusion
// weights, per-stage deadlines, and the soft memory ceiling. Every field
// here maps to a parameter the specification names as "part of the
// contract" or "configurable".
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete retrieval-core configuration. It mirrors the
// schema described in SPEC_FULL.md's "Supplemented feature — config file".
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Driver     DriverConfig     `yaml:"driver" json:"driver"`
	Deadlines  DeadlinesConfig  `yaml:"deadlines" json:"deadlines"`
	Resources  ResourcesConfig  `yaml:"resources" json:"resources"`
}

// PathsConfig locates the persisted state directory (spec §6).
type PathsConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// VectorConfig configures the IVF-PQ ANN structure (spec §4.4).
type VectorConfig struct {
	Dimensions      int `yaml:"dimensions" json:"dimensions"`
	NList           int `yaml:"nlist" json:"nlist"`
	PQM             int `yaml:"pq_m" json:"pq_m"`
	PQNBits         int `yaml:"pq_nbits" json:"pq_nbits"`
	NProbe          int `yaml:"nprobe" json:"nprobe"`
	TrainingSample  int `yaml:"training_sample" json:"training_sample"`
	KMeansIters     int `yaml:"kmeans_iters" json:"kmeans_iters"`
}

// LexicalConfig records the BM25 scoring and vocabulary-pruning
// constants (spec §4.5). The lexical index does not read these fields;
// it scores and prunes with its own K1, B and MinDocumentFrequency.
type LexicalConfig struct {
	K1    float64 `yaml:"k1" json:"k1"`
	B     float64 `yaml:"b" json:"b"`
	MinDF int     `yaml:"min_df" json:"min_df"`
}

// SearchConfig configures RRF fusion and reranking (spec §4.7).
type SearchConfig struct {
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant"`
	VectorWeight   float64 `yaml:"vector_weight" json:"vector_weight"`
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	ShortlistFloor int     `yaml:"shortlist_floor" json:"shortlist_floor"`
	RerankPoolMax  int     `yaml:"rerank_pool_max" json:"rerank_pool_max"`
	SnippetWindow  int     `yaml:"snippet_window" json:"snippet_window"`
	DefaultTopK    int     `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK        int     `yaml:"max_top_k" json:"max_top_k"`
}

// EmbeddingsConfig configures the embedding backend used for both
// indexing and query-time embedding.
type EmbeddingsConfig struct {
	Host       string `yaml:"host" json:"host"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// DriverConfig configures the indexing driver's batching and training schedule.
type DriverConfig struct {
	BufferSize        int `yaml:"buffer_size" json:"buffer_size"`
	ExtractionWorkers int `yaml:"extraction_workers" json:"extraction_workers"`
	TrainingThreshold int `yaml:"training_threshold" json:"training_threshold"`
}

// DeadlinesConfig configures per-stage query deadlines (spec §5).
type DeadlinesConfig struct {
	Vector   time.Duration `yaml:"vector" json:"vector"`
	BM25     time.Duration `yaml:"bm25" json:"bm25"`
	Rerank   time.Duration `yaml:"rerank" json:"rerank"`
}

// ResourcesConfig configures the soft memory ceiling (spec §5, §9).
type ResourcesConfig struct {
	MemoryCeilingMB int `yaml:"memory_ceiling_mb" json:"memory_ceiling_mb"`
}

// Default returns the specification's fixed constants where the spec
// fixes them (IVF(nlist=256), PQ(M=16, nbits=8), k1=1.2, b=0.75,
// min_df=2, k_rrf=60, weights 0.7/0.3, rerank_pool<=30, deadlines
// 200/500/400ms) and reasonable defaults elsewhere.
func Default() Config {
	return Config{
		Paths: PathsConfig{DataDir: "embeddings"},
		Vector: VectorConfig{
			Dimensions:     512,
			NList:          256,
			PQM:            16,
			PQNBits:        8,
			NProbe:         8,
			TrainingSample: 100_000,
			KMeansIters:    25,
		},
		Lexical: LexicalConfig{
			K1:    1.2,
			B:     0.75,
			MinDF: 2,
		},
		Search: SearchConfig{
			RRFConstant:    60,
			VectorWeight:   0.7,
			BM25Weight:     0.3,
			ShortlistFloor: 40,
			RerankPoolMax:  30,
			SnippetWindow:  160,
			DefaultTopK:    5,
			MaxTopK:        50,
		},
		Embeddings: EmbeddingsConfig{
			Host:       "http://localhost:11434",
			Model:      "kugutsushi-embed",
			Dimensions: 512,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Driver: DriverConfig{
			BufferSize:        128,
			ExtractionWorkers: 4,
			TrainingThreshold: 100_000,
		},
		Deadlines: DeadlinesConfig{
			Vector: 200 * time.Millisecond,
			BM25:   500 * time.Millisecond,
			Rerank: 400 * time.Millisecond,
		},
		Resources: ResourcesConfig{
			MemoryCeilingMB: 500,
		},
	}
}

// Load reads and parses a YAML config file, filling any unset fields
// from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks invariants the spec fixes as "part of the contract"
// (the Text Filter and BM25 thresholds are fixed by spec.md directly
// and are not configurable; this validates what is).
func (c Config) Validate() error {
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector.dimensions must be positive")
	}
	if c.Vector.NList <= 0 {
		return fmt.Errorf("vector.nlist must be positive")
	}
	if c.Vector.PQM <= 0 || c.Vector.Dimensions%c.Vector.PQM != 0 {
		return fmt.Errorf("vector.pq_m must divide vector.dimensions evenly")
	}
	if c.Search.MaxTopK <= 0 {
		return fmt.Errorf("search.max_top_k must be positive")
	}
	if c.Search.VectorWeight < 0 || c.Search.BM25Weight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	return nil
}
