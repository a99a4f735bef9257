package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kugutsushi/engine/internal/embed"
	"github.com/kugutsushi/engine/internal/search"
)

type searchOptions struct {
	topK   int
	mode   string
	format string
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}
	c := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one query against the indexed corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runSearch(c.Context(), args[0], opts)
		},
	}
	c.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "number of results to return (defaults to config)")
	c.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "retrieval mode: vector, hybrid, or hybrid+rerank")
	c.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text or json")
	return c
}

func runSearch(ctx context.Context, query string, opts *searchOptions) error {
	mode := search.Mode(opts.mode)
	switch mode {
	case search.ModeVector, search.ModeHybrid, search.ModeHybridRerank:
	default:
		return fmt.Errorf("unknown mode %q (want vector, hybrid, or hybrid+rerank)", opts.mode)
	}

	cat, err := openCatalogue(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	lex, err := openLexical(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lex.Close() }()

	vec, err := openVectorIndex(cfg)
	if err != nil {
		return err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	// The minimal harness has no cross-encoder wired in; hybrid+rerank
	// degrades to fused ordering via the no-op reranker rather than
	// failing the query.
	var reranker embed.Reranker = embed.NoOpReranker{}

	engine := search.New(vec, lex, cat, embedder, reranker, buildResChecker(cfg), cfg)
	resp, err := engine.Search(ctx, query, mode, opts.topK)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return printSearchJSON(resp)
	default:
		printSearchText(resp)
		return nil
	}
}

func printSearchText(resp *search.Response) {
	if resp.Degraded {
		fmt.Println(colorize("warning: query ran in degraded mode (a sub-retriever failed, or reranking was skipped under memory pressure)", "33"))
	}
	for i, r := range resp.Results {
		fmt.Printf("%s %.4f  %s p%d#%d\n", colorize(fmt.Sprintf("%2d.", i+1), "36"), r.Score, r.Source, r.Page, r.ChunkIndex)
		fmt.Printf("    %s\n", r.Snippet)
	}
	if len(resp.Results) == 0 {
		fmt.Println("no results")
	}
}

func printSearchJSON(resp *search.Response) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
