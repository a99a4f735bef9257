package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kugutsushi/engine/internal/driver"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <directory>",
		Short: "Index every PDF under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runIndex(c.Context(), args[0])
		},
	}
}

func runIndex(ctx context.Context, dir string) error {
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

	d := driver.New(cat, vec, lex, embedder, cfg, logger)
	result, err := d.Run(ctx, dir)
	if err != nil {
		if saveErr := vec.Save(vectorIndexPath(cfg)); saveErr != nil {
			logger.Warn("failed to persist vector index after a failed run", "error", saveErr)
		}
		return err
	}

	if err := vec.Save(vectorIndexPath(cfg)); err != nil {
		return err
	}

	fmt.Printf("indexed %d file(s), skipped %d, failed %d — %d passages total\n",
		result.FilesIndexed, result.FilesSkipped, result.FilesFailed, result.Passages)
	return nil
}
