package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print catalogue and index counts",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cat, err := openCatalogue(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	counts, err := cat.Counts()
	if err != nil {
		return err
	}

	vec, err := openVectorIndex(cfg)
	if err != nil {
		return err
	}

	pending, err := cat.PendingFiles()
	if err != nil {
		return err
	}

	resCheck := buildResChecker(cfg)

	fmt.Printf("files:     %d (%d pending)\n", counts.Files, len(pending))
	fmt.Printf("passages:  %d\n", counts.Passages)
	fmt.Printf("vector index: trained=%t ntotal=%d\n", vec.Trained(), vec.NTotal())
	fmt.Printf("degraded_mode: %t\n", !resCheck.Allow())
	return nil
}
