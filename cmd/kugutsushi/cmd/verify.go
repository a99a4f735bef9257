package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check index structure and cross-check passage counts",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runVerify()
		},
	}
}

// runVerify checks the vector index's own structural invariants, then
// cross-checks the catalogue's passage count against both indices'
// counts — a divergence means a file indexed partially or was never
// fully committed to one side.
func runVerify() error {
	vec, err := openVectorIndex(cfg)
	if err != nil {
		return err
	}
	if err := vec.Verify(); err != nil {
		return fmt.Errorf("vector index failed structural verification: %w", err)
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

	counts, err := cat.Counts()
	if err != nil {
		return err
	}
	lexCount, _, err := lex.Stats()
	if err != nil {
		return err
	}

	if int64(vec.NTotal()) != counts.Passages {
		return fmt.Errorf("vector index holds %d vectors but the catalogue has %d passages", vec.NTotal(), counts.Passages)
	}
	if lexCount != counts.Passages {
		return fmt.Errorf("lexical index holds %d documents but the catalogue has %d passages", lexCount, counts.Passages)
	}

	fmt.Println(colorize(fmt.Sprintf("ok: %d passages consistent across catalogue, vector index, and lexical index", counts.Passages), "32"))
	return nil
}
