// Command kugutsushi is a minimal harness for driving the retrieval
// core by hand: index a directory of PDFs, run one query against it,
// or inspect the catalogue's state. It is not a wrapper product.
package main

import (
	"os"

	"github.com/kugutsushi/engine/cmd/kugutsushi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
