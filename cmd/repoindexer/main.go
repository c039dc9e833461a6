// Command repoindexer clones, indexes, and incrementally syncs
// repositories into a vector store for semantic code search.
package main

import (
	"os"

	"github.com/repoindexer/repoindexer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
