package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repoindexer/repoindexer/internal/catalog"
	"github.com/repoindexer/repoindexer/internal/orchestrator"
)

var (
	indexBranch  string
	indexInclude []string
	indexExclude []string
)

func init() {
	indexCmd.Flags().StringVar(&indexBranch, "branch", "", "branch to index (defaults to the forge's default branch)")
	indexCmd.Flags().StringSliceVar(&indexInclude, "include-ext", nil, "file extensions to include (defaults to the built-in set)")
	indexCmd.Flags().StringSliceVar(&indexExclude, "exclude", nil, "glob patterns to exclude")
	rootCmd.AddCommand(indexCmd)

	reindexCmd.Flags().StringVar(&indexBranch, "branch", "", "branch to index (defaults to the forge's default branch)")
	reindexCmd.Flags().StringSliceVar(&indexInclude, "include-ext", nil, "file extensions to include (defaults to the built-in set)")
	reindexCmd.Flags().StringSliceVar(&indexExclude, "exclude", nil, "glob patterns to exclude")
	rootCmd.AddCommand(reindexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index <url>",
	Short: "Clone and index a new repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args[0], false)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <url>",
	Short: "Re-clone and re-index an already-indexed repository from scratch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args[0], true)
	},
}

func runIndex(ctx context.Context, url string, force bool) error {
	a, err := buildApp(ctx)
	if err != nil {
		exitCode = 3
		return err
	}
	defer a.Close()

	opts := orchestrator.Options{
		Branch:            indexBranch,
		Force:             force,
		IncludeExtensions: indexInclude,
		ExcludePatterns:   indexExclude,
	}

	var rec catalog.Record
	if force {
		rec, err = a.Orchestrator.ReindexRepository(ctx, url, opts)
	} else {
		rec, err = a.Orchestrator.IndexRepository(ctx, url, opts)
	}
	if err != nil {
		return err
	}

	if rec.Status == catalog.StatusError {
		exitCode = 2
		printErr("index: completed with errors: %s", rec.ErrorMessage)
		return nil
	}

	fmt.Printf("indexed %s: %d files, %d chunks, commit %s\n", rec.Name, rec.FileCount, rec.ChunkCount, rec.LastIndexedCommitSha)
	return nil
}
