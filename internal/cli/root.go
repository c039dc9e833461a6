package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repoindexer/repoindexer/internal/catalog"
	"github.com/repoindexer/repoindexer/internal/coordinator"
	"github.com/repoindexer/repoindexer/internal/forge"
	"github.com/repoindexer/repoindexer/internal/orchestrator"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "repoindexer",
	Short: "Index and keep a repository's semantic search collection in sync",
	Long: `repoindexer clones a repository, chunks and embeds its files, and
writes the result to a vector store. It stays in sync with the
repository's remote history through incremental updates driven by
commit comparison, without re-cloning or re-embedding unchanged files.`,
}

// exitCode is set by a subcommand's RunE before returning, classifying
// the outcome per the CLI/RPC surface's exit-code convention: 0
// success, 1 pre-flight error, 2 partial result, 3 fatal runtime error.
var exitCode int

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = classify(err)
		}
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides REPOINDEXER_CONFIG_FILE)")
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			os.Setenv("REPOINDEXER_CONFIG_FILE", cfgFile)
		}
	})
}

// classify maps a returned error to its exit code. Pre-flight errors
// (the ones spec.md §6 says the orchestrator always throws rather than
// swallows) map to 1; anything else is treated as a fatal runtime error.
func classify(err error) int {
	preflight := []error{
		catalog.ErrAlreadyExists,
		catalog.ErrNotFound,
		orchestrator.ErrIngestionInProgress,
		orchestrator.ErrRemoveWhileIngesting,
		coordinator.ErrMissingCommitSha,
		coordinator.ErrConcurrentUpdate,
		coordinator.ErrForcePushDetected,
		coordinator.ErrChangeThresholdExceeded,
		coordinator.ErrGitPull,
		forge.ErrInvalidURL,
	}
	for _, sentinel := range preflight {
		if errors.Is(err, sentinel) {
			return 1
		}
	}
	var concurrent *coordinator.ConcurrentUpdateError
	if errors.As(err, &concurrent) {
		return 1
	}
	return 3
}

func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
