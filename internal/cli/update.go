package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repoindexer/repoindexer/internal/coordinator"
)

func init() {
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Apply an incremental update for an already-indexed repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			exitCode = 3
			return err
		}
		defer a.Close()

		result, err := a.Orchestrator.UpdateRepository(ctx, args[0])
		if err != nil {
			return err
		}

		if len(result.Errors) > 0 {
			exitCode = 2
			printErr("update: completed with %d file error(s)", len(result.Errors))
		}

		switch result.Status {
		case coordinator.StatusNoChanges:
			fmt.Printf("%s: already up to date at %s\n", args[0], result.CommitSha)
		case coordinator.StatusUpdated:
			fmt.Printf("%s: updated to %s (+%d ~%d -%d files)\n", args[0], result.CommitSha,
				result.Stats.FilesAdded, result.Stats.FilesModified, result.Stats.FilesDeleted)
		default:
			exitCode = 3
			printErr("update: %s ended in unexpected status %q", args[0], result.Status)
		}
		return nil
	},
}
