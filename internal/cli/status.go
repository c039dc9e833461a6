package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every indexed repository and whether an ingestion is in flight",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			exitCode = 3
			return err
		}
		defer a.Close()

		st, err := a.Orchestrator.GetStatus()
		if err != nil {
			exitCode = 3
			return err
		}

		if st.Ingesting {
			fmt.Printf("ingesting: %s\n", st.CurrentRepository)
		} else {
			fmt.Println("ingesting: none")
		}
		for _, rec := range st.Repositories {
			fmt.Printf("  %-30s %-8s files=%-6d chunks=%-6d commit=%s\n",
				rec.Name, rec.Status, rec.FileCount, rec.ChunkCount, rec.LastIndexedCommitSha)
		}
		return nil
	},
}
