package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/repoindexer/repoindexer/internal/categorizer"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <name>",
	Short: "Watch an indexed repository's local clone and apply changes as they happen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			exitCode = 3
			return err
		}
		defer a.Close()

		rec, err := a.Orchestrator.Catalog.Get(name)
		if err != nil {
			return err
		}

		cat := categorizer.New(a.Config.Indexing.RenameWindow(), a.Logger, func(dc categorizer.DetectedChange) {
			result, err := a.Orchestrator.ApplyLocalChange(ctx, name, dc)
			if err != nil {
				printErr("watch: apply %s: %v", dc.RelativePath, err)
				return
			}
			if len(result.Errors) > 0 {
				printErr("watch: %s: %d file error(s)", dc.RelativePath, len(result.Errors))
			}
		})

		watcher, err := categorizer.NewWatcher(rec.LocalPath, name, cat)
		if err != nil {
			exitCode = 3
			return err
		}
		defer watcher.Close()
		defer cat.Dispose()

		if err := watcher.Run(); err != nil {
			exitCode = 3
			return err
		}

		fmt.Printf("watching %s (%s); press ctrl-c to stop\n", name, rec.LocalPath)
		<-ctx.Done()
		return nil
	},
}
