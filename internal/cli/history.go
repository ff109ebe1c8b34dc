package cli

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/datenknoten/restic-orchestrator/internal/history"
	"github.com/datenknoten/restic-orchestrator/internal/ui"
)

var historyLimit int

// historyCmd lists recorded runs
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or the steps of one run",
	Long: `List the most recent backup and init runs, newest first.

With a run ID (or its first characters, as shown in the list) print every
step of that run with its exit code and duration.

Examples:
  restic-orchestrator history
  restic-orchestrator history --limit 50
  restic-orchestrator history 0b9f3c1e`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(settings)
		if err != nil {
			return err
		}
		d := defaultDeps()
		d.stdout = cmd.OutOrStdout()

		runID := ""
		if len(args) == 1 {
			runID = args[0]
		}
		return historyCommand(cmd.Context(), opts, d, runID, historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

func historyCommand(ctx context.Context, opts Options, d deps, runID string, limit int) error {
	path, err := historyPath(opts)
	if err != nil {
		return err
	}

	// Opening creates the database, so don't for a plain listing.
	if ok, _ := afero.Exists(d.fs, path); !ok && runID == "" {
		fmt.Fprint(d.stdout, ui.RenderHistory(nil, d.now()))
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID != "" {
		id, err := store.Resolve(ctx, runID)
		if err != nil {
			return err
		}
		steps, err := store.Steps(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(d.stdout, "Run %s\n\n", id)
		fmt.Fprint(d.stdout, ui.RenderSteps(steps))
		return nil
	}

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprint(d.stdout, ui.RenderHistory(runs, d.now()))
	return nil
}
