package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsebatch/pulse/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs",
		Long: `Every finished run is recorded in the history database
(database.path, default pulsebatch.db) unless 'run --no-history' is given.

Examples:
  pulsebatch history ls              # List the latest runs
  pulsebatch history ls --limit 50   # Show up to 50 runs
  pulsebatch history show <run-id>   # Show the summary of one run
  pulsebatch history rm <run-id>     # Forget a run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	historyCmd.AddCommand(newHistoryLsCmd(a))
	historyCmd.AddCommand(newHistoryShowCmd(a))
	historyCmd.AddCommand(newHistoryRmCmd(a))
	return historyCmd
}

func newHistoryLsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := a.historyStore()
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			return printRuns(out, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "Maximum number of runs to display")
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the summary of a past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := a.historyStore()
			if err != nil {
				return err
			}
			defer closeDB()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, run)
			}

			fmt.Fprintf(out, "%s %s run of %s (%s, batches of %d, %d in flight, %d retries)\n",
				pterm.LightCyan(run.ID), run.Mode, run.Input, run.Strategy,
				run.BatchSize, run.Concurrency, run.Retries)
			fmt.Fprintf(out, "Started %s, finished %s\n\n",
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.FinishedAt.Local().Format("2006-01-02 15:04:05"))
			return printSummary(out, run.Summary)
		},
	}
}

func newHistoryRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <run-id>",
		Short: "Delete a run from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := a.historyStore()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) historyStore() (*history.Store, func(), error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	database, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(database), func() { database.Close() }, nil
}
