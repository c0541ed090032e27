// Package commands implements the pulsebatch command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pulsebatch/am"
	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/logger"
)

// app is the state shared by every command of one invocation
type app struct {
	configPath string
	jsonOutput bool
	verbosity  int

	cfg *am.Config
}

// config loads the configuration once, from --config when given
func (a *app) config() (*am.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var (
		cfg *am.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = am.LoadFromFile(a.configPath)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	a.cfg = cfg
	return cfg, nil
}

// NewRootCmd builds the pulsebatch command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pulsebatch",
		Short: logger.SymPulse + " Bounded-concurrency batch execution",
		Long: logger.SymPulse + ` pulsebatch - run a unit of work over a stream of records in batches.

Records are read from JSON Lines, CSV or YAML input, grouped into batches and
executed against SQLite with a bounded number of batches in flight. Failures
are retried, counted and grouped by their root cause; a run can be terminated
with Ctrl+C and always reports a summary.

Available commands:
  run      - Execute a statement over every record of an input
  history  - Show past runs
  am       - Manage pulsebatch configuration ("I am")
  version  - Show version information

Examples:
  pulsebatch run -i people.jsonl --target app.db -s 'INSERT INTO people VALUES (:id, :name)'
  pulsebatch run -i people.csv --target app.db --parallel --concurrency 8 --stream -s @insert.sql
  pulsebatch history ls
  pulsebatch am show --sources`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Configuration output stays free of log lines
			if cmd.Name() == "version" || (cmd.Parent() != nil && cmd.Parent().Name() == "am") {
				return nil
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			verbosity := a.verbosity
			if verbosity == 0 {
				verbosity = cfg.Log.Verbosity
			}
			jsonLogs := a.jsonOutput || cfg.Log.JSON
			if err := logger.Initialize(jsonLogs, verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			a.verbosity = verbosity
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Cleanup()
		},
	}

	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Structured JSON output for logs, progress and results")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Read configuration from this file only (ignores system, user and project files)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newAmCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}
