package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsebatch/am"
	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/ixgest/records"
	"github.com/teranos/pulsebatch/logger"
	"github.com/teranos/pulsebatch/pulse"
	"github.com/teranos/pulsebatch/pulse/batch"
	"github.com/teranos/pulsebatch/pulse/history"
	"github.com/teranos/pulsebatch/sqlexec"
)

// ErrRunFailed is returned by 'run --fail-on-error' when any record failed
var ErrRunFailed = errors.New("run finished with failures")

type runOptions struct {
	input     string
	format    string
	target    string
	statement string
	setup     string

	batchSize    int
	concurrency  int
	parallel     bool
	retries      int
	failedParams int
	perRow       bool
	stream       bool
	metricsAddr  string

	runID       string
	noHistory   bool
	noProgress  bool
	failOnError bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: logger.SymPulse + " Execute a statement over every record of an input",
		Long: logger.SymPulse + ` Execute a SQL statement over every record of an input, in batches.

Each record's fields are bound to the statement's named parameters (:name,
@name or $name). Two more parameters are always available:
  :_batch   the whole batch as a JSON array (use with json_each)
  :_count   the position of the first record of the unit in the input

By default a batch is one transaction; with --per-row every record is its own
transaction and a failing record does not roll back its neighbours.

Press Ctrl+C once to stop admitting batches and let in-flight batches finish;
press it again to cancel them.

Examples:
  pulsebatch run -i people.jsonl --target app.db \
      --setup 'CREATE TABLE IF NOT EXISTS people (id INTEGER PRIMARY KEY, name TEXT)' \
      -s 'INSERT INTO people (id, name) VALUES (:id, :name)'

  pulsebatch run -i events.csv --target app.db --parallel --concurrency 8 \
      --batch-size 500 --retries 2 --stream -s @load_events.sql

  cat people.yaml | pulsebatch run -i - --format yaml --target app.db -s @upsert.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "-", "Input file (.jsonl, .csv, .yaml) or - for stdin")
	f.StringVar(&o.format, "format", "", "Input format: jsonl, csv, yaml (default: from the file extension)")
	f.StringVar(&o.target, "target", "", "SQLite database the statement runs against")
	f.StringVarP(&o.statement, "statement", "s", "", "SQL statement, or @file to read it from a file")
	f.StringVar(&o.setup, "setup", "", "SQL run once before the first batch, or @file")

	f.IntVar(&o.batchSize, "batch-size", 0, "Records per batch (default from config)")
	f.IntVar(&o.concurrency, "concurrency", 0, "Batches in flight when --parallel (default from config)")
	f.BoolVar(&o.parallel, "parallel", false, "Run batches concurrently")
	f.IntVar(&o.retries, "retries", 0, "Retries per unit of work (default from config)")
	f.IntVar(&o.failedParams, "failed-params", 0, "Failing records kept per error: -1 all, 0 none (default from config)")
	f.BoolVar(&o.perRow, "per-row", false, "One transaction per record instead of per batch")
	f.BoolVar(&o.stream, "stream", false, "Report every batch as it resolves")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run, e.g. :9100")

	f.StringVar(&o.runID, "run-id", "", "Name the run (default: a generated UUID)")
	f.BoolVar(&o.noHistory, "no-history", false, "Do not record the run in the history database")
	f.BoolVar(&o.noProgress, "no-progress", false, "Do not print progress")
	f.BoolVar(&o.failOnError, "fail-on-error", false, "Exit non-zero when any record failed or the input was unreadable")

	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("statement")
	return cmd
}

// engineConfig applies the flags that were set on top of the configuration file
func (o *runOptions) engineConfig(cmd *cobra.Command, cfg *am.Config) (batch.Config, bool) {
	b := cfg.Batch
	f := cmd.Flags()
	if f.Changed("batch-size") {
		b.BatchSize = o.batchSize
	}
	if f.Changed("concurrency") {
		b.Concurrency = o.concurrency
	}
	if f.Changed("parallel") {
		b.Parallel = o.parallel
	}
	if f.Changed("retries") {
		b.Retries = o.retries
	}
	if f.Changed("failed-params") {
		b.FailedParams = o.failedParams
	}
	if f.Changed("per-row") {
		b.IterateList = !o.perRow
	}
	if f.Changed("stream") {
		b.Stream = o.stream
	}

	merged := *cfg
	merged.Batch = b
	return merged.EngineConfig(), b.Stream
}

// readSQL returns s, or the contents of the file when s is @path
func readSQL(s string) (string, error) {
	if !strings.HasPrefix(s, "@") {
		return s, nil
	}
	path := strings.TrimPrefix(s, "@")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read SQL from %s", path)
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, a *app, o *runOptions) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	engineCfg, stream := o.engineConfig(cmd, cfg)
	if err := engineCfg.Validate(); err != nil {
		return err
	}

	statement, err := readSQL(o.statement)
	if err != nil {
		return err
	}
	setup, err := readSQL(o.setup)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target, err := openTarget(o.target)
	if err != nil {
		return err
	}
	defer target.Close()

	if strings.TrimSpace(setup) != "" {
		if _, err := target.ExecContext(ctx, setup); err != nil {
			return errors.Wrap(err, "setup statement failed")
		}
	}

	exec, err := sqlexec.New(target, statement, sqlexec.WithLogger(logger.Logger))
	if err != nil {
		return err
	}

	input, err := records.Open(o.input, o.format)
	if err != nil {
		return err
	}
	defer input.Close()

	registry := batch.NewRegistry()
	opts := batch.Options{
		Logger:   logger.Logger,
		Registry: registry,
		RunID:    o.runID,
		Progress: a.progressEmitter(cmd, o),
	}

	metricsAddr := cfg.Metrics.Addr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr = o.metricsAddr
	}
	if metricsAddr != "" {
		ms, err := startMetrics(metricsAddr)
		if err != nil {
			return err
		}
		defer ms.stop()
		opts.Metrics = ms.Metrics
	}

	d, err := batch.NewDispatcher(engineCfg, opts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go handleSignals(done, registry, cancel)

	out := cmd.OutOrStdout()
	mode := "aggregate"
	var summary *batch.Summary
	if stream {
		mode = "stream"
		summary, err = streamResults(ctx, d, input, exec, func(res batch.BatchResult) error {
			if a.jsonOutput {
				return writeJSON(out, res)
			}
			printBatchResult(out, res)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		summary = d.Run(ctx, input, exec)
	}

	if !o.noHistory {
		saveRun(cfg, history.NewRun(summary, d.Config(), mode, o.input, time.Now()))
	}

	if a.jsonOutput {
		err = writeJSON(out, summary)
	} else {
		err = printSummary(out, summary)
	}
	if err != nil {
		return err
	}

	if o.failOnError && (summary.FailedOperations > 0 || summary.SourceError != "") {
		return errors.WithDetailf(ErrRunFailed, "%d failed operations", summary.FailedOperations)
	}
	return nil
}

// streamResults hands every streamed batch to emit. When emit fails the run is
// cancelled and the rest of the stream is drained so the dispatcher can finish.
func streamResults(ctx context.Context, d *batch.Dispatcher, it batch.Iterator, exec batch.Executor, emit func(batch.BatchResult) error) (*batch.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := d.Stream(ctx, it, exec)
	var emitErr error
	for res := range s.C {
		if emitErr != nil {
			continue
		}
		if err := emit(res); err != nil {
			emitErr = errors.Wrapf(err, "failed to write batch %d", res.BatchNo)
			cancel()
		}
	}
	summary := s.Wait()
	if emitErr != nil {
		return nil, emitErr
	}
	return summary, nil
}

func (a *app) progressEmitter(cmd *cobra.Command, o *runOptions) pulse.ProgressEmitter {
	switch {
	case o.noProgress:
		return nil
	case a.jsonOutput:
		return pulse.NewJSONEmitter(cmd.ErrOrStderr())
	default:
		return pulse.NewCLIEmitter(a.verbosity)
	}
}

// handleSignals terminates every registered run on the first interrupt and
// cancels in-flight work on the second.
func handleSignals(done <-chan struct{}, registry *batch.Registry, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		n := registry.TerminateAll()
		pterm.Warning.Printf("Terminating %d run(s), waiting for in-flight batches (Ctrl+C again to cancel them)\n", n)
	case <-done:
		return
	}

	select {
	case <-sigs:
		pterm.Warning.Println("Cancelling in-flight batches")
		cancel()
	case <-done:
	}
}

// saveRun records a finished run. Failures are logged; the run's result stands.
func saveRun(cfg *am.Config, run *history.Run) {
	database, err := openHistory(cfg)
	if err != nil {
		logger.Warnw("Run not recorded in history", logger.FieldError, err)
		return
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := history.NewStore(database).Save(ctx, run); err != nil {
		logger.Warnw("Run not recorded in history", logger.FieldRunID, run.ID, logger.FieldError, err)
	}
}
