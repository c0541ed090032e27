package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/pulse/batch"
	"github.com/teranos/pulsebatch/pulse/history"
)

// writeJSON writes v as one JSON document per line
func writeJSON(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode JSON output")
	}
	return nil
}

// printSummary renders the summary of a run as tables
func printSummary(w io.Writer, s *batch.Summary) error {
	status := pterm.Green("completed")
	if s.WasTerminated {
		status = pterm.Yellow("terminated")
	}

	data := pterm.TableData{
		{"Run", s.RunID},
		{"Status", status},
		{"Batches", strconv.FormatInt(s.Batches, 10)},
		{"Records", strconv.FormatInt(s.Total, 10)},
		{"Committed", strconv.FormatInt(s.CommittedOperations, 10)},
		{"Failed", strconv.FormatInt(s.FailedOperations, 10)},
		{"Failed batches", strconv.FormatInt(s.FailedBatches, 10)},
		{"Retries", strconv.FormatInt(s.Retries, 10)},
		{"Time", fmt.Sprintf("%.3fs", s.TimeTakenSeconds)},
	}
	for _, key := range sortedKeys(s.UpdateStatistics) {
		data = append(data, []string{key, strconv.FormatInt(s.UpdateStatistics[key], 10)})
	}
	if s.SourceError != "" {
		data = append(data, []string{"Input error", pterm.Red(s.SourceError)})
	}

	table, err := pterm.DefaultTable.WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render summary")
	}
	fmt.Fprintln(w, table)

	if err := printErrors(w, "Batch errors", s.BatchErrors); err != nil {
		return err
	}
	return printErrors(w, "Operation errors", s.OperationErrors)
}

func printErrors(w io.Writer, title string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	// Most frequent first
	keys := sortedKeys(counts)
	sort.SliceStable(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })

	data := pterm.TableData{{"COUNT", "ERROR"}}
	for _, k := range keys {
		data = append(data, []string{strconv.FormatInt(counts[k], 10), k})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrapf(err, "failed to render %s", title)
	}
	fmt.Fprintf(w, "\n%s\n%s\n", pterm.Red(title), table)
	return nil
}

// printBatchResult renders one line of a streamed run
func printBatchResult(w io.Writer, r batch.BatchResult) {
	line := fmt.Sprintf("batch %d: %d records, %d committed, %d failed",
		r.BatchNo, r.Total, r.CommittedOperations, r.FailedOperations)
	if r.Retries > 0 {
		line += fmt.Sprintf(", %d retries", r.Retries)
	}
	if r.WasTerminated {
		line += " (terminated)"
	}
	line += fmt.Sprintf(" | total %d/%d", r.Cumulative.CommittedOperations, r.Cumulative.Total)
	fmt.Fprintln(w, line)
}

// printRuns renders the history list
func printRuns(w io.Writer, runs []*history.Run) error {
	data := pterm.TableData{{"RUN ID", "MODE", "STRATEGY", "RECORDS", "COMMITTED", "FAILED", "STATUS", "STARTED"}}
	for _, r := range runs {
		status := "completed"
		if r.Summary.WasTerminated {
			status = "terminated"
		}
		data = append(data, []string{
			r.ID,
			r.Mode,
			r.Strategy,
			strconv.FormatInt(r.Summary.Total, 10),
			strconv.FormatInt(r.Summary.CommittedOperations, 10),
			strconv.FormatInt(r.Summary.FailedOperations, 10),
			status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render history")
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "\nTotal: %d run(s)\n", len(runs))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
