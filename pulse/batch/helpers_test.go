package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// records returns n records with sequential ids starting at 0.
func records(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{"id": i}
	}
	return out
}

// testConfig is DefaultConfig with small batches and fast polling.
func testConfig(mod func(*Config)) Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	cfg.AdmitBackoff = time.Millisecond
	cfg.TerminationPoll = 5 * time.Millisecond
	cfg.AbandonGrace = 20 * time.Millisecond
	if mod != nil {
		mod(&cfg)
	}
	return cfg
}

func newTestDispatcher(t *testing.T, cfg Config, opts Options) *Dispatcher {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t).Sugar()
	}
	d, err := NewDispatcher(cfg, opts)
	require.NoError(t, err)
	return d
}

// okExecutor succeeds and reports one "rows" per record it was given.
func okExecutor() Executor {
	return ExecutorFunc(func(ctx context.Context, params Params) (Statistics, error) {
		if b, ok := params[DefaultBatchParam].([]Record); ok {
			if _, perRow := params["id"]; !perRow {
				return Statistics{"rows": int64(len(b))}, nil
			}
		}
		return Statistics{"rows": 1}, nil
	})
}

// recordingEmitter captures progress events.
type recordingEmitter struct {
	mu        sync.Mutex
	stages    []string
	progress  []map[string]interface{}
	counts    []int
	errors    []error
	completed []map[string]interface{}
}

func (e *recordingEmitter) EmitStage(stage, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, stage)
}

func (e *recordingEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = append(e.counts, count)
	e.progress = append(e.progress, metadata)
}

func (e *recordingEmitter) EmitComplete(summary map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, summary)
}

func (e *recordingEmitter) EmitError(stage string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, err)
}

func (e *recordingEmitter) EmitInfo(message string) {}
