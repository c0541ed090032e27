package pulse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/time/rate"
)

// DefaultProgressInterval is the minimum gap between two progress lines of a CLIEmitter
const DefaultProgressInterval = 250 * time.Millisecond

// ProgressEvent represents a structured JSON progress event
type ProgressEvent struct {
	Type      string                 `json:"type"`      // "stage", "progress", "complete", "error", "info"
	Timestamp time.Time              `json:"timestamp"` // When this event occurred
	Data      map[string]interface{} `json:"data"`      // Event-specific data
}

// CLIEmitter outputs pretty-printed progress to terminal using pterm.
// Progress lines are throttled; stage, error and completion lines are not.
type CLIEmitter struct {
	verbosity int
	records   atomic.Int64
	batches   atomic.Int64
	failed    atomic.Int64
	sometimes *rate.Sometimes
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{
		verbosity: verbosity,
		sometimes: &rate.Sometimes{Interval: DefaultProgressInterval},
	}
}

// EmitStage prints a stage announcement to terminal
func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Printf("🔄 %s: %s\n", pterm.LightCyan(stage), message)
}

// EmitProgress accumulates resolved records and prints the running count
func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	records := e.records.Add(int64(count))
	batches := e.batches.Add(1)
	failed := e.failed.Load()
	if n, ok := metadata["failed"].(int64); ok && n > 0 {
		failed = e.failed.Add(n)
	}

	e.sometimes.Do(func() {
		line := fmt.Sprintf("Processed %s records in %s batches",
			pterm.Green(fmt.Sprintf("%d", records)), pterm.Green(fmt.Sprintf("%d", batches)))
		if failed > 0 {
			line += fmt.Sprintf(", %s failed", pterm.Red(fmt.Sprintf("%d", failed)))
		}
		pterm.Printf("✅ %s\n", line)
	})
}

// Records returns the number of records reported so far
func (e *CLIEmitter) Records() int64 { return e.records.Load() }

// EmitComplete prints completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	if terminated, _ := summary["was_terminated"].(bool); terminated {
		pterm.Warning.Println("Run terminated before all batches completed")
	} else {
		pterm.Success.Println("Processing complete!")
	}
	if e.verbosity >= 1 {
		for key, value := range summary {
			pterm.Printf("  %s: %v\n", key, value)
		}
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("Error in %s: %v\n", stage, err)
}

// EmitInfo prints informational message
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}

// JSONEmitter writes one JSON progress event per line
type JSONEmitter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONEmitter creates a JSON progress emitter writing to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.encoder.Encode(ProgressEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// EmitStage emits a stage event as JSON
func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit("stage", map[string]interface{}{
		"stage":   stage,
		"message": message,
	})
}

// EmitProgress emits a progress event as JSON
func (e *JSONEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	data := map[string]interface{}{
		"count": count,
	}
	for k, v := range metadata {
		data[k] = v
	}
	e.emit("progress", data)
}

// EmitComplete emits a completion event as JSON
func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit("complete", summary)
}

// EmitError emits an error event as JSON
func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit("error", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
}

// EmitInfo emits an info event as JSON
func (e *JSONEmitter) EmitInfo(message string) {
	e.emit("info", map[string]interface{}{
		"message": message,
	})
}
