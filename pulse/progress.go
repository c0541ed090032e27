package pulse

// ProgressEmitter receives progress updates from long-running operations such
// as batch runs. Implementations render them (terminal, logs) and must be safe
// to call from the goroutine that resolves batches.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces that count more records were resolved.
	// metadata carries per-batch details such as batch_no and failures.
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}
