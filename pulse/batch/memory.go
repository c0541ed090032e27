package batch

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/pulsebatch/errors"
)

// approxRecordBytes is a rough resident size of one decoded record.
const approxRecordBytes = 512

// memoryStats returns total and available memory in bytes.
// Replaced in tests.
var memoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// checkMemoryPressure estimates the records held by in-flight batches and
// returns a warning when they may not fit in available memory. Empty means OK.
func checkMemoryPressure(cfg Config) string {
	total, available, err := memoryStats()
	if err != nil || total == 0 {
		return "" // Can't check, assume OK
	}

	estimated := uint64(cfg.limit()) * uint64(cfg.BatchSize) * approxRecordBytes
	if estimated <= available/2 {
		return ""
	}

	const gb = 1024 * 1024 * 1024
	return fmt.Sprintf(
		"%d in-flight batches of %d records may need ~%.1fGB, %.1f/%.1fGB available. "+
			"Consider reducing concurrency or batch size.",
		cfg.limit(), cfg.BatchSize, float64(estimated)/gb, float64(available)/gb, float64(total)/gb)
}
