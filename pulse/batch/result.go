package batch

import "time"

// Summary is the outcome of a run (aggregate mode) or of one batch (streaming mode).
type Summary struct {
	RunID               string              `json:"runId,omitempty"`
	Batches             int64               `json:"batches"`
	Total               int64               `json:"total"`
	TimeTaken           time.Duration       `json:"-"`
	TimeTakenSeconds    float64             `json:"timeTakenSeconds"`
	CommittedOperations int64               `json:"committedOperations"`
	FailedOperations    int64               `json:"failedOperations"`
	FailedBatches       int64               `json:"failedBatches"`
	Retries             int64               `json:"retries"`
	OperationErrors     map[string]int64    `json:"operationErrors"`
	BatchErrors         map[string]int64    `json:"batchErrors"`
	WasTerminated       bool                `json:"wasTerminated"`
	FailedParams        map[string][]Record `json:"failedParams"`
	UpdateStatistics    Statistics          `json:"updateStatistics"`
	SourceError         string              `json:"sourceError,omitempty"`
}

// BatchResult is one element of a streamed run: the batch's own summary,
// its 1-based position in submission order, and totals up to and including it.
type BatchResult struct {
	BatchNo int64 `json:"batchNo"`
	Summary
	Cumulative Totals `json:"cumulative"`
}

// Totals are running sums across the batches reported so far. Every field is
// non-decreasing along a stream.
type Totals struct {
	Batches             int64      `json:"batches"`
	Total               int64      `json:"total"`
	CommittedOperations int64      `json:"committedOperations"`
	FailedOperations    int64      `json:"failedOperations"`
	FailedBatches       int64      `json:"failedBatches"`
	Retries             int64      `json:"retries"`
	UpdateStatistics    Statistics `json:"updateStatistics"`
}

func (t *Totals) add(s *Summary) {
	t.Batches += s.Batches
	t.Total += s.Total
	t.CommittedOperations += s.CommittedOperations
	t.FailedOperations += s.FailedOperations
	t.FailedBatches += s.FailedBatches
	t.Retries += s.Retries
	if t.UpdateStatistics == nil {
		t.UpdateStatistics = Statistics{}
	}
	t.UpdateStatistics.Merge(s.UpdateStatistics)
}

func (t Totals) clone() Totals {
	t.UpdateStatistics = t.UpdateStatistics.Clone()
	return t
}

// merge folds a per-batch summary into s, used to build the final summary of
// a stream. Failed records are kept up to limit per message; negative keeps all.
func (s *Summary) merge(o *Summary, limit int) {
	s.Batches += o.Batches
	s.Total += o.Total
	s.CommittedOperations += o.CommittedOperations
	s.FailedOperations += o.FailedOperations
	s.FailedBatches += o.FailedBatches
	s.Retries += o.Retries
	for k, v := range o.OperationErrors {
		s.OperationErrors[k] += v
	}
	for k, v := range o.BatchErrors {
		s.BatchErrors[k] += v
	}
	for k, v := range o.FailedParams {
		if limit == 0 {
			break
		}
		if limit > 0 {
			room := limit - len(s.FailedParams[k])
			if room <= 0 {
				continue
			}
			if len(v) > room {
				v = v[:room]
			}
		}
		s.FailedParams[k] = append(s.FailedParams[k], v...)
	}
	s.UpdateStatistics.Merge(o.UpdateStatistics)
	s.WasTerminated = s.WasTerminated || o.WasTerminated
}

func newSummary(runID string) *Summary {
	return &Summary{
		RunID:            runID,
		OperationErrors:  map[string]int64{},
		BatchErrors:      map[string]int64{},
		FailedParams:     map[string][]Record{},
		UpdateStatistics: Statistics{},
	}
}
