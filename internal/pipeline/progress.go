package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Progress is a running snapshot reported after every batch.
type Progress struct {
	Batches      int
	TotalBatches int
	Processed    int
	Total        int
	Matched      int
	MatchRate    float64
	Elapsed      time.Duration
	ETA          time.Duration
}

// newProgress extrapolates the remaining time linearly from the rate so far.
func newProgress(batches, totalBatches, processed, total, matched int, elapsed time.Duration) Progress {
	p := Progress{
		Batches:      batches,
		TotalBatches: totalBatches,
		Processed:    processed,
		Total:        total,
		Matched:      matched,
		Elapsed:      elapsed,
	}
	if processed > 0 {
		p.MatchRate = float64(matched) / float64(processed)
		remaining := total - processed
		if remaining > 0 {
			p.ETA = time.Duration(float64(elapsed) / float64(processed) * float64(remaining))
		}
	}
	return p
}

// Summary is the result of one Run.
type Summary struct {
	RunID         uuid.UUID     `json:"run_id" yaml:"run_id"`
	Records       int           `json:"records" yaml:"records"`
	Unique        int           `json:"unique" yaml:"unique"`
	Invalid       int           `json:"invalid" yaml:"invalid"`
	Skipped       int           `json:"skipped" yaml:"skipped"`
	Submitted     int           `json:"submitted" yaml:"submitted"`
	Matched       int           `json:"matched" yaml:"matched"`
	Null          int           `json:"null" yaml:"resolved_null"`
	Failed        int           `json:"failed" yaml:"failed"`
	Malformed     int           `json:"malformed" yaml:"malformed"`
	Batches       int           `json:"batches" yaml:"batches"`
	FailedBatches int           `json:"failed_batches" yaml:"failed_batches"`
	NetworkCalls  int           `json:"network_calls" yaml:"network_calls"`
	Checkpoints   int           `json:"checkpoints" yaml:"checkpoints"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

// Unresolved is the number of submitted addresses that ended without
// coordinates.
func (s *Summary) Unresolved() int {
	return s.Null + s.Failed
}
