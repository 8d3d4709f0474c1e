package domain

import (
	"encoding/json"
	"time"
)

// ReadingStatus enumerates reading lifecycle states. Completed and failed are
// terminal: a row that reached either is never transitioned again.
type ReadingStatus string

const (
	ReadingPending    ReadingStatus = "pending"
	ReadingProcessing ReadingStatus = "processing"
	ReadingCompleted  ReadingStatus = "completed"
	ReadingFailed     ReadingStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s ReadingStatus) IsTerminal() bool {
	return s == ReadingCompleted || s == ReadingFailed
}

// Error codes recorded on failed readings.
const (
	ReadingErrNoPalm        = "no_palm_detected"
	ReadingErrAnalysis      = "analysis_error"
	ReadingErrEnqueueFailed = "enqueue_failed"
	ReadingErrStuckTimeout  = "stuck_timeout"
)

// Reading is one palm-analysis unit of work.
type Reading struct {
	ID           string
	AccountID    string
	ProfileID    string
	ImageKey     string
	Status       ReadingStatus
	AnalysisJSON json.RawMessage
	ErrorCode    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
