package batch

import (
	"errors"
	"fmt"
	"time"
)

// Window identifies the slice of the total symbol set one batch covers.
type Window struct {
	Start int
	Size  int
}

// End returns the exclusive upper bound of the window.
func (w Window) End() int {
	return w.Start + w.Size
}

// JobSpec describes one engine invocation. Immutable once constructed.
type JobSpec struct {
	RunID      string
	BatchIndex int
	JobType    string
	Symbols    string
	StartDate  string
	EndDate    string
	OutputPath string
	LogPath    string
	Window     Window
}

// BatchResult reports what one launch produced.
type BatchResult struct {
	BatchIndex int
	OutputPath string
	ExitCode   int
	Duration   time.Duration
}

// BatchStatus enumerates journal states for a single batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusSucceeded BatchStatus = "succeeded"
	BatchStatusFailed    BatchStatus = "failed"
)

// RunStatus enumerates journal states for a whole run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusIncomplete RunStatus = "incomplete"
	RunStatusFailed     RunStatus = "failed"
)

// SortMode selects the post-merge ordering applied to the final output.
type SortMode string

const (
	SortModeNone  SortMode = "none"
	SortModeLines SortMode = "lines"
	SortModeCSV   SortMode = "csv"
)

// ParseSortMode validates a user-supplied sort mode string.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case SortModeNone, SortModeLines, SortModeCSV:
		return SortMode(s), nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (want none, lines or csv)", s)
	}
}

// Job is the full description of one orchestrated run.
type Job struct {
	JobType    string
	Symbols    string
	StartDate  string
	EndDate    string
	OutputPath string
	LogPath    string
	BatchSize  int
	Header     HeaderMode
	Sort       SortMode
}

// Report summarizes a finished run. FailedBatches holds the indices of
// batches whose launch failed or produced no output; the merged file is
// missing those batches' records.
type Report struct {
	RunID         string
	TotalSymbols  int
	WindowCount   int
	FailedBatches []int
	OutputPath    string
	OutputDigest  string
	Elapsed       time.Duration
}

// Complete reports whether every batch contributed to the merged output.
func (r Report) Complete() bool {
	return len(r.FailedBatches) == 0
}

// ErrIncompleteRun signals that the merged output is missing one or more
// batches. The Report accompanying the error lists the failed indices.
var ErrIncompleteRun = errors.New("run completed with failed batches")
