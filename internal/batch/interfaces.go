package batch

import (
	"context"
	"time"
)

// Launcher invokes the external crawl engine for one batch window. It
// returns the path of the output file the engine produced; a failed
// launch may leave no file or a partial one, which the caller detects.
type Launcher interface {
	Launch(ctx context.Context, job JobSpec) (BatchResult, error)
}

// Journal persists run and batch progress so failed batch indices can be
// reported after the fact.
type Journal interface {
	CreateRun(ctx context.Context, runID string, job Job, totalSymbols, windowCount int) error
	RecordBatch(ctx context.Context, runID string, index int, window Window, status BatchStatus, exitCode int, errText string) error
	FinishRun(ctx context.Context, runID string, status RunStatus, errText string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
