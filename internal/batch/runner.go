package batch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/quotefeed/harvester/internal/hash/sha256"
	"github.com/quotefeed/harvester/internal/metrics"
)

// Runner executes one orchestrated run: count symbols, plan windows,
// launch the engine once per window in ascending order, merge the batch
// outputs and optionally sort the result. Batches run strictly one after
// another; there is no shared state between them beyond the journal.
type Runner struct {
	launcher Launcher
	journal  Journal
	idGen    IDGenerator
	clock    Clock
	logger   *zap.Logger
}

// NewRunner constructs a Runner. journal may be nil when run bookkeeping
// is not wanted (tests, ad-hoc invocations).
func NewRunner(launcher Launcher, journal Journal, idGen IDGenerator, clock Clock, logger *zap.Logger) *Runner {
	return &Runner{
		launcher: launcher,
		journal:  journal,
		idGen:    idGen,
		clock:    clock,
		logger:   logger,
	}
}

// Run drives the full pipeline for job. When one or more batches fail,
// the surviving batches are still merged and the returned error wraps
// ErrIncompleteRun so the caller can distinguish a holed output file
// from a complete one.
func (r *Runner) Run(ctx context.Context, job Job) (Report, error) {
	started := r.clock.Now()

	runID, err := r.idGen.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID))

	total, err := CountSymbols(job.Symbols, logger)
	if err != nil {
		return Report{}, fmt.Errorf("count symbols: %w", err)
	}
	metrics.SetSymbolsPlanned(total)

	windows, err := PlanWindows(total, job.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("plan windows: %w", err)
	}
	logger.Info("run planned",
		zap.Int("total_symbols", total),
		zap.Int("batch_size", job.BatchSize),
		zap.Int("windows", len(windows)),
	)

	report := Report{
		RunID:        runID,
		TotalSymbols: total,
		WindowCount:  len(windows),
		OutputPath:   job.OutputPath,
	}

	if err := r.createRun(ctx, runID, job, total, len(windows)); err != nil {
		return report, err
	}

	if len(windows) == 0 {
		logger.Info("no symbols to collect; nothing launched")
		r.finishRun(ctx, runID, RunStatusSucceeded, "")
		report.Elapsed = r.clock.Now().Sub(started)
		return report, nil
	}

	failed, launchErr := r.launchAll(ctx, runID, job, windows, logger)
	report.FailedBatches = failed
	if launchErr != nil {
		r.finishRun(ctx, runID, RunStatusFailed, launchErr.Error())
		return report, launchErr
	}

	if len(windows) > 1 {
		sources := make([]string, len(windows))
		for i := range windows {
			sources[i] = batchOutputPath(job.OutputPath, i)
		}
		lines, err := MergeFiles(job.OutputPath, sources, job.Header, logger)
		if err != nil {
			r.finishRun(ctx, runID, RunStatusFailed, err.Error())
			return report, fmt.Errorf("merge batch outputs: %w", err)
		}
		metrics.ObserveMergedLines(lines)
		logger.Info("batch outputs merged", zap.Int("lines", lines), zap.String("target", job.OutputPath))
	}

	if _, statErr := os.Stat(job.OutputPath); statErr == nil || len(failed) == 0 {
		if err := r.sortOutput(job, logger); err != nil {
			r.finishRun(ctx, runID, RunStatusFailed, err.Error())
			return report, err
		}
	} else {
		// Every batch failed and nothing was produced; sorting a
		// missing file would only mask the launch failures.
		logger.Warn("output file missing; skipping sort", zap.String("output", job.OutputPath))
	}

	report.OutputDigest = outputDigest(job.OutputPath, logger)

	report.Elapsed = r.clock.Now().Sub(started)
	if len(failed) > 0 {
		r.finishRun(ctx, runID, RunStatusIncomplete, fmt.Sprintf("failed batches: %v", failed))
		metrics.ObserveRun(string(RunStatusIncomplete))
		return report, fmt.Errorf("%w: batch indices %v", ErrIncompleteRun, failed)
	}
	r.finishRun(ctx, runID, RunStatusSucceeded, "")
	metrics.ObserveRun(string(RunStatusSucceeded))
	logger.Info("run complete", zap.String("output", job.OutputPath), zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// launchAll runs every window sequentially. It returns the indices of
// batches that failed, and a non-nil error only when the run as a whole
// must abort (context cancellation).
func (r *Runner) launchAll(ctx context.Context, runID string, job Job, windows []Window, logger *zap.Logger) ([]int, error) {
	var failed []int
	single := len(windows) == 1

	for i, win := range windows {
		if err := ctx.Err(); err != nil {
			return failed, fmt.Errorf("run canceled before batch %d: %w", i, err)
		}

		outputPath := batchOutputPath(job.OutputPath, i)
		if single {
			// One window covers the whole input; its output is the
			// final output and the merge step is skipped.
			outputPath = job.OutputPath
		}

		spec := JobSpec{
			RunID:      runID,
			BatchIndex: i,
			JobType:    job.JobType,
			Symbols:    job.Symbols,
			StartDate:  job.StartDate,
			EndDate:    job.EndDate,
			OutputPath: outputPath,
			LogPath:    batchLogPath(job.LogPath, i),
			Window:     win,
		}

		r.recordBatch(ctx, runID, i, win, BatchStatusRunning, 0, "")
		res, err := r.launcher.Launch(ctx, spec)
		if err != nil {
			failed = append(failed, i)
			r.recordBatch(ctx, runID, i, win, BatchStatusFailed, res.ExitCode, err.Error())
			metrics.ObserveBatch(string(BatchStatusFailed))
			logger.Error("batch launch failed",
				zap.Int("batch", i),
				zap.Int("start", win.Start),
				zap.Int("size", win.Size),
				zap.Error(err),
			)
			continue
		}

		r.recordBatch(ctx, runID, i, win, BatchStatusSucceeded, res.ExitCode, "")
		metrics.ObserveBatch(string(BatchStatusSucceeded))
		metrics.ObserveBatchDuration(res.Duration)
		logger.Debug("batch complete",
			zap.Int("batch", i),
			zap.Int("start", win.Start),
			zap.Int("size", win.Size),
			zap.Duration("duration", res.Duration),
		)
	}
	return failed, nil
}

func (r *Runner) sortOutput(job Job, logger *zap.Logger) error {
	switch job.Sort {
	case SortModeLines:
		if err := SortLines(job.OutputPath, logger); err != nil {
			return fmt.Errorf("sort output lines: %w", err)
		}
	case SortModeCSV:
		if err := SortCSV(job.OutputPath, logger); err != nil {
			return fmt.Errorf("sort output csv: %w", err)
		}
	case SortModeNone, "":
	default:
		return fmt.Errorf("unknown sort mode %q", job.Sort)
	}
	return nil
}

func (r *Runner) createRun(ctx context.Context, runID string, job Job, total, windows int) error {
	if r.journal == nil {
		return nil
	}
	if err := r.journal.CreateRun(ctx, runID, job, total, windows); err != nil {
		return fmt.Errorf("journal create run: %w", err)
	}
	return nil
}

func (r *Runner) recordBatch(ctx context.Context, runID string, index int, win Window, status BatchStatus, exitCode int, errText string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordBatch(ctx, runID, index, win, status, exitCode, errText); err != nil {
		r.logger.Warn("journal record batch failed", zap.Int("batch", index), zap.Error(err))
	}
}

func (r *Runner) finishRun(ctx context.Context, runID string, status RunStatus, errText string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.FinishRun(ctx, runID, status, errText); err != nil {
		r.logger.Warn("journal finish run failed", zap.String("status", string(status)), zap.Error(err))
	}
}

// outputDigest fingerprints the final output file so a report can be
// checked against the file it describes. Missing output yields "".
func outputDigest(path string, logger *zap.Logger) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	digest, err := sha256.New().Hash(data)
	if err != nil {
		logger.Warn("output digest failed", zap.String("output", path), zap.Error(err))
		return ""
	}
	return digest
}

// batchOutputPath appends the batch index suffix to the configured
// output path. Batch files are transient and consumed by the merge.
func batchOutputPath(outputPath string, index int) string {
	return fmt.Sprintf("%s.batch%d", outputPath, index)
}

func batchLogPath(logPath string, index int) string {
	if strings.TrimSpace(logPath) == "" {
		return ""
	}
	return fmt.Sprintf("%s.batch%d", logPath, index)
}
