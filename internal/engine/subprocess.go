// Package engine adapts the external crawl engine to the batch.Launcher
// contract via subprocess invocation.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quotefeed/harvester/internal/batch"
)

// Config captures the parameters for invoking the crawl engine.
type Config struct {
	// Binary is the path to the engine executable.
	Binary string `mapstructure:"binary"`
	// BaseArgs are prepended to every invocation.
	BaseArgs []string `mapstructure:"base_args"`
	// WorkDir is the working directory for the engine process.
	WorkDir string `mapstructure:"work_dir"`
	// Timeout bounds one batch invocation; expiry is a launch failure
	// for that batch only.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Subprocess launches the crawl engine as a child process, one
// invocation per batch window.
type Subprocess struct {
	cfg    Config
	logger *zap.Logger
}

// NewSubprocess constructs a Subprocess launcher.
func NewSubprocess(cfg Config, logger *zap.Logger) (*Subprocess, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, fmt.Errorf("engine binary is required")
	}
	return &Subprocess{cfg: cfg, logger: logger}, nil
}

// Launch runs the engine for one batch window and waits for it to exit.
// It returns an error when the process fails, times out, or exits
// cleanly without producing an output file.
func (s *Subprocess) Launch(ctx context.Context, job batch.JobSpec) (batch.BatchResult, error) {
	result := batch.BatchResult{
		BatchIndex: job.BatchIndex,
		OutputPath: job.OutputPath,
		ExitCode:   -1,
	}

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	args := buildArgs(s.cfg.BaseArgs, job)
	cmd := exec.CommandContext(runCtx, s.cfg.Binary, args...) // #nosec G204 -- binary and args come from operator configuration.
	cmd.Dir = s.cfg.WorkDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logFile, err := s.openLogFile(job.LogPath)
	if err != nil {
		return result, err
	}
	if logFile != nil {
		cmd.Stderr = logFile
		defer logFile.Close() //nolint:errcheck // best-effort close of the batch log
	}

	s.logger.Debug("launching engine",
		zap.String("binary", s.cfg.Binary),
		zap.Strings("args", args),
		zap.Int("batch", job.BatchIndex),
	)

	started := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(started)
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("engine timed out after %s for batch %d", s.cfg.Timeout, job.BatchIndex)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return result, fmt.Errorf("engine exited with code %d for batch %d: %s", result.ExitCode, job.BatchIndex, detail)
		}
		return result, fmt.Errorf("engine run for batch %d: %w", job.BatchIndex, runErr)
	}

	info, statErr := os.Stat(job.OutputPath)
	if statErr != nil {
		return result, fmt.Errorf("engine exited cleanly but produced no output file %s", job.OutputPath)
	}
	if info.Size() == 0 {
		s.logger.Warn("engine produced an empty output file",
			zap.Int("batch", job.BatchIndex),
			zap.String("output", job.OutputPath),
		)
	}
	return result, nil
}

func (s *Subprocess) openLogFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- log path is caller-supplied configuration.
	if err != nil {
		return nil, fmt.Errorf("open engine log %s: %w", path, err)
	}
	return f, nil
}

// buildArgs assembles the engine command line for one batch window.
func buildArgs(base []string, job batch.JobSpec) []string {
	args := append([]string{}, base...)
	args = append(args,
		"--job-type", job.JobType,
		"--symbols", job.Symbols,
		"--offset", strconv.Itoa(job.Window.Start),
		"--limit", strconv.Itoa(job.Window.Size),
		"--output", job.OutputPath,
	)
	if job.StartDate != "" {
		args = append(args, "--start-date", job.StartDate)
	}
	if job.EndDate != "" {
		args = append(args, "--end-date", job.EndDate)
	}
	return args
}
