// Package journal persists run and batch progress in a local SQLite
// database so failed batch indices survive the process.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quotefeed/harvester/internal/batch"
)

// ErrNotFound is returned when a run is not in the journal.
var ErrNotFound = errors.New("run not found")

// Run is one journaled orchestration run.
type Run struct {
	ID           string
	CreatedAt    time.Time
	FinishedAt   time.Time
	Status       batch.RunStatus
	JobType      string
	Symbols      string
	OutputPath   string
	BatchSize    int
	TotalSymbols int
	WindowCount  int
	Error        string
}

// BatchRecord is the journaled state of one batch window.
type BatchRecord struct {
	RunID     string
	Index     int
	Start     int
	Size      int
	Status    batch.BatchStatus
	ExitCode  int
	Error     string
	UpdatedAt time.Time
}

// SQLite implements batch.Journal over a local database file.
type SQLite struct {
	db    *sql.DB
	clock batch.Clock
}

// Open creates or opens the journal database at path.
func Open(path string, clock batch.Clock) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL,
  finished_at INTEGER,
  status TEXT NOT NULL,
  job_type TEXT NOT NULL,
  symbols TEXT NOT NULL,
  output_path TEXT NOT NULL,
  batch_size INTEGER NOT NULL,
  total_symbols INTEGER NOT NULL,
  window_count INTEGER NOT NULL,
  error_message TEXT
);
CREATE TABLE IF NOT EXISTS batches (
  run_id TEXT NOT NULL,
  batch_index INTEGER NOT NULL,
  start INTEGER NOT NULL,
  size INTEGER NOT NULL,
  status TEXT NOT NULL,
  exit_code INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (run_id, batch_index)
);
`); err != nil {
		db.Close() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &SQLite{db: db, clock: clock}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// CreateRun inserts the initial record for a run.
func (s *SQLite) CreateRun(ctx context.Context, runID string, job batch.Job, totalSymbols, windowCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, status, job_type, symbols, output_path, batch_size, total_symbols, window_count)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		s.clock.Now().UnixMilli(),
		string(batch.RunStatusRunning),
		job.JobType,
		job.Symbols,
		job.OutputPath,
		job.BatchSize,
		totalSymbols,
		windowCount,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

// RecordBatch upserts the state of one batch window.
func (s *SQLite) RecordBatch(ctx context.Context, runID string, index int, window batch.Window, status batch.BatchStatus, exitCode int, errText string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (run_id, batch_index, start, size, status, exit_code, error_message, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (run_id, batch_index) DO UPDATE SET
           status = excluded.status,
           exit_code = excluded.exit_code,
           error_message = excluded.error_message,
           updated_at = excluded.updated_at`,
		runID,
		index,
		window.Start,
		window.Size,
		string(status),
		exitCode,
		errText,
		s.clock.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record batch %d of run %s: %w", index, runID, err)
	}
	return nil
}

// FinishRun stamps the final status of a run.
func (s *SQLite) FinishRun(ctx context.Context, runID string, status batch.RunStatus, errText string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error_message = ? WHERE id = ?`,
		s.clock.Now().UnixMilli(),
		string(status),
		errText,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads one run by ID.
func (s *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, finished_at, status, job_type, symbols, output_path, batch_size, total_symbols, window_count, error_message
       FROM runs WHERE id = ?`, runID,
	)
	var (
		run        Run
		createdMs  int64
		finishedMs sql.NullInt64
		statusStr  string
		errText    sql.NullString
	)
	err := row.Scan(&run.ID, &createdMs, &finishedMs, &statusStr, &run.JobType, &run.Symbols,
		&run.OutputPath, &run.BatchSize, &run.TotalSymbols, &run.WindowCount, &errText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.CreatedAt = time.UnixMilli(createdMs)
	if finishedMs.Valid {
		run.FinishedAt = time.UnixMilli(finishedMs.Int64)
	}
	run.Status = batch.RunStatus(statusStr)
	if errText.Valid {
		run.Error = errText.String
	}
	return run, nil
}

// ListBatches returns the batch records of a run in window order.
func (s *SQLite) ListBatches(ctx context.Context, runID string) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, batch_index, start, size, status, exit_code, error_message, updated_at
       FROM batches WHERE run_id = ? ORDER BY batch_index ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches of run %s: %w", runID, err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []BatchRecord
	for rows.Next() {
		var (
			rec       BatchRecord
			statusStr string
			updatedMs int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Start, &rec.Size, &statusStr, &rec.ExitCode, &rec.Error, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan batch of run %s: %w", runID, err)
		}
		rec.Status = batch.BatchStatus(statusStr)
		rec.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches of run %s: %w", runID, err)
	}
	return out, nil
}
