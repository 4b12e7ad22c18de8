package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quotefeed/harvester/internal/hash/sha256"
)

type fakeLauncher struct {
	launches []JobSpec
	fail     map[int]bool
	content  func(job JobSpec) string
}

func (f *fakeLauncher) Launch(_ context.Context, job JobSpec) (BatchResult, error) {
	f.launches = append(f.launches, job)
	if f.fail[job.BatchIndex] {
		return BatchResult{BatchIndex: job.BatchIndex, ExitCode: 1}, fmt.Errorf("engine exploded on batch %d", job.BatchIndex)
	}
	if err := os.WriteFile(job.OutputPath, []byte(f.content(job)), 0o600); err != nil {
		return BatchResult{BatchIndex: job.BatchIndex, ExitCode: -1}, err
	}
	return BatchResult{BatchIndex: job.BatchIndex, OutputPath: job.OutputPath, ExitCode: 0, Duration: time.Second}, nil
}

type journalCall struct {
	kind   string
	index  int
	status string
}

type fakeJournal struct {
	calls []journalCall
}

func (f *fakeJournal) CreateRun(_ context.Context, _ string, _ Job, _, _ int) error {
	f.calls = append(f.calls, journalCall{kind: "create"})
	return nil
}

func (f *fakeJournal) RecordBatch(_ context.Context, _ string, index int, _ Window, status BatchStatus, _ int, _ string) error {
	f.calls = append(f.calls, journalCall{kind: "batch", index: index, status: string(status)})
	return nil
}

func (f *fakeJournal) FinishRun(_ context.Context, _ string, status RunStatus, _ string) error {
	f.calls = append(f.calls, journalCall{kind: "finish", status: string(status)})
	return nil
}

func (f *fakeJournal) finalStatus() string {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].kind == "finish" {
			return f.calls[i].status
		}
	}
	return ""
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedID struct{ id string }

func (g fixedID) NewID() (string, error) { return g.id, nil }

func symbolsFile(t *testing.T, symbols ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(symbols, "\n")+"\n"), 0o600))
	return path
}

func csvContent(job JobSpec) string {
	var b strings.Builder
	b.WriteString("sym,price\n")
	for i := 0; i < job.Window.Size; i++ {
		fmt.Fprintf(&b, "S%03d,%d\n", job.Window.Start+i, job.Window.Start+i)
	}
	return b.String()
}

func newTestRunner(launcher Launcher, jrnl Journal) *Runner {
	return NewRunner(launcher, jrnl, fixedID{id: "run-1"}, fixedClock{now: time.Unix(1700000000, 0)}, zap.NewNop())
}

func TestRunnerMultiBatch(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: csvContent}
	jrnl := &fakeJournal{}
	runner := newTestRunner(launcher, jrnl)
	output := filepath.Join(t.TempDir(), "out.csv")

	report, err := runner.Run(context.Background(), Job{
		JobType:    "quotes",
		Symbols:    symbolsFile(t, "A", "B", "C", "D", "E"),
		OutputPath: output,
		BatchSize:  2,
		Header:     HeaderSkipAfterFirst,
		Sort:       SortModeCSV,
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 5, report.TotalSymbols)
	assert.Equal(t, 3, report.WindowCount)
	assert.True(t, report.Complete())

	require.Len(t, launcher.launches, 3)
	assert.Equal(t, Window{Start: 0, Size: 2}, launcher.launches[0].Window)
	assert.Equal(t, Window{Start: 2, Size: 2}, launcher.launches[1].Window)
	assert.Equal(t, Window{Start: 4, Size: 1}, launcher.launches[2].Window)
	assert.Equal(t, output+".batch0", launcher.launches[0].OutputPath)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	got := string(data)
	assert.True(t, strings.HasPrefix(got, "sym,price\n"), "header must stay pinned: %q", got)
	assert.Equal(t, 1, strings.Count(got, "sym,price"), "exactly one header line")
	assert.Equal(t, 6, strings.Count(got, "\n"), "header plus five data rows")

	wantDigest, err := sha256.New().Hash(data)
	require.NoError(t, err)
	assert.Equal(t, wantDigest, report.OutputDigest)

	// Batch files are consumed by the merge.
	for i := 0; i < 3; i++ {
		_, statErr := os.Stat(fmt.Sprintf("%s.batch%d", output, i))
		assert.True(t, os.IsNotExist(statErr))
	}

	assert.Equal(t, "succeeded", jrnl.finalStatus())
}

func TestRunnerSingleWindowSkipsMerge(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: csvContent}
	runner := newTestRunner(launcher, nil)
	output := filepath.Join(t.TempDir(), "out.csv")

	report, err := runner.Run(context.Background(), Job{
		JobType:    "quotes",
		Symbols:    "AAPL,MSFT,GOOG",
		OutputPath: output,
		BatchSize:  500,
		Header:     HeaderSkipAfterFirst,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.WindowCount)
	require.Len(t, launcher.launches, 1)
	assert.Equal(t, output, launcher.launches[0].OutputPath, "single window writes the final path directly")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, csvContent(launcher.launches[0]), string(data), "merge must not touch a single-batch output")
}

func TestRunnerFailedBatchStillMerges(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: csvContent, fail: map[int]bool{1: true}}
	jrnl := &fakeJournal{}
	runner := newTestRunner(launcher, jrnl)
	output := filepath.Join(t.TempDir(), "out.csv")

	report, err := runner.Run(context.Background(), Job{
		JobType:    "quotes",
		Symbols:    symbolsFile(t, "A", "B", "C", "D", "E", "F"),
		OutputPath: output,
		BatchSize:  2,
		Header:     HeaderSkipAfterFirst,
	})
	require.ErrorIs(t, err, ErrIncompleteRun)
	assert.Equal(t, []int{1}, report.FailedBatches)

	data, readErr := os.ReadFile(output)
	require.NoError(t, readErr, "surviving batches must still be merged")
	got := string(data)
	assert.Contains(t, got, "S000")
	assert.Contains(t, got, "S004")
	assert.NotContains(t, got, "S002", "failed batch contributed nothing")

	assert.Equal(t, "incomplete", jrnl.finalStatus())
}

func TestRunnerZeroSymbols(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: csvContent}
	jrnl := &fakeJournal{}
	runner := newTestRunner(launcher, jrnl)
	output := filepath.Join(t.TempDir(), "out.csv")

	report, err := runner.Run(context.Background(), Job{
		JobType:    "quotes",
		Symbols:    symbolsFile(t, "# nothing here"),
		OutputPath: output,
		BatchSize:  100,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalSymbols)
	assert.Equal(t, 0, report.WindowCount)
	assert.Empty(t, launcher.launches)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "no output for an empty plan")
	assert.Equal(t, "succeeded", jrnl.finalStatus())
}

func TestRunnerAllBatchesFailed(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: csvContent, fail: map[int]bool{0: true}}
	runner := newTestRunner(launcher, nil)
	output := filepath.Join(t.TempDir(), "out.csv")

	report, err := runner.Run(context.Background(), Job{
		JobType:    "quotes",
		Symbols:    "AAPL",
		OutputPath: output,
		BatchSize:  10,
		Sort:       SortModeCSV,
	})
	require.ErrorIs(t, err, ErrIncompleteRun)
	assert.Equal(t, []int{0}, report.FailedBatches)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunnerCanceledContext(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: csvContent}
	jrnl := &fakeJournal{}
	runner := newTestRunner(launcher, jrnl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, Job{
		JobType:    "quotes",
		Symbols:    "AAPL,MSFT",
		OutputPath: filepath.Join(t.TempDir(), "out.csv"),
		BatchSize:  1,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncompleteRun)
	assert.Empty(t, launcher.launches)
	assert.Equal(t, "failed", jrnl.finalStatus())
}

func TestRunnerInvalidBatchSize(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(&fakeLauncher{content: csvContent}, nil)
	_, err := runner.Run(context.Background(), Job{
		Symbols:    "AAPL",
		OutputPath: filepath.Join(t.TempDir(), "out.csv"),
		BatchSize:  0,
	})
	require.Error(t, err)
}

func TestRunnerSortsLines(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{content: func(job JobSpec) string {
		// A bare list output: one symbol per line, no header.
		var b strings.Builder
		for i := job.Window.Size - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "S%03d\n", job.Window.Start+i)
		}
		return b.String()
	}}
	runner := newTestRunner(launcher, nil)
	output := filepath.Join(t.TempDir(), "symbols.out")

	_, err := runner.Run(context.Background(), Job{
		JobType:    "symbol-list",
		Symbols:    symbolsFile(t, "A", "B", "C", "D"),
		OutputPath: output,
		BatchSize:  2,
		Header:     HeaderNone,
		Sort:       SortModeLines,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "S000\nS001\nS002\nS003\n", string(data))
}
