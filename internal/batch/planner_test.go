package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWindows(t *testing.T) {
	t.Parallel()

	t.Run("ExactThreeWindows", func(t *testing.T) {
		t.Parallel()
		windows, err := PlanWindows(1200, 500)
		require.NoError(t, err)
		assert.Equal(t, []Window{
			{Start: 0, Size: 500},
			{Start: 500, Size: 500},
			{Start: 1000, Size: 200},
		}, windows)
	})

	t.Run("ZeroTotalYieldsNoWindows", func(t *testing.T) {
		t.Parallel()
		windows, err := PlanWindows(0, 100)
		require.NoError(t, err)
		assert.Empty(t, windows)
	})

	t.Run("SingleWindowWhenTotalFits", func(t *testing.T) {
		t.Parallel()
		windows, err := PlanWindows(10, 500)
		require.NoError(t, err)
		assert.Equal(t, []Window{{Start: 0, Size: 10}}, windows)
	})

	t.Run("ExactMultiple", func(t *testing.T) {
		t.Parallel()
		windows, err := PlanWindows(1000, 500)
		require.NoError(t, err)
		assert.Len(t, windows, 2)
		assert.Equal(t, Window{Start: 500, Size: 500}, windows[1])
	})

	t.Run("InvalidBatchSize", func(t *testing.T) {
		t.Parallel()
		_, err := PlanWindows(10, 0)
		assert.Error(t, err)
		_, err = PlanWindows(10, -5)
		assert.Error(t, err)
	})

	t.Run("NegativeTotal", func(t *testing.T) {
		t.Parallel()
		_, err := PlanWindows(-1, 10)
		assert.Error(t, err)
	})
}

// Windows must be contiguous, non-overlapping and cover [0, total)
// exactly for any combination of total and batch size.
func TestPlanWindowsCoversRange(t *testing.T) {
	t.Parallel()

	totals := []int{0, 1, 2, 7, 99, 100, 101, 499, 500, 501, 1200, 4999}
	sizes := []int{1, 2, 3, 100, 500, 10000}

	for _, total := range totals {
		for _, size := range sizes {
			windows, err := PlanWindows(total, size)
			require.NoError(t, err)

			next := 0
			sum := 0
			for _, w := range windows {
				require.Equal(t, next, w.Start, "total=%d size=%d", total, size)
				require.Positive(t, w.Size, "total=%d size=%d", total, size)
				require.LessOrEqual(t, w.Size, size)
				next = w.End()
				sum += w.Size
			}
			require.Equal(t, total, sum, "total=%d size=%d", total, size)
		}
	}
}
