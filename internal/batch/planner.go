package batch

import "fmt"

// PlanWindows splits total items into contiguous windows of at most
// batchSize each. Windows are returned in ascending order; their union
// covers [0, total) exactly, with the final window sized to the
// remainder. total == 0 yields no windows.
func PlanWindows(total, batchSize int) ([]Window, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	if total < 0 {
		return nil, fmt.Errorf("total must be >= 0, got %d", total)
	}

	count := (total + batchSize - 1) / batchSize
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := i * batchSize
		size := batchSize
		if remaining := total - start; remaining < size {
			size = remaining
		}
		windows = append(windows, Window{Start: start, Size: size})
	}
	return windows, nil
}
