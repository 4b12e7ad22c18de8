package batch

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SortLines rewrites the file at path with its lines in whole-line
// lexical order, the line terminator included in the comparison. No line
// is treated specially.
func SortLines(path string, logger *zap.Logger) error {
	lines, mode, err := readLines(path)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		logger.Info("nothing to sort; file is empty", zap.String("path", path))
		return nil
	}
	sort.Strings(lines)
	return writeLines(path, lines, mode)
}

// SortCSV rewrites the file at path with the header line pinned first and
// the data rows ordered by field-by-field comparison. Rows are compared
// up to the length of the shorter row; when all compared fields are
// equal the row with fewer fields sorts first. The sort is stable.
func SortCSV(path string, logger *zap.Logger) error {
	lines, mode, err := readLines(path)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		logger.Info("nothing to sort; file is empty", zap.String("path", path))
		return nil
	}

	header, rows := lines[0], lines[1:]
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(rowFields(rows[i]), rowFields(rows[j])) < 0
	})
	return writeLines(path, append([]string{header}, rows...), mode)
}

// compareRows is a total ordering over field sequences: the first
// differing field decides, and a row that is a strict prefix of the
// other sorts first.
func compareRows(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func rowFields(line string) []string {
	return strings.Split(strings.TrimRight(line, "\r\n"), ",")
}

// readLines loads the file as a slice of terminator-carrying lines. A
// final line without a terminator is given one so reordering cannot fuse
// it with its new neighbor.
func readLines(path string) ([]string, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is caller-supplied configuration.
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, info.Mode(), nil
	}

	var lines []string
	rest := string(data)
	for rest != "" {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			lines = append(lines, rest+"\n")
			break
		}
		lines = append(lines, rest[:idx+1])
		rest = rest[idx+1:]
	}
	return lines, info.Mode(), nil
}

func writeLines(path string, lines []string, mode os.FileMode) error {
	if err := os.WriteFile(path, []byte(strings.Join(lines, "")), mode.Perm()); err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	return nil
}
