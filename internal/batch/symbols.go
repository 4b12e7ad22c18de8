package batch

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// CountSymbols determines how many work items a job covers. If source
// names an existing file it is streamed line by line; blank lines and
// lines whose first non-whitespace character is '#' do not count.
// Anything else is treated as a literal comma-separated list, empty
// segments included. A path that fails to resolve falls through to the
// literal branch; the logger gets a warning because that is almost
// always a typo in the file path.
func CountSymbols(source string, logger *zap.Logger) (int, error) {
	info, err := os.Stat(source)
	if err == nil && !info.IsDir() {
		return countSymbolFile(source)
	}
	if looksLikePath(source) {
		logger.Warn("symbols source does not name an existing file; treating it as a literal list",
			zap.String("source", source),
		)
	}
	return len(strings.Split(source, ",")), nil
}

func countSymbolFile(path string) (int, error) {
	f, err := os.Open(path) // #nosec G304 -- path is caller-supplied configuration.
	if err != nil {
		return 0, fmt.Errorf("open symbols file %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if countsAsSymbol(scanner.Text()) {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read symbols file %s: %w", path, err)
	}
	return count, nil
}

// countsAsSymbol reports whether a line is a data row: non-blank after
// trailing line-ending trim, and not a '#' comment.
func countsAsSymbol(line string) bool {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return false
	}
	return !strings.HasPrefix(strings.TrimSpace(trimmed), "#")
}

func looksLikePath(source string) bool {
	return strings.ContainsAny(source, "/\\") || strings.Contains(source, ".txt")
}
