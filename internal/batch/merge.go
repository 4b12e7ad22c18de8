package batch

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// HeaderMode controls how the merger treats the first line of each source.
type HeaderMode int

const (
	// HeaderNone copies every source verbatim.
	HeaderNone HeaderMode = iota
	// HeaderSkipAfterFirst keeps exactly one copy of the header line:
	// a source's first line is dropped when an earlier source already
	// contributed the same first line.
	HeaderSkipAfterFirst
)

// MergeFiles concatenates sources into target in order, then deletes the
// consumed sources. Empty and missing sources contribute nothing and do
// not abort the merge. The deletion is unconditional once merging has
// finished copying; a failure mid-merge leaves target partially written
// and the remaining sources on disk.
//
// It returns the number of lines written to target.
func MergeFiles(target string, sources []string, mode HeaderMode, logger *zap.Logger) (int, error) {
	out, err := os.Create(target) // #nosec G304 -- target is caller-supplied configuration.
	if err != nil {
		return 0, fmt.Errorf("create merge target %s: %w", target, err)
	}

	lines := 0
	seenHeaders := make(map[string]struct{})
	for _, src := range sources {
		data, err := os.ReadFile(src) // #nosec G304 -- batch outputs under the caller's output path.
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("batch output missing; merging without it", zap.String("source", src))
				continue
			}
			out.Close() //nolint:errcheck,gosec // already failing
			return lines, fmt.Errorf("read batch output %s: %w", src, err)
		}
		if len(data) == 0 {
			logger.Debug("batch output empty; skipping", zap.String("source", src))
			continue
		}

		if mode == HeaderSkipAfterFirst {
			header, rest := splitFirstLine(data)
			if _, seen := seenHeaders[header]; seen {
				data = rest
			} else {
				seenHeaders[header] = struct{}{}
			}
		}

		if _, err := out.Write(data); err != nil {
			out.Close() //nolint:errcheck,gosec // already failing
			return lines, fmt.Errorf("write merge target %s: %w", target, err)
		}
		lines += bytes.Count(data, []byte{'\n'})
	}

	if err := out.Close(); err != nil {
		return lines, fmt.Errorf("close merge target %s: %w", target, err)
	}

	for _, src := range sources {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return lines, fmt.Errorf("remove batch output %s: %w", src, err)
		}
	}
	return lines, nil
}

// splitFirstLine returns the first line without its terminator and the
// remaining bytes after it.
func splitFirstLine(data []byte) (string, []byte) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return string(bytes.TrimRight(data, "\r")), nil
	}
	return string(bytes.TrimRight(data[:idx], "\r")), data[idx+1:]
}
