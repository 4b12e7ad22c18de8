package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSources(t *testing.T, dir string, contents []string) []string {
	t.Helper()
	paths := make([]string, len(contents))
	for i, c := range contents {
		paths[i] = filepath.Join(dir, "batch"+string(rune('0'+i)))
		require.NoError(t, os.WriteFile(paths[i], []byte(c), 0o600))
	}
	return paths
}

func TestMergeFilesSkipAfterFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sources := writeSources(t, dir, []string{"a\nb\n", "H\nc\nd\n", "H\ne\n"})
	target := filepath.Join(dir, "merged")

	lines, err := MergeFiles(target, sources, HeaderSkipAfterFirst, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 6, lines)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nH\nc\nd\ne\n", string(got))

	for _, src := range sources {
		_, err := os.Stat(src)
		assert.True(t, os.IsNotExist(err), "expected %s to be deleted", src)
	}
}

func TestMergeFilesSharedHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sources := writeSources(t, dir, []string{"sym,price\nAAPL,1\n", "sym,price\nMSFT,2\n", "sym,price\nGOOG,3\n"})
	target := filepath.Join(dir, "merged.csv")

	_, err := MergeFiles(target, sources, HeaderSkipAfterFirst, zap.NewNop())
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "sym,price\nAAPL,1\nMSFT,2\nGOOG,3\n", string(got))
}

func TestMergeFilesHeaderNone(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sources := writeSources(t, dir, []string{"x\n", "x\ny\n"})
	target := filepath.Join(dir, "merged")

	_, err := MergeFiles(target, sources, HeaderNone, zap.NewNop())
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "x\nx\ny\n", string(got))
}

func TestMergeFilesEmptySource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sources := writeSources(t, dir, []string{"H\na\n", "", "H\nb\n"})
	target := filepath.Join(dir, "merged")

	_, err := MergeFiles(target, sources, HeaderSkipAfterFirst, zap.NewNop())
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "H\na\nb\n", string(got))

	for _, src := range sources {
		_, statErr := os.Stat(src)
		assert.True(t, os.IsNotExist(statErr))
	}
}

// A batch whose launch failed leaves no file; the merge proceeds
// without it.
func TestMergeFilesMissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sources := writeSources(t, dir, []string{"H\na\n", "H\nc\n"})
	withHole := []string{sources[0], filepath.Join(dir, "never-written"), sources[1]}
	target := filepath.Join(dir, "merged")

	_, err := MergeFiles(target, withHole, HeaderSkipAfterFirst, zap.NewNop())
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "H\na\nc\n", string(got))
}

func TestMergeFilesTruncatesExistingTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sources := writeSources(t, dir, []string{"fresh\n"})
	target := filepath.Join(dir, "merged")
	require.NoError(t, os.WriteFile(target, []byte("stale content\n"), 0o600))

	_, err := MergeFiles(target, sources, HeaderNone, zap.NewNop())
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(got))
}
