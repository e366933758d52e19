package filesystem

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"go.uber.org/zap"
)

func TestAtomicFileSink_Commit(t *testing.T) {
	m := newTestManager()
	dir := t.TempDir()
	dest := filepath.Join(dir, "data.bin")

	sink, err := m.OpenSink(dest)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("0123456789"), 100)
	for i := 0; i < len(payload); i += 64 {
		end := min(i+64, len(payload))
		n, err := sink.Write(payload[i:end])
		require.NoError(t, err)
		assert.Equal(t, end-i, n)
	}
	assert.Equal(t, int64(len(payload)), sink.Written())

	require.NoError(t, sink.Commit())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.False(t, m.FileExists(sink.StagingPath()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the destination remains")
}

func TestAtomicFileSink_CommitReplacesExisting(t *testing.T) {
	m := newTestManager()
	dest := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old contents"), 0o640))

	sink, err := m.OpenSink(dest)
	require.NoError(t, err)
	_, err = sink.Write([]byte("new"))
	require.NoError(t, err)

	// Destination keeps its old bytes until commit
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(got))

	require.NoError(t, sink.Commit())

	got, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	}
}

func TestAtomicFileSink_EmptyCommit(t *testing.T) {
	m := newTestManager()
	dest := filepath.Join(t.TempDir(), "empty")

	sink, err := m.OpenSink(dest)
	require.NoError(t, err)
	require.NoError(t, sink.Commit())

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestAtomicFileSink_Discard(t *testing.T) {
	m := newTestManager()
	dir := t.TempDir()
	dest := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(dest, []byte("keep me"), 0o644))

	sink, err := m.OpenSink(dest)
	require.NoError(t, err)
	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)

	sink.Discard()
	sink.Discard()

	assert.False(t, m.FileExists(sink.StagingPath()))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))

	_, err = sink.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.ErrorIs(t, sink.Commit(), ErrSinkClosed)
}

func TestAtomicFileSink_DiscardAfterCommit(t *testing.T) {
	m := newTestManager()
	dest := filepath.Join(t.TempDir(), "data.bin")

	sink, err := m.OpenSink(dest)
	require.NoError(t, err)
	_, err = sink.Write([]byte("done"))
	require.NoError(t, err)
	require.NoError(t, sink.Commit())

	sink.Discard()

	assert.True(t, m.FileExists(dest))
	assert.ErrorIs(t, sink.Commit(), ErrSinkClosed)
}

func TestAtomicFileSink_CommitFailure(t *testing.T) {
	m := newTestManager()
	dir := t.TempDir()
	dest := filepath.Join(dir, "data.bin")

	sink, err := m.OpenSink(dest)
	require.NoError(t, err)
	_, err = sink.Write([]byte("bytes"))
	require.NoError(t, err)

	// A directory appearing at the destination makes the rename fail
	require.NoError(t, os.Mkdir(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "child"), []byte("x"), 0o644))

	err = sink.Commit()
	require.Error(t, err)
	assert.True(t, domain.IsCommitError(err))

	// Staging survives the failed commit until discarded
	assert.True(t, m.FileExists(sink.StagingPath()))
	sink.Discard()
	assert.False(t, m.FileExists(sink.StagingPath()))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAtomicFileSink_DiscardOrphan(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced")
	}

	dispatcher := event.NewInMemoryDispatcher(false)
	metrics := event.NewMetricsHandler()
	dispatcher.Subscribe(metrics)

	m := NewManagerWithConfig(Config{}, zap.NewNop(), dispatcher)
	dir := t.TempDir()

	sink, err := m.OpenSink(filepath.Join(dir, "data.bin"))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0o500))
	defer os.Chmod(dir, 0o755)

	sink.Discard()

	assert.Equal(t, int64(1), metrics.GetMetrics()["orphaned_staging"])
}
