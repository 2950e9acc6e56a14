package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_SingleFile(t *testing.T) {
	store := newMemStore()
	content := patterned(35)
	store.put("/data/big.bin", content)

	m := newTestManager(t, store)

	target := filepath.Join(t.TempDir(), "out", "big.bin")

	cfg := testConfig(Download, "/data/big.bin", target)
	cfg.MaxSegmentLength = 10
	cfg.MetadataDir = t.TempDir()

	ch := make(chan Progress)
	done := collect(ch)

	err := m.Execute(context.Background(), cfg, ch)
	close(ch)
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = os.Stat(target + partialSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist)

	snaps := <-done
	last, ok := snaps[len(snaps)-1].(FileProgress)
	require.True(t, ok)
	assert.Equal(t, int64(35), last.TransferredBytes)
	assert.Equal(t, 4, last.TotalSegments)
}

func TestDownload_EmptyFile(t *testing.T) {
	store := newMemStore()
	store.put("/empty", nil)

	m := newTestManager(t, store)
	target := filepath.Join(t.TempDir(), "empty")

	require.NoError(t, m.Execute(context.Background(), testConfig(Download, "/empty", target), nil))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestDownload_MissingSource(t *testing.T) {
	m := newTestManager(t, newMemStore())

	err := m.Execute(context.Background(), testConfig(Download, "/nope", filepath.Join(t.TempDir(), "x")), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nope")
}

func TestDownload_TargetExists(t *testing.T) {
	store := newMemStore()
	store.put("/f", []byte("remote"))
	m := newTestManager(t, store)

	target := writeFile(t, t.TempDir(), "f", []byte("local"))

	err := m.Execute(context.Background(), testConfig(Download, "/f", target), nil)
	require.ErrorIs(t, err, ErrTargetExists)

	cfg := testConfig(Download, "/f", target)
	cfg.Overwrite = true
	require.NoError(t, m.Execute(context.Background(), cfg, nil))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)
}

func TestDownload_Folder(t *testing.T) {
	store := newMemStore()
	store.put("/src/a.txt", []byte("aaa"))
	store.put("/src/sub/b.txt", []byte("bbbb"))

	t.Run("recursive", func(t *testing.T) {
		m := newTestManager(t, store)
		target := t.TempDir()

		cfg := testConfig(Download, "/src", target)
		cfg.Recursive = true

		require.NoError(t, m.Execute(context.Background(), cfg, nil))

		got, err := os.ReadFile(filepath.Join(target, "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, []byte("aaa"), got)

		got, err = os.ReadFile(filepath.Join(target, "sub", "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, []byte("bbbb"), got)
	})

	t.Run("top level only", func(t *testing.T) {
		m := newTestManager(t, store)
		target := t.TempDir()

		require.NoError(t, m.Execute(context.Background(), testConfig(Download, "/src", target), nil))

		assert.FileExists(t, filepath.Join(target, "a.txt"))
		assert.NoDirExists(t, filepath.Join(target, "sub"))
	})
}

func TestDownload_ResumeSkipsCompletedSegments(t *testing.T) {
	store := newMemStore()
	content := patterned(40)
	store.put("/big.bin", content)

	m := newTestManager(t, store)
	target := filepath.Join(t.TempDir(), "big.bin")

	cfg := testConfig(Download, "/big.bin", target)
	cfg.MaxSegmentLength = 10
	cfg.PerFileThreadCount = 1
	cfg.MetadataDir = t.TempDir()

	store.failOpen[20] = true

	err := m.Execute(context.Background(), cfg, nil)
	require.ErrorIs(t, err, errInjected)
	assert.FileExists(t, target+partialSuffix)
	assert.NoFileExists(t, target)

	delete(store.failOpen, 20)
	cfg.Resume = true

	require.NoError(t, m.Execute(context.Background(), cfg, nil))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Equal(t, 1, store.opens[0])
	assert.Equal(t, 1, store.opens[10])
	assert.Equal(t, 2, store.opens[20])
}

func TestDownload_ResumeWithMissingPartialStartsOver(t *testing.T) {
	store := newMemStore()
	content := patterned(40)
	store.put("/big.bin", content)

	m := newTestManager(t, store)
	target := filepath.Join(t.TempDir(), "big.bin")

	cfg := testConfig(Download, "/big.bin", target)
	cfg.MaxSegmentLength = 10
	cfg.PerFileThreadCount = 1
	cfg.MetadataDir = t.TempDir()

	store.failOpen[20] = true
	require.Error(t, m.Execute(context.Background(), cfg, nil))
	delete(store.failOpen, 20)

	require.NoError(t, os.Remove(target+partialSuffix))

	cfg.Resume = true
	require.NoError(t, m.Execute(context.Background(), cfg, nil))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, 2, store.opens[0])
}

func TestLocalTarget(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "sub", "b.txt"), localTarget("out", "/src", "/src/sub/b.txt"))
	assert.Equal(t, filepath.Join("out", "a.txt"), localTarget("out", "/src", "/src/a.txt"))
}
