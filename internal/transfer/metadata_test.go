package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *metadataRecord {
	segs := planSegments(30, 10)

	return &metadataRecord{
		Direction:   Upload.String(),
		Source:      "/local/a",
		Target:      "/remote/a",
		Fingerprint: Fingerprint{Size: 30, ModTime: time.Unix(1700000000, 0).UTC()},
		Segments:    segs,
		Completed:   make([]bool, len(segs)),
	}
}

func TestMetadataStore_SaveLoadDelete(t *testing.T) {
	store := newMetadataStore(t.TempDir(), testLogger(t))

	rec := testRecord()
	rec.Completed[1] = true
	require.NoError(t, store.save(rec))

	got, err := store.load(Upload, "/local/a", "/remote/a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Segments, got.Segments)
	assert.Equal(t, []bool{false, true, false}, got.Completed)
	assert.True(t, rec.Fingerprint.Matches(got.Fingerprint))
	assert.False(t, got.CreatedAt.IsZero())

	other, err := store.load(Download, "/local/a", "/remote/a")
	require.NoError(t, err)
	assert.Nil(t, other, "direction is part of the key")

	store.delete(Upload, "/local/a", "/remote/a")

	got, err = store.load(Upload, "/local/a", "/remote/a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetadataStore_Disabled(t *testing.T) {
	store := newMetadataStore("", testLogger(t))

	require.NoError(t, store.save(testRecord()))

	got, err := store.load(Upload, "/local/a", "/remote/a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetadataStore_CorruptIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	store := newMetadataStore(dir, testLogger(t))

	p := filepath.Join(dir, metadataKey(Upload, "/local/a", "/remote/a"))
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))

	got, err := store.load(Upload, "/local/a", "/remote/a")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoFileExists(t, p)
}

func TestMetadataKey(t *testing.T) {
	a := metadataKey(Upload, "/x", "/y")
	assert.Equal(t, a, metadataKey(Upload, "/x", "/y"))
	assert.NotEqual(t, a, metadataKey(Download, "/x", "/y"))
	assert.NotEqual(t, metadataKey(Upload, "a:b", "c"), metadataKey(Upload, "a", "b:c"))
}

func TestOpenResume(t *testing.T) {
	m := newTestManager(t, newMemStore())
	store := newMetadataStore(t.TempDir(), testLogger(t))

	rec := testRecord()
	rec.Completed[0] = true
	rec.StagingDir = "/remote/a.segments.old"
	require.NoError(t, store.save(rec))

	t.Run("matching record is reused", func(t *testing.T) {
		state, stale := m.openResume(store, true, Upload, rec.Source, rec.Target, rec.Fingerprint, rec.Segments)
		assert.Nil(t, stale)
		assert.True(t, state.done(0))
		assert.Equal(t, int64(10), state.completedBytes())
		assert.Equal(t, "/remote/a.segments.old", state.stagingDir())
	})

	t.Run("changed fingerprint is stale", func(t *testing.T) {
		fp := Fingerprint{Size: 30, ModTime: rec.Fingerprint.ModTime.Add(time.Second)}

		state, stale := m.openResume(store, true, Upload, rec.Source, rec.Target, fp, rec.Segments)
		require.NotNil(t, stale)
		assert.Equal(t, "/remote/a.segments.old", stale.StagingDir)
		assert.Zero(t, state.completedBytes())
		assert.Empty(t, state.stagingDir())

		got, err := store.load(Upload, rec.Source, rec.Target)
		require.NoError(t, err)
		assert.Nil(t, got, "stale record is deleted")
	})
}

func TestResumeState_CompleteAndFinish(t *testing.T) {
	m := newTestManager(t, newMemStore())
	store := newMetadataStore(t.TempDir(), testLogger(t))

	rec := testRecord()
	state, _ := m.openResume(store, false, Upload, rec.Source, rec.Target, rec.Fingerprint, rec.Segments)

	require.NoError(t, state.complete(2))

	got, err := store.load(Upload, rec.Source, rec.Target)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []bool{false, false, true}, got.Completed)

	state.finish()

	got, err = store.load(Upload, rec.Source, rec.Target)
	require.NoError(t, err)
	assert.Nil(t, got)
}
