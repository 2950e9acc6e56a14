package transfer

import (
	"context"
	"sync"
)

// tracker aggregates byte and file counts from concurrent workers and
// publishes a snapshot on every change. Snapshots are sent while holding
// the lock so the consumer sees them in order.
type tracker struct {
	mu  sync.Mutex
	ctx context.Context
	ch  chan<- Progress

	folder     bool
	files      int
	totalFiles int
	bytes      int64
	totalBytes int64
	segments   int
}

func newFileTracker(ctx context.Context, ch chan<- Progress, totalBytes int64, segments int) *tracker {
	return &tracker{ctx: ctx, ch: ch, totalBytes: totalBytes, segments: segments}
}

func newFolderTracker(ctx context.Context, ch chan<- Progress, totalFiles int, totalBytes int64) *tracker {
	return &tracker{ctx: ctx, ch: ch, folder: true, totalFiles: totalFiles, totalBytes: totalBytes}
}

// addBytes records n more transferred bytes.
func (t *tracker) addBytes(n int64) {
	if t == nil || n == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.bytes += n
	t.publish()
}

// fileDone records one more completed file of a folder transfer.
func (t *tracker) fileDone() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.files++
	t.publish()
}

func (t *tracker) snapshot() Progress {
	if t.folder {
		return FolderProgress{
			TransferredFiles: t.files,
			TotalFiles:       t.totalFiles,
			TransferredBytes: t.bytes,
			TotalBytes:       t.totalBytes,
		}
	}

	return FileProgress{
		TransferredBytes: t.bytes,
		TotalBytes:       t.totalBytes,
		TotalSegments:    t.segments,
	}
}

// publish sends the current snapshot. Caller holds t.mu.
func (t *tracker) publish() {
	if t.ch == nil {
		return
	}

	select {
	case t.ch <- t.snapshot():
	case <-t.ctx.Done():
	}
}

// setSegments records the segment count of a single-file transfer once it
// has been planned. Folder trackers ignore it.
func (t *tracker) setSegments(n int) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.folder {
		t.segments = n
	}
}
