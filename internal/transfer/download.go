package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// partialSuffix marks a local file that is still being downloaded.
const partialSuffix = ".partial"

const (
	downloadFilePerms = 0o644
	downloadDirPerms  = 0o755
)

func (m *Manager) download(ctx context.Context, cfg Config, meta *metadataStore, progress chan<- Progress) error {
	source := remotePath(cfg.SourcePath)

	st, err := m.store.GetFileStatus(ctx, source)
	if err != nil {
		return fmt.Errorf("transfer: source %s: %w", source, err)
	}

	if !st.IsDir() {
		t := newFileTracker(ctx, progress, st.Length, 0)

		return m.downloadFile(ctx, cfg, meta, fileJob{
			source:  source,
			target:  cfg.TargetPath,
			size:    st.Length,
			modTime: st.ModTime(),
		}, t)
	}

	jobs, err := m.remoteJobs(ctx, source, source, cfg.TargetPath, cfg.Recursive)
	if err != nil {
		return err
	}

	m.logger.Info("downloading folder",
		slog.String("source", source),
		slog.Int("files", len(jobs)),
	)

	if err := os.MkdirAll(cfg.TargetPath, downloadDirPerms); err != nil {
		return fmt.Errorf("transfer: creating %s: %w", cfg.TargetPath, err)
	}

	t := newFolderTracker(ctx, progress, len(jobs), totalSize(jobs))

	return m.runFolder(ctx, cfg, jobs, t, func(ctx context.Context, job fileJob) error {
		return m.downloadFile(ctx, cfg, meta, job, t)
	})
}

// remoteJobs lists the files under dir, descending into subdirectories only
// when recursive is set. root is the folder being downloaded; local paths
// mirror the layout below it.
func (m *Manager) remoteJobs(ctx context.Context, root, dir, target string, recursive bool) ([]fileJob, error) {
	entries, err := m.store.ListStatus(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("transfer: listing %s: %w", dir, err)
	}

	var jobs []fileJob

	for _, e := range entries {
		p := path.Join(dir, e.PathSuffix)

		if e.IsDir() {
			if !recursive {
				continue
			}

			sub, err := m.remoteJobs(ctx, root, p, target, true)
			if err != nil {
				return nil, err
			}

			jobs = append(jobs, sub...)

			continue
		}

		jobs = append(jobs, fileJob{
			source:  p,
			target:  localTarget(target, root, p),
			size:    e.Length,
			modTime: e.ModTime(),
		})
	}

	return jobs, nil
}

// downloadFile downloads one remote file into target+".partial" and renames
// it into place once every segment has been written.
func (m *Manager) downloadFile(ctx context.Context, cfg Config, meta *metadataStore, job fileJob, t *tracker) error {
	if info, err := os.Stat(job.target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("transfer: target %s is a directory", job.target)
		}

		if !cfg.Overwrite {
			return fmt.Errorf("%w: %s", ErrTargetExists, job.target)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("transfer: checking %s: %w", job.target, err)
	}

	if err := os.MkdirAll(filepath.Dir(job.target), downloadDirPerms); err != nil {
		return fmt.Errorf("transfer: creating %s: %w", filepath.Dir(job.target), err)
	}

	segs := planSegments(job.size, cfg.MaxSegmentLength)
	t.setSegments(len(segs))

	partial := job.target + partialSuffix
	fp := Fingerprint{Size: job.size, ModTime: job.modTime.UTC()}

	state, _ := m.openResume(meta, cfg.Resume, Download, job.source, job.target, fp, segs)

	resumed := state.completedBytes() > 0
	if resumed && !partialIntact(partial, job.size) {
		m.logger.Info("partial download missing or changed, starting over", slog.String("path", partial))
		state, _ = m.openResume(meta, false, Download, job.source, job.target, fp, segs)
		resumed = false
	}

	flags := os.O_CREATE | os.O_WRONLY
	if !resumed {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(partial, flags, downloadFilePerms)
	if err != nil {
		return fmt.Errorf("transfer: opening %s: %w", partial, err)
	}

	if err := f.Truncate(job.size); err != nil {
		f.Close()
		return fmt.Errorf("transfer: sizing %s: %w", partial, err)
	}

	t.addBytes(state.completedBytes())

	if err := m.downloadSegments(ctx, cfg, f, job.source, segs, state, t); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("transfer: syncing %s: %w", partial, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("transfer: closing %s: %w", partial, err)
	}

	if err := os.Rename(partial, job.target); err != nil {
		return fmt.Errorf("transfer: renaming %s: %w", partial, err)
	}

	state.finish()

	return nil
}

// partialIntact reports whether a partial download from an earlier run is
// still present at its full preallocated size.
func partialIntact(partial string, size int64) bool {
	info, err := os.Stat(partial)
	return err == nil && info.Size() == size
}

// downloadSegments fetches every segment not yet completed, at most
// cfg.PerFileThreadCount at a time.
func (m *Manager) downloadSegments(
	ctx context.Context,
	cfg Config,
	w io.WriterAt,
	source string,
	segs []Segment,
	state *resumeState,
	t *tracker,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.PerFileThreadCount)

	for _, seg := range segs {
		if seg.Length == 0 || state.done(seg.Index) {
			continue
		}

		g.Go(func() error {
			if err := m.downloadRange(gctx, w, source, seg, t); err != nil {
				return fmt.Errorf("transfer: segment %d: %w", seg.Index, err)
			}

			if err := state.complete(seg.Index); err != nil {
				m.logger.Warn("failed to save transfer metadata", slog.String("error", err.Error()))
			}

			return nil
		})
	}

	return g.Wait()
}

// downloadRange reads seg of source in chunks and writes it at the same
// offsets of w.
func (m *Manager) downloadRange(ctx context.Context, w io.WriterAt, source string, seg Segment, t *tracker) error {
	for off := int64(0); off < seg.Length; {
		n := min(int64(chunkSize), seg.Length-off)
		pos := seg.Offset + off

		rc, err := m.store.Open(ctx, source, pos, n)
		if err != nil {
			return err
		}

		written, err := io.Copy(io.NewOffsetWriter(w, pos), io.LimitReader(rc, n))
		rc.Close()

		if err != nil {
			return fmt.Errorf("writing offset %d: %w", pos, err)
		}

		if written != n {
			return fmt.Errorf("reading offset %d: %w", pos, io.ErrUnexpectedEOF)
		}

		off += n
		t.addBytes(n)
	}

	return nil
}
