package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// stagingSuffix separates a target path from its segment staging directory.
const stagingSuffix = ".segments."

func (m *Manager) upload(ctx context.Context, cfg Config, meta *metadataStore, progress chan<- Progress) error {
	info, err := os.Stat(cfg.SourcePath)
	if err != nil {
		return fmt.Errorf("transfer: source %s: %w", cfg.SourcePath, err)
	}

	target := remotePath(cfg.TargetPath)

	if !info.IsDir() {
		t := newFileTracker(ctx, progress, info.Size(), 0)

		return m.uploadFile(ctx, cfg, meta, fileJob{
			source:  cfg.SourcePath,
			target:  target,
			size:    info.Size(),
			modTime: info.ModTime(),
		}, t)
	}

	jobs, err := localJobs(cfg.SourcePath, target, cfg.Recursive)
	if err != nil {
		return err
	}

	m.logger.Info("uploading folder",
		slog.String("source", cfg.SourcePath),
		slog.Int("files", len(jobs)),
	)

	if err := m.store.Mkdirs(ctx, target); err != nil {
		return fmt.Errorf("transfer: creating %s: %w", target, err)
	}

	t := newFolderTracker(ctx, progress, len(jobs), totalSize(jobs))

	return m.runFolder(ctx, cfg, jobs, t, func(ctx context.Context, job fileJob) error {
		return m.uploadFile(ctx, cfg, meta, job, t)
	})
}

// localJobs lists the regular files under dir. Subdirectories are descended
// into only when recursive is set.
func localJobs(dir, target string, recursive bool) ([]fileJob, error) {
	var jobs []fileJob

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if p != dir && !recursive {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		jobs = append(jobs, fileJob{
			source:  p,
			target:  path.Join(target, filepath.ToSlash(rel)),
			size:    info.Size(),
			modTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: listing %s: %w", dir, err)
	}

	return jobs, nil
}

// uploadFile uploads one local file. A single-segment file is written
// straight to the target; larger files are staged segment by segment and
// concatenated into the target at the end.
func (m *Manager) uploadFile(ctx context.Context, cfg Config, meta *metadataStore, job fileJob, t *tracker) error {
	f, err := os.Open(job.source)
	if err != nil {
		return fmt.Errorf("transfer: opening %s: %w", job.source, err)
	}
	defer f.Close()

	exists, isDir, err := m.remoteExists(ctx, job.target)
	if err != nil {
		return err
	}

	if isDir {
		return fmt.Errorf("transfer: target %s is a directory", job.target)
	}

	if exists && !cfg.Overwrite {
		return fmt.Errorf("%w: %s", ErrTargetExists, job.target)
	}

	segs, err := segmentsFor(f, job.size, cfg.MaxSegmentLength, cfg.Binary)
	if err != nil {
		return fmt.Errorf("transfer: %s: %w", job.source, err)
	}

	t.setSegments(len(segs))

	if len(segs) == 1 {
		meta.delete(Upload, job.source, job.target)

		return m.uploadRange(ctx, f, job.target, segs[0], t)
	}

	fp := Fingerprint{Size: job.size, ModTime: job.modTime.UTC()}

	state, stale := m.openResume(meta, cfg.Resume, Upload, job.source, job.target, fp, segs)
	if stale != nil && stale.StagingDir != "" {
		m.removeRemote(ctx, stale.StagingDir)
	}

	staging := state.stagingDir()
	if staging == "" {
		staging = job.target + stagingSuffix + m.newID()

		if err := state.setStagingDir(staging); err != nil {
			m.logger.Warn("failed to save transfer metadata", slog.String("error", err.Error()))
		}
	}

	t.addBytes(state.completedBytes())

	if err := m.uploadSegments(ctx, cfg, f, staging, segs, state, t); err != nil {
		return err
	}

	if exists {
		if _, err := m.store.Delete(ctx, job.target, false); err != nil {
			return fmt.Errorf("transfer: replacing %s: %w", job.target, err)
		}
	}

	sources := make([]string, len(segs))
	for i, s := range segs {
		sources[i] = segmentPath(staging, s.Index)
	}

	if err := m.store.Concat(ctx, job.target, sources); err != nil {
		return fmt.Errorf("transfer: joining segments of %s: %w", job.target, err)
	}

	state.finish()

	return nil
}

// uploadSegments uploads every segment not yet completed, at most
// cfg.PerFileThreadCount at a time.
func (m *Manager) uploadSegments(
	ctx context.Context,
	cfg Config,
	r io.ReaderAt,
	staging string,
	segs []Segment,
	state *resumeState,
	t *tracker,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.PerFileThreadCount)

	for _, seg := range segs {
		if state.done(seg.Index) {
			continue
		}

		g.Go(func() error {
			if err := m.uploadRange(gctx, r, segmentPath(staging, seg.Index), seg, t); err != nil {
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

// uploadRange writes seg of r to remote: CREATE with the first chunk, then
// APPEND the rest.
func (m *Manager) uploadRange(ctx context.Context, r io.ReaderAt, remote string, seg Segment, t *tracker) error {
	buf := make([]byte, min(int64(chunkSize), seg.Length))

	var off int64

	for {
		n := min(int64(chunkSize), seg.Length-off)
		data := buf[:n]

		if read, err := r.ReadAt(data, seg.Offset+off); read < len(data) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return fmt.Errorf("reading offset %d: %w", seg.Offset+off, err)
		}

		var err error
		if off == 0 {
			err = m.store.Create(ctx, remote, data, true)
		} else {
			err = m.store.Append(ctx, remote, data, off)
		}

		if err != nil {
			return err
		}

		off += n
		t.addBytes(n)

		if off >= seg.Length {
			return nil
		}
	}
}

// removeRemote deletes a remote path, logging failures.
func (m *Manager) removeRemote(ctx context.Context, p string) {
	if _, err := m.store.Delete(ctx, p, true); err != nil {
		m.logger.Warn("failed to remove stale segments",
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
	}
}

func segmentPath(staging string, index int) string {
	return staging + "/" + strconv.Itoa(index)
}
