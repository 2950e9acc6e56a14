// Package transfer moves files and folders between the local file system
// and a Data Lake Store account. Large files are split into segments that
// are transferred in parallel; segment completion is recorded in a local
// metadata directory so an interrupted transfer can be resumed.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/adltransfer/internal/datalake"
)

// ErrTargetExists is returned when the target exists and overwrite is off.
var ErrTargetExists = errors.New("transfer: target already exists (use overwrite to replace it)")

// Manager is the default Engine. It transfers through a Store.
type Manager struct {
	store  Store
	logger *slog.Logger
	newID  func() string
}

var _ Engine = (*Manager)(nil)

// NewManager creates a Manager over store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:  store,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// fileJob is one file of a transfer.
type fileJob struct {
	source  string
	target  string
	size    int64
	modTime time.Time
}

// Execute runs the transfer described by cfg. Snapshots are sent on
// progress while Execute runs; none are sent after it returns.
func (m *Manager) Execute(ctx context.Context, cfg Config, progress chan<- Progress) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	meta := newMetadataStore(cfg.MetadataDir, m.logger)

	m.logger.Info("transfer starting",
		slog.String("direction", cfg.Direction.String()),
		slog.String("source", cfg.SourcePath),
		slog.String("target", cfg.TargetPath),
		slog.Bool("resume", cfg.Resume),
	)

	start := time.Now()

	var err error
	if cfg.IsDownload() {
		err = m.download(ctx, cfg, meta, progress)
	} else {
		err = m.upload(ctx, cfg, meta, progress)
	}

	if err != nil {
		m.logger.Warn("transfer failed", slog.String("error", err.Error()))
		return err
	}

	m.logger.Info("transfer complete", slog.Duration("elapsed", time.Since(start)))

	return nil
}

// runFolder transfers jobs with at most cfg.ConcurrentFileCount files in
// flight. A failed file does not stop the others; all failures are
// returned together.
func (m *Manager) runFolder(
	ctx context.Context,
	cfg Config,
	jobs []fileJob,
	t *tracker,
	transferFile func(context.Context, fileJob) error,
) error {
	var g errgroup.Group
	g.SetLimit(cfg.ConcurrentFileCount)

	var (
		mu   sync.Mutex
		errs []error
	)

	for _, job := range jobs {
		g.Go(func() error {
			if err := transferFile(ctx, job); err != nil {
				m.logger.Warn("file transfer failed",
					slog.String("source", job.source),
					slog.String("error", err.Error()),
				)

				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", job.source, err))
				mu.Unlock()

				return nil
			}

			t.fileDone()

			return nil
		})
	}

	_ = g.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("transfer: %d of %d files failed: %w", len(errs), len(jobs), errors.Join(errs...))
	}

	return nil
}

// totalSize sums the sizes of jobs.
func totalSize(jobs []fileJob) int64 {
	var n int64
	for _, j := range jobs {
		n += j.size
	}

	return n
}

// remotePath cleans a user-supplied remote path into absolute slash form.
func remotePath(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, `\`, "/"))
}

// remoteExists reports whether remotePath exists. Directories are reported
// through isDir.
func (m *Manager) remoteExists(ctx context.Context, p string) (exists, isDir bool, err error) {
	st, err := m.store.GetFileStatus(ctx, p)
	if errors.Is(err, datalake.ErrNotFound) {
		return false, false, nil
	}

	if err != nil {
		return false, false, fmt.Errorf("transfer: checking %s: %w", p, err)
	}

	return true, st.IsDir(), nil
}

// localTarget converts a remote path relative to root into a local path
// under dir.
func localTarget(dir, root, p string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
	return filepath.Join(dir, filepath.FromSlash(rel))
}
