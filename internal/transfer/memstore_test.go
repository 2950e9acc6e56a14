package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/adltransfer/internal/datalake"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory Store. Directories are implied by file paths
// and by Mkdirs.
type memStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	dirs    map[string]bool
	modTime time.Time

	creates map[string]int
	opens   map[int64]int

	// Injected failures: CREATE of a path, OPEN at an offset.
	failCreate map[string]bool
	failOpen   map[int64]bool
	concats    map[string][]string
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		files:      map[string][]byte{},
		dirs:       map[string]bool{"/": true},
		modTime:    time.UnixMilli(1700000000000),
		creates:    map[string]int{},
		opens:      map[int64]int{},
		failCreate: map[string]bool{},
		failOpen:   map[int64]bool{},
		concats:    map[string][]string{},
	}
}

func notFound(p string) error {
	return fmt.Errorf("%s: %w", p, datalake.ErrNotFound)
}

func (s *memStore) put(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[p] = bytes.Clone(data)
	s.addParents(p)
}

func (s *memStore) get(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[p]

	return data, ok
}

// paths returns every file path, sorted.
func (s *memStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

func (s *memStore) createCount(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.creates[p]
}

func (s *memStore) addParents(p string) {
	for d := path.Dir(p); ; d = path.Dir(d) {
		s.dirs[d] = true
		if d == "/" {
			return
		}
	}
}

func (s *memStore) GetFileStatus(_ context.Context, p string) (*datalake.FileStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.files[p]; ok {
		return &datalake.FileStatus{
			Type:             datalake.TypeFile,
			Length:           int64(len(data)),
			ModificationTime: s.modTime.UnixMilli(),
		}, nil
	}

	if s.dirs[p] {
		return &datalake.FileStatus{Type: datalake.TypeDirectory}, nil
	}

	return nil, notFound(p)
}

func (s *memStore) ListStatus(_ context.Context, p string) ([]datalake.FileStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirs[p] {
		return nil, notFound(p)
	}

	var out []datalake.FileStatus

	for f, data := range s.files {
		if path.Dir(f) == p {
			out = append(out, datalake.FileStatus{
				PathSuffix:       path.Base(f),
				Type:             datalake.TypeFile,
				Length:           int64(len(data)),
				ModificationTime: s.modTime.UnixMilli(),
			})
		}
	}

	for d := range s.dirs {
		if d != p && path.Dir(d) == p {
			out = append(out, datalake.FileStatus{PathSuffix: path.Base(d), Type: datalake.TypeDirectory})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PathSuffix < out[j].PathSuffix })

	return out, nil
}

func (s *memStore) Mkdirs(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirs[p] = true
	s.addParents(p)

	return nil
}

func (s *memStore) Create(_ context.Context, p string, data []byte, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates[p]++

	if s.failCreate[p] {
		return errInjected
	}

	if _, ok := s.files[p]; ok && !overwrite {
		return fmt.Errorf("%s: %w", p, datalake.ErrAlreadyExists)
	}

	s.files[p] = bytes.Clone(data)
	s.addParents(p)

	return nil
}

func (s *memStore) Append(_ context.Context, p string, data []byte, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.files[p]
	if !ok {
		return notFound(p)
	}

	if int64(len(cur)) != offset {
		return fmt.Errorf("append at %d to file of length %d: %w", offset, len(cur), datalake.ErrBadRequest)
	}

	s.files[p] = append(cur, data...)

	return nil
}

func (s *memStore) Open(_ context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens[offset]++

	if s.failOpen[offset] {
		return nil, errInjected
	}

	data, ok := s.files[p]
	if !ok {
		return nil, notFound(p)
	}

	end := min(offset+length, int64(len(data)))

	return io.NopCloser(bytes.NewReader(bytes.Clone(data[offset:end]))), nil
}

func (s *memStore) Concat(_ context.Context, target string, sources []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer

	for _, src := range sources {
		data, ok := s.files[src]
		if !ok {
			return notFound(src)
		}

		buf.Write(data)
	}

	if _, ok := s.files[target]; ok {
		return fmt.Errorf("%s: %w", target, datalake.ErrAlreadyExists)
	}

	for _, src := range sources {
		s.deleteLocked(path.Dir(src))
	}

	s.files[target] = buf.Bytes()
	s.addParents(target)
	s.concats[target] = sources

	return nil
}

func (s *memStore) Delete(_ context.Context, p string, _ bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(p), nil
}

func (s *memStore) deleteLocked(p string) bool {
	found := false

	if _, ok := s.files[p]; ok {
		delete(s.files, p)
		found = true
	}

	for f := range s.files {
		if strings.HasPrefix(f, p+"/") {
			delete(s.files, f)
			found = true
		}
	}

	for d := range s.dirs {
		if d == p || strings.HasPrefix(d, p+"/") {
			delete(s.dirs, d)
			found = true
		}
	}

	return found
}

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newTestManager returns a Manager over store with a fixed staging ID.
func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()

	m := NewManager(store, testLogger(t))
	m.newID = func() string { return "test" }

	return m
}

// testConfig returns a binary-mode config for source and target.
func testConfig(direction Direction, source, target string) Config {
	cfg := DefaultConfig()
	cfg.Direction = direction
	cfg.SourcePath = source
	cfg.TargetPath = target
	cfg.AccountName = "acct"
	cfg.Binary = true

	return cfg
}

// writeFile creates a file with the given content under dir.
func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))

	return p
}

// patterned returns n bytes of non-repeating-looking content.
func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%23)
	}

	return b
}

// collect drains progress snapshots until ch is closed.
func collect(ch <-chan Progress) <-chan []Progress {
	out := make(chan []Progress, 1)

	go func() {
		var all []Progress
		for p := range ch {
			all = append(all, p)
		}

		out <- all
	}()

	return out
}
