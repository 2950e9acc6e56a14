package transfer

import (
	"context"
	"fmt"
)

// Defaults for a transfer when neither the config file nor the command line
// overrides them.
const (
	DefaultPerFileThreadCount  = 10
	DefaultConcurrentFileCount = 5
	DefaultMaxSegmentLength    = 268435456 // 256 MiB
)

// Direction selects which way data moves between the local machine and the
// Data Lake Store account.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "Download"
	}

	return "Upload"
}

// Config is the complete, immutable description of one transfer. It is
// built once from parsed arguments and passed by value; nothing downstream
// modifies it.
type Config struct {
	SourcePath  string
	TargetPath  string
	AccountName string

	PerFileThreadCount  int
	ConcurrentFileCount int
	MaxSegmentLength    int64

	Overwrite bool
	Resume    bool
	Binary    bool // false: delimited input, segments end on record boundaries
	Recursive bool
	Direction Direction

	MetadataDir string
}

// DefaultConfig returns a Config carrying only the default tuning values.
func DefaultConfig() Config {
	return Config{
		PerFileThreadCount:  DefaultPerFileThreadCount,
		ConcurrentFileCount: DefaultConcurrentFileCount,
		MaxSegmentLength:    DefaultMaxSegmentLength,
	}
}

// IsDownload reports whether the transfer moves data from the account to
// the local machine.
func (c Config) IsDownload() bool {
	return c.Direction == Download
}

// Validate checks the tuning values. Path existence is the caller's concern.
func (c Config) Validate() error {
	if c.SourcePath == "" || c.TargetPath == "" || c.AccountName == "" {
		return fmt.Errorf("transfer: source, target and account name are required")
	}

	if c.PerFileThreadCount < 1 {
		return fmt.Errorf("transfer: per-file thread count must be positive, got %d", c.PerFileThreadCount)
	}

	if c.ConcurrentFileCount < 1 {
		return fmt.Errorf("transfer: concurrent file count must be positive, got %d", c.ConcurrentFileCount)
	}

	if c.MaxSegmentLength < 1 {
		return fmt.Errorf("transfer: segment length must be positive, got %d", c.MaxSegmentLength)
	}

	return nil
}

// Progress is a point-in-time progress snapshot. The concrete types are
// FileProgress for single-file transfers and FolderProgress for folders.
type Progress interface {
	// Transferred returns the number of bytes moved so far.
	Transferred() int64
	// Total returns the number of bytes the transfer will move.
	Total() int64
}

// FileProgress reports progress of a single-file transfer.
type FileProgress struct {
	TransferredBytes int64
	TotalBytes       int64
	TotalSegments    int
}

func (p FileProgress) Transferred() int64 { return p.TransferredBytes }
func (p FileProgress) Total() int64       { return p.TotalBytes }

// FolderProgress reports progress of a folder transfer across all files.
type FolderProgress struct {
	TransferredFiles int
	TotalFiles       int
	TransferredBytes int64
	TotalBytes       int64
}

func (p FolderProgress) Transferred() int64 { return p.TransferredBytes }
func (p FolderProgress) Total() int64       { return p.TotalBytes }

// Engine executes a transfer. Implementations send snapshots on progress
// while Execute runs and never after it returns; the caller owns the
// channel and closes it once Execute has returned.
type Engine interface {
	Execute(ctx context.Context, cfg Config, progress chan<- Progress) error
}
