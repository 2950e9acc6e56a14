package transfer

import (
	"context"
	"io"

	"github.com/tonimelisma/adltransfer/internal/datalake"
)

// Store is the remote file system a Manager transfers to and from.
// *datalake.Client satisfies it; tests use an in-memory implementation.
type Store interface {
	GetFileStatus(ctx context.Context, remotePath string) (*datalake.FileStatus, error)
	ListStatus(ctx context.Context, remotePath string) ([]datalake.FileStatus, error)
	Mkdirs(ctx context.Context, remotePath string) error
	Create(ctx context.Context, remotePath string, data []byte, overwrite bool) error
	Append(ctx context.Context, remotePath string, data []byte, offset int64) error
	Open(ctx context.Context, remotePath string, offset, length int64) (io.ReadCloser, error)
	Concat(ctx context.Context, target string, sources []string) error
	Delete(ctx context.Context, remotePath string, recursive bool) (bool, error)
}

var _ Store = (*datalake.Client)(nil)
