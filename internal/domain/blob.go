package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in cold storage.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads archive batches and snapshots. Put streams the whole
// object in one request; PutMultipart splits data into partSize chunks for
// objects too large to buffer.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves archived objects. Get reports ErrNotFound for a
// missing path; List walks everything under a prefix.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter prunes archived objects. Deleting a missing path succeeds.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver moves old journal rows to cold storage and writes periodic
// balance snapshots. ArchiveEvents reports how many records it moved and
// the highest sequence number among them, so the caller can prune exactly
// the archived prefix. SnapshotBalances returns the path of the object it
// wrote.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (count int64, lastSeq uint64, err error)
	SnapshotBalances(ctx context.Context) (string, error)
}
