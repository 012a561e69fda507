package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to cold storage. The tick archiver is the only
// producer; keys are partitioned by day under ticks/.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
