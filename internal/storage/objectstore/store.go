// Package objectstore holds the blob side of artifact tracking: artifact
// payloads under <project>/artifacts/<artifact_id>/<filename> and run
// configuration documents under <project>/runs/<run_id>/config.yaml.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when the key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Store is the payload store used by the tracking client. Keys are immutable
// once an artifact version references them; Delete only removes payloads
// whose registration failed.
type Store interface {
	// Put uploads exactly size bytes from body.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	// Get streams a payload. The caller closes the reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat reports what the bucket holds for key without reading it.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

// ObjectInfo describes a stored payload as the bucket reports it.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}
