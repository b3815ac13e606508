package storage

import (
	"context"
	"time"
)

// ObjectStorage defines minimal object storage operations required by the
// submission flow. It is intentionally small so we can swap MinIO/AWS-S3
// implementations without touching business logic.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// PutObject writes an object from the given reader.
	PutObject(ctx context.Context, bucket, objectKey string, reader ObjectReader, sizeBytes int64, contentType string) error

	// PresignGetObject returns a time-limited URL for reading an object via HTTP GET.
	// The judge fetches testcase inputs and expected outputs through these.
	PresignGetObject(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	// PresignPutObject returns a time-limited URL for writing an object via HTTP PUT.
	PresignPutObject(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectReader is a streaming reader for object data.
type ObjectReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
