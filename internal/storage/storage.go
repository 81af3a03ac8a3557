package storage

import (
	"context"
	"errors"
	"io"
)

var ErrBucketNotFound = errors.New("bucket not found")

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// PutOptions carries object attributes. Metadata keys are stored as user
// metadata and must be plain ASCII.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore receives archived feedback objects. Objects are written once
// and never read back by the service.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}
