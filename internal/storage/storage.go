package storage

import (
	"context"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// Error is the error class of the storage layer.
var Error = errs.Class("storage")

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errs.Class("object not found")

// FileStorage is the assetstore holding file content.
type FileStorage interface {
	// Open returns a reader over the object stored under objectKey. The
	// caller must close it.
	Open(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Put stores size bytes read from r under objectKey.
	Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

// NewObjectKey returns a fresh key for content belonging to an item.
func NewObjectKey(itemID string) string {
	return path.Join("assetstore", itemID, uuid.NewString())
}
