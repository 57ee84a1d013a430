package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStorage keeps objects in process memory.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStorage returns an empty in-memory assetstore.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: map[string][]byte{}}
}

// Open returns a reader over a copy of the stored bytes.
func (m *MemoryStorage) Open(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[objectKey]
	if !ok {
		return nil, ErrObjectNotFound.New("%s", objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put stores the content of r.
func (m *MemoryStorage) Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return Error.Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = data
	return nil
}

// DeleteObject removes an object; missing keys are not an error.
func (m *MemoryStorage) DeleteObject(ctx context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, objectKey)
	return nil
}

// Has reports whether an object exists.
func (m *MemoryStorage) Has(objectKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.objects[objectKey]
	return ok
}
