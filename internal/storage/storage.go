// Package storage provides durable backends for a single named state blob.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("state not found")

// Blob persists one opaque record.
type Blob interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// MemoryBlob keeps the record in process memory.
type MemoryBlob struct {
	mu   sync.RWMutex
	data []byte
	// Fail, when set, is returned from every call.
	Fail error
}

func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{}
}

func (m *MemoryBlob) Load(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	if m.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBlob) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.data = append([]byte(nil), data...)
	return nil
}

// Set overwrites the stored record directly.
func (m *MemoryBlob) Set(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}
