package driver

import (
	"context"
	"strings"
	"sync"
)

// MemoryClient process-local KeyValueDB, used in tests and as the default
// cache driver in development
type MemoryClient struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ KeyValueDB = &MemoryClient{}

// NewMemoryClient create an empty in-memory store
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{data: make(map[string]string)}
}

// Set implement KeyValueDB
func (m *MemoryClient) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Get implement KeyValueDB
func (m *MemoryClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Delete implement KeyValueDB
func (m *MemoryClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys implement KeyValueDB
func (m *MemoryClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Ping implement KeyValueDB
func (m *MemoryClient) Ping(ctx context.Context) error {
	return nil
}

// Close implement KeyValueDB
func (m *MemoryClient) Close() error {
	return nil
}
