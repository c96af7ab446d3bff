package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// Memory is an in-process ObjectStore for development and tests. Artifacts
// vanish on restart.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory { return &Memory{objects: map[string][]byte{}} }

func (m *Memory) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), body...), nil
}
