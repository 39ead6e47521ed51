// Package memory is an in-process tokenstore.Medium.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
)

type Medium struct {
	mu   sync.RWMutex
	data map[string]string
}

func New() *Medium {
	return &Medium{data: make(map[string]string)}
}

func (m *Medium) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", tokenstore.ErrNotFound
	}
	return v, nil
}

func (m *Medium) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Medium) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Len reports the number of stored keys.
func (m *Medium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
