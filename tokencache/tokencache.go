// Package tokencache provides durable token storage for the auth bridge.
// The SQL cache is the persistent analog of browser local storage; the
// memory cache covers tests and throwaway processes.
package tokencache

import (
	"context"
	"sync"

	bridge "github.com/goliatone/go-auth-bridge"
)

// Memory is a process-local token cache.
type Memory struct {
	mu     sync.Mutex
	tokens bridge.TokenPair
}

var _ bridge.TokenCache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (bridge.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, nil
}

func (m *Memory) Save(ctx context.Context, tokens bridge.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = bridge.TokenPair{}
	return nil
}
