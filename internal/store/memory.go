package store

import (
	"context"
	"slices"
	"sync"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

// Memory keeps threads in process memory.
type Memory struct {
	mu      sync.RWMutex
	threads map[string][]agent.Message
}

func NewMemory() *Memory {
	return &Memory{threads: make(map[string][]agent.Message)}
}

func (m *Memory) Load(_ context.Context, threadID string) ([]agent.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.threads[threadID]), nil
}

func (m *Memory) Append(_ context.Context, threadID string, messages []agent.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.threads[threadID] = append(m.threads[threadID], messages...)
	return nil
}

func (m *Memory) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[threadID]; !ok {
		return ErrNotFound
	}
	delete(m.threads, threadID)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
