package cachestore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory keeps objects in process memory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	puts int
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Get returns a copy of the object under key.
func (b *Memory) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data under key.
func (b *Memory) Put(_ context.Context, key string, data []byte) error {
	if _, err := cleanKey(key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	b.puts++
	return nil
}

// Exists reports whether key is stored.
func (b *Memory) Exists(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok, nil
}

// Delete removes key.
func (b *Memory) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// List returns stored keys with the given prefix.
func (b *Memory) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Puts returns how many writes the backend accepted.
func (b *Memory) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}

// Name returns "memory".
func (b *Memory) Name() string { return "memory" }

// Close is a no-op.
func (b *Memory) Close() error { return nil }
