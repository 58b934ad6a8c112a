// Package storage defines the key/value medium the article store persists into, plus an in-memory
// medium and a quota decorator. Durable media live in the filestore, redisstore and sqlstore packages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned by Set when the value does not fit into the medium.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Medium is a string key/value handle. Set replaces the whole value.
type Medium interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// quota rejects writes larger than limit bytes before they reach the wrapped medium.
type quota struct {
	Medium
	limit int
}

// WithQuota wraps m so that a Set whose key plus value exceeds limit bytes fails with
// ErrQuotaExceeded. A limit <= 0 returns m unchanged.
func WithQuota(m Medium, limit int) Medium {
	if limit <= 0 {
		return m
	}
	return &quota{Medium: m, limit: limit}
}

func (q *quota) Set(ctx context.Context, key, value string) error {
	if size := len(key) + len(value); size > q.limit {
		return fmt.Errorf("write %d bytes to %q (limit %d): %w", size, key, q.limit, ErrQuotaExceeded)
	}
	return q.Medium.Set(ctx, key, value)
}
