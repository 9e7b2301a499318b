// Package dedup drops Telegram updates that were already delivered once. Telegram
// redelivers webhook updates it did not see acknowledged in time.
package dedup

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

type Deduplicator interface {
	// FirstSeen reports whether key is seen for the first time within the TTL.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *Memory) FirstSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[key] = now.Add(m.ttl)
	return true, nil
}

// Cleanup removes expired keys.
func (m *Memory) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, exp := range m.seen {
		if !now.Before(exp) {
			delete(m.seen, key)
		}
	}
}

func (m *Memory) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
