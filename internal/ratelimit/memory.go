package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding-window log.
type Memory struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	log    []time.Time // admitted sends, oldest first
	now    func() time.Time
}

// NewMemory creates a limiter admitting at most limit sends per window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:  limit,
		window: window,
		log:    make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// MemoryFactory builds Memory limiters over Window.
func MemoryFactory(_ string, limit int) Limiter {
	return NewMemory(limit, Window)
}

func (m *Memory) Allow(ctx context.Context) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	boundary := now.Add(-m.window)

	i := 0
	for i < len(m.log) && !m.log[i].After(boundary) {
		i++
	}
	m.log = m.log[i:]

	if len(m.log) < m.limit {
		m.log = append(m.log, now)
		return true, 0, nil
	}

	wait := m.log[0].Add(m.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}

	return false, wait, nil
}
