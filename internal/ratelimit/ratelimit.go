// Package ratelimit enforces per-provider send budgets shared by all workers.
//
// Both backends implement a sliding-window log: the number of sends admitted
// in any rolling window never exceeds the limit.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/model"
)

// Window is the rolling period the per-minute limits are measured over.
const Window = time.Minute

// Limiter admits or rejects a single send.
// When ok is false, retryAfter is the earliest time a send could be admitted.
type Limiter interface {
	Allow(ctx context.Context) (ok bool, retryAfter time.Duration, err error)
}

// Factory builds a limiter for the given key and limit.
type Factory func(key string, limit int) Limiter

type unlimited struct{}

func (unlimited) Allow(context.Context) (bool, time.Duration, error) { return true, 0, nil }

// Unlimited admits every send.
func Unlimited() Limiter { return unlimited{} }

// Key identifies a limiter.
func Key(ch model.Channel, provider string) string {
	return fmt.Sprintf("%s:%s", ch, provider)
}

// Registry owns one limiter per (channel, provider) for the whole process.
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	limits   map[string]int
	limiters map[string]Limiter
}

// NewRegistry creates limiters lazily from factory using the limits in bindings.
func NewRegistry(factory Factory, bindings []channel.Binding) *Registry {
	limits := make(map[string]int, len(bindings))
	for _, b := range bindings {
		limits[Key(b.Channel, b.ProviderName)] = b.RateLimitPerMinute
	}

	return &Registry{
		factory:  factory,
		limits:   limits,
		limiters: make(map[string]Limiter),
	}
}

// For returns the shared limiter for (ch, provider).
func (r *Registry) For(ch model.Channel, provider string) Limiter {
	key := Key(ch, provider)

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok {
		return l
	}

	var l Limiter
	if limit := r.limits[key]; limit <= 0 {
		l = Unlimited()
	} else {
		l = r.factory(key, limit)
	}

	r.limiters[key] = l
	return l
}
