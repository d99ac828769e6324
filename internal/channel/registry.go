package channel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aliskhannn/notify-engine/internal/model"
)

var ErrNoBinding = errors.New("no provider bound to channel")

// Binding connects a channel to a provider and its send budget.
type Binding struct {
	Channel            model.Channel `mapstructure:"channel"`
	ProviderName       string        `mapstructure:"provider"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"` // <= 0 means unlimited
	IsDefault          bool          `mapstructure:"default"`
}

// Route is a resolved binding with the adapter that serves it.
type Route struct {
	Binding Binding
	Adapter Adapter
}

// Registry maps channels to their provider routes.
type Registry struct {
	mu     sync.RWMutex
	routes map[model.Channel][]Route
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[model.Channel][]Route)}
}

// Register adds a route for b.Channel.
func (r *Registry) Register(b Binding, a Adapter) error {
	if !b.Channel.IsValid() {
		return fmt.Errorf("register binding: unknown channel %q", b.Channel)
	}
	if a == nil {
		return fmt.Errorf("register binding %s/%s: nil adapter", b.Channel, b.ProviderName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[b.Channel] = append(r.routes[b.Channel], Route{Binding: b, Adapter: a})
	return nil
}

// Resolve returns the default route of ch, or its first route if none is marked default.
func (r *Registry) Resolve(ch model.Channel) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := r.routes[ch]
	if len(routes) == 0 {
		return Route{}, fmt.Errorf("%w: %s", ErrNoBinding, ch)
	}

	for _, rt := range routes {
		if rt.Binding.IsDefault {
			return rt, nil
		}
	}

	return routes[0], nil
}

// Bindings lists every registered binding.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Binding
	for _, routes := range r.routes {
		for _, rt := range routes {
			out = append(out, rt.Binding)
		}
	}

	return out
}
