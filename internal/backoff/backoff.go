// Package backoff decides whether a failed send is retried and when.
package backoff

import (
	"math"
	"time"

	"github.com/aliskhannn/notify-engine/internal/channel"
)

// Action is the outcome of a retry decision.
type Action int

const (
	Retry Action = iota
	Finalize
)

func (a Action) String() string {
	if a == Retry {
		return "retry"
	}
	return "finalize"
}

// Decision tells the worker what to do with a failed notification.
type Decision struct {
	Action        Action
	NextAttemptAt time.Time // zero unless Action is Retry
}

// Policy is an exponential backoff capped at CapDelay. It keeps no state.
type Policy struct {
	BaseDelay time.Duration
	CapDelay  time.Duration
}

// Delay returns min(BaseDelay*2^n, CapDelay) without overflowing.
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}

	d := p.BaseDelay
	for i := 0; i < n && d > 0; i++ {
		if p.CapDelay > 0 && d >= p.CapDelay {
			return p.CapDelay
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}

	if p.CapDelay > 0 && d > p.CapDelay {
		return p.CapDelay
	}

	return d
}

// Decide picks Retry or Finalize for a failure of the given class.
// Permanent errors are never retried; transient ones are retried while budget remains.
func (p Policy) Decide(retryCount, maxRetries int, class channel.ErrorClass, now time.Time) Decision {
	if class == channel.ClassPermanent || retryCount >= maxRetries {
		return Decision{Action: Finalize}
	}

	return Decision{
		Action:        Retry,
		NextAttemptAt: now.Add(p.Delay(retryCount)),
	}
}
