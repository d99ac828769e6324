// Package lifecycle holds the notification state machine.
//
// Every writer (the stores, worker completion, webhook reconciliation and
// administrative cancel) mutates notifications only through Apply, so the
// allowed transitions live in exactly one place.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/aliskhannn/notify-engine/internal/model"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	Enqueue  Kind = "enqueue"
	Claim    Kind = "claim"
	Release  Kind = "release"
	Sent     Kind = "sent"
	Fail     Kind = "fail"
	Retry    Kind = "retry"
	Finalize Kind = "finalize"
	Cancel   Kind = "cancel"

	Delivered Kind = "delivered"
	Opened    Kind = "opened"
	Bounced   Kind = "bounced"
	Failed    Kind = "failed"
)

// Event is a single requested transition with its payload.
type Event struct {
	Kind              Kind
	At                time.Time
	NextAttemptAt     time.Time
	ProviderName      string
	ProviderMessageID string
	Subject           string
	Body              string
	Error             string
}

// FromProviderEvent converts a normalized provider callback into a lifecycle event.
func FromProviderEvent(ev model.ProviderEvent) (Event, error) {
	var kind Kind
	switch ev.EventType {
	case model.EventDelivered:
		kind = Delivered
	case model.EventOpened:
		kind = Opened
	case model.EventBounced:
		kind = Bounced
	case model.EventFailed:
		kind = Failed
	default:
		return Event{}, fmt.Errorf("unknown provider event type %q", ev.EventType)
	}

	return Event{Kind: kind, At: ev.Timestamp, Error: ev.Reason}, nil
}

// IsWebhook reports whether k originates from a provider callback.
func (k Kind) IsWebhook() bool {
	switch k {
	case Delivered, Opened, Bounced, Failed:
		return true
	}
	return false
}

// Apply mutates n according to ev.
//
// Internal events requested from the wrong state fail with
// model.ErrInvalidTransition. Webhook events that would not move the
// notification forward are dropped with changed=false and a nil error, so
// replays and out-of-order callbacks are harmless.
func Apply(n *model.Notification, ev Event) (bool, error) {
	from := n.Status

	switch ev.Kind {
	case Enqueue:
		if from != model.StatusPending {
			return false, invalid(from, ev.Kind)
		}
		n.Status = model.StatusQueued
		n.NextAttemptAt = ev.NextAttemptAt

	case Claim:
		if from != model.StatusQueued {
			return false, invalid(from, ev.Kind)
		}
		n.Status = model.StatusProcessing

	case Release:
		if from != model.StatusProcessing {
			return false, invalid(from, ev.Kind)
		}
		n.Status = model.StatusQueued
		n.NextAttemptAt = ev.NextAttemptAt

	case Sent:
		if from != model.StatusProcessing {
			return false, invalid(from, ev.Kind)
		}
		n.Status = model.StatusSent
		n.ProviderName = ev.ProviderName
		n.ProviderMessageID = ev.ProviderMessageID
		if ev.Subject != "" || ev.Body != "" {
			n.Subject = ev.Subject
			n.Body = ev.Body
		}
		n.LastError = ""
		setOnce(&n.SentAt, ev.At)

	case Fail:
		if from != model.StatusProcessing {
			return false, invalid(from, ev.Kind)
		}
		n.Status = model.StatusFailed
		n.LastError = ev.Error

	case Retry:
		if from != model.StatusFailed {
			return false, invalid(from, ev.Kind)
		}
		if n.RetryCount >= n.MaxRetries {
			return false, fmt.Errorf("%w: retry budget exhausted (%d/%d)", model.ErrInvalidTransition, n.RetryCount, n.MaxRetries)
		}
		n.Status = model.StatusQueued
		n.RetryCount++
		n.NextAttemptAt = ev.NextAttemptAt

	case Finalize:
		if from != model.StatusFailed {
			return false, invalid(from, ev.Kind)
		}
		n.Status = model.StatusFailedFinal
		setOnce(&n.FailedAt, ev.At)

	case Cancel:
		switch from {
		case model.StatusCancelled:
			return false, nil
		case model.StatusPending, model.StatusQueued:
			n.Status = model.StatusCancelled
		default:
			return false, fmt.Errorf("%w: status %s", model.ErrNotCancelable, from)
		}

	case Delivered:
		if from != model.StatusSent {
			return false, nil
		}
		n.Status = model.StatusDelivered
		setOnce(&n.DeliveredAt, ev.At)

	case Opened:
		if from != model.StatusSent && from != model.StatusDelivered {
			return false, nil
		}
		n.Status = model.StatusRead
		setOnce(&n.ReadAt, ev.At)

	case Bounced, Failed:
		if from != model.StatusSent {
			return false, nil
		}
		n.Status = model.StatusFailedFinal
		if ev.Error != "" {
			n.LastError = ev.Error
		} else {
			n.LastError = "provider reported " + string(ev.Kind)
		}
		setOnce(&n.FailedAt, ev.At)

	default:
		return false, fmt.Errorf("%w: unknown event %q", model.ErrInvalidTransition, ev.Kind)
	}

	n.UpdatedAt = ev.At
	return true, nil
}

func invalid(from model.Status, kind Kind) error {
	return fmt.Errorf("%w: %s from %s", model.ErrInvalidTransition, kind, from)
}

// setOnce records a timestamp only the first time.
func setOnce(dst **time.Time, at time.Time) {
	if *dst != nil {
		return
	}
	t := at
	*dst = &t
}
