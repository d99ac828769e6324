// Package reconciler applies provider delivery events to stored notifications.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/lifecycle"
	"github.com/aliskhannn/notify-engine/internal/metrics"
	"github.com/aliskhannn/notify-engine/internal/model"
)

//go:generate mockgen -source=reconciler.go -destination=../mocks/reconciler/mock.go -package=mocks
type eventStore interface {
	FindByProviderMessageID(ctx context.Context, provider, messageID string) (model.Notification, error)
	ApplyProviderEvent(ctx context.Context, id uuid.UUID, ev lifecycle.Event) (bool, error)
}

// Reconciler applies provider delivery events to the notifications they refer to.
type Reconciler struct {
	store    eventStore
	strategy retry.Strategy
}

// New creates a Reconciler. strategy bounds how long a lookup keeps retrying
// when the webhook arrives before the send was committed.
func New(s eventStore, strategy retry.Strategy) *Reconciler {
	return &Reconciler{store: s, strategy: strategy}
}

// Reconcile applies ev to the notification it refers to. Unknown event types
// and events for unknown messages are logged and dropped with a nil error.
func (r *Reconciler) Reconcile(ctx context.Context, ev model.ProviderEvent) error {
	le, err := lifecycle.FromProviderEvent(ev)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.ProviderName, string(ev.EventType), "unknown").Inc()
		zlog.Logger.Warn().Err(err).
			Str("provider", ev.ProviderName).
			Str("provider_message_id", ev.ProviderMessageID).
			Msg("dropping provider event of unknown type")
		return nil
	}

	var (
		n       model.Notification
		lastErr error
	)
	err = retry.Do(func() error {
		if lastErr = ctx.Err(); lastErr != nil {
			return lastErr
		}

		n, lastErr = r.store.FindByProviderMessageID(ctx, ev.ProviderName, ev.ProviderMessageID)
		return lastErr
	}, r.strategy)
	if err != nil {
		if errors.Is(lastErr, model.ErrNotificationNotFound) {
			metrics.WebhookOrphans.WithLabelValues(ev.ProviderName).Inc()
			metrics.WebhookEvents.WithLabelValues(ev.ProviderName, string(ev.EventType), "orphan").Inc()
			zlog.Logger.Warn().
				Str("provider", ev.ProviderName).
				Str("provider_message_id", ev.ProviderMessageID).
				Str("event", string(ev.EventType)).
				Msg("orphan provider event, no notification matches the message id")
			return nil
		}

		metrics.WebhookEvents.WithLabelValues(ev.ProviderName, string(ev.EventType), "error").Inc()
		return fmt.Errorf("find notification for %s/%s: %w", ev.ProviderName, ev.ProviderMessageID, lastErr)
	}

	changed, err := r.store.ApplyProviderEvent(ctx, n.ID, le)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.ProviderName, string(ev.EventType), "error").Inc()
		return fmt.Errorf("apply %s event to notification %s: %w", ev.EventType, n.ID, err)
	}

	if !changed {
		metrics.WebhookEvents.WithLabelValues(ev.ProviderName, string(ev.EventType), "ignored").Inc()
		zlog.Logger.Debug().
			Str("notification_id", n.ID.String()).
			Str("event", string(ev.EventType)).
			Str("status", string(n.Status)).
			Msg("provider event did not advance notification")
		return nil
	}

	metrics.WebhookEvents.WithLabelValues(ev.ProviderName, string(ev.EventType), "applied").Inc()
	zlog.Logger.Info().
		Str("notification_id", n.ID.String()).
		Str("event", string(ev.EventType)).
		Msg("provider event applied")

	return nil
}
