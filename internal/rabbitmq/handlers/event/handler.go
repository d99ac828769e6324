package event

import (
	"context"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/rabbitmq/queue"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/rabbitmq/handlers/event/mock.go -package=mocks
type reconciler interface {
	Reconcile(ctx context.Context, ev model.ProviderEvent) error
}

type requeuer interface {
	Retry(msg queue.EventMessage, strategy retry.Strategy) error
	DeadLetter(msg queue.EventMessage, strategy retry.Strategy) error
}

// Handler reconciles provider events taken off the broker and decides whether
// a failed one is retried or dead-lettered.
type Handler struct {
	reconciler  reconciler
	queue       requeuer
	maxAttempts int
}

// NewHandler creates a Handler. A message whose reconciliation keeps failing
// is re-queued until it has been tried maxAttempts times, then dead-lettered.
func NewHandler(r reconciler, q requeuer, maxAttempts int) *Handler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Handler{
		reconciler:  r,
		queue:       q,
		maxAttempts: maxAttempts,
	}
}

// HandleMessage reconciles msg. Failures go to the retry queue until
// maxAttempts is reached, then to the DLQ.
func (h *Handler) HandleMessage(ctx context.Context, msg queue.EventMessage, strategy retry.Strategy) {
	err := h.reconciler.Reconcile(ctx, msg.Event)
	if err == nil {
		return
	}

	attempt := msg.Attempt + 1
	zlog.Logger.Printf("failed to reconcile %s event for %s/%s: %v, attempt %d/%d",
		msg.Event.EventType, msg.Event.ProviderName, msg.Event.ProviderMessageID, err, attempt, h.maxAttempts,
	)

	if attempt < h.maxAttempts {
		if err := h.queue.Retry(msg, strategy); err != nil {
			zlog.Logger.Error().Err(err).Str("provider_message_id", msg.Event.ProviderMessageID).Msg("failed to requeue provider event")
		}
		return
	}

	zlog.Logger.Printf("provider event %s/%s failed after %d attempts, moving to DLQ",
		msg.Event.ProviderName, msg.Event.ProviderMessageID, attempt,
	)
	if err := h.queue.DeadLetter(msg, strategy); err != nil {
		zlog.Logger.Error().Err(err).Str("provider_message_id", msg.Event.ProviderMessageID).Msg("failed to dead-letter provider event")
	}
}
