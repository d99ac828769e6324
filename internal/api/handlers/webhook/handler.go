package webhook

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/api/dto"
	"github.com/aliskhannn/notify-engine/internal/api/respond"
	"github.com/aliskhannn/notify-engine/internal/model"
	parser "github.com/aliskhannn/notify-engine/internal/webhook"
)

const maxBodyBytes = 1 << 20

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/webhook/mock.go -package=mocks
type eventPublisher interface {
	Publish(ev model.ProviderEvent, strategy retry.Strategy) error
}

// Handler accepts provider delivery callbacks and hands them to the event queue.
// Reconciliation happens asynchronously so providers get a fast 202.
type Handler struct {
	publisher eventPublisher
	strategy  retry.Strategy
	now       func() time.Time
}

// NewHandler creates a Handler that publishes with the given retry strategy.
func NewHandler(p eventPublisher, strategy retry.Strategy) *Handler {
	return &Handler{
		publisher: p,
		strategy:  strategy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Receive handles POST /api/webhooks/:provider.
func (h *Handler) Receive(c *ginext.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		zlog.Logger.Error().Err(err).Str("provider", provider).Msg("failed to read webhook body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	events, err := parser.Parse(provider, c.ContentType(), body, h.now())
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("provider", provider).Msg("failed to parse webhook")
		respond.Fail(c.Writer, http.StatusBadRequest, err)
		return
	}

	for _, ev := range events {
		if err := h.publisher.Publish(ev, h.strategy); err != nil {
			zlog.Logger.Error().
				Err(err).
				Str("provider", provider).
				Str("provider_message_id", ev.ProviderMessageID).
				Msg("failed to publish provider event")
			// Providers redeliver on 5xx; replays are no-ops downstream.
			respond.Fail(c.Writer, http.StatusServiceUnavailable, fmt.Errorf("event queue unavailable"))
			return
		}
	}

	respond.Accepted(c.Writer, dto.AcceptedResponse{Accepted: len(events)})
}
