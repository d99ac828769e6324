package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/model"
)

const (
	ExchangeName    = "notify-events"
	MainQueueName   = "provider-events"
	RetryQueueName  = "provider-events-retry"
	DLQName         = "provider-events-dlq"
	RoutingKey      = "event"
	RetryRoutingKey = "event.retry"
	DLQRoutingKey   = "event.dead"
)

// EventMessage carries a normalized provider event through the broker.
type EventMessage struct {
	Event   model.ProviderEvent `json:"event"`
	Attempt int                 `json:"attempt"`
}

// EventQueue publishes and consumes provider events on RabbitMQ.
type EventQueue struct {
	Publisher *rabbitmq.Publisher
	Consumer  *rabbitmq.Consumer
}

// NewEventQueue declares the exchange, the main queue, a delayed retry queue
// that dead-letters back into the main queue after retryDelay, and a DLQ.
func NewEventQueue(ch *rabbitmq.Channel, retryDelay time.Duration) (*EventQueue, error) {
	exchange := rabbitmq.NewExchange(ExchangeName, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	dlq, err := qm.DeclareQueue(DLQName, rabbitmq.QueueConfig{Durable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	retryQ, err := qm.DeclareQueue(RetryQueueName, rabbitmq.QueueConfig{
		Durable: true,
		Args: map[string]interface{}{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": MainQueueName,
			"x-message-ttl":             int32(retryDelay.Milliseconds()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare retry queue: %w", err)
	}

	mainQ, err := qm.DeclareQueue(MainQueueName, rabbitmq.QueueConfig{
		Durable: true,
		Args: map[string]interface{}{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DLQName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare main queue: %w", err)
	}

	bindings := []struct{ queue, key string }{
		{mainQ.Name, RoutingKey},
		{retryQ.Name, RetryRoutingKey},
		{dlq.Name, DLQRoutingKey},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, exchange.Name(), false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}

	pub := rabbitmq.NewPublisher(ch, exchange.Name())
	cons := rabbitmq.NewConsumer(ch, rabbitmq.NewConsumerConfig(mainQ.Name))

	return &EventQueue{Publisher: pub, Consumer: cons}, nil
}

// Publish sends a freshly received provider event to the main queue.
func (q *EventQueue) Publish(ev model.ProviderEvent, strategy retry.Strategy) error {
	return q.publish(EventMessage{Event: ev}, RoutingKey, strategy)
}

// Retry parks msg in the retry queue; it returns to the main queue after the retry delay.
func (q *EventQueue) Retry(msg EventMessage, strategy retry.Strategy) error {
	msg.Attempt++
	return q.publish(msg, RetryRoutingKey, strategy)
}

// DeadLetter moves msg to the DLQ for manual inspection.
func (q *EventQueue) DeadLetter(msg EventMessage, strategy retry.Strategy) error {
	return q.publish(msg, DLQRoutingKey, strategy)
}

func (q *EventQueue) publish(msg EventMessage, key string, strategy retry.Strategy) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.Publisher.PublishWithRetry(body, key, "application/json", strategy)
}

// Consume decodes messages from the main queue into out until ctx is done.
// It never sends on out after returning. Each decoded message is handed over
// even during shutdown, so out must be drained until Consume returns.
func (q *EventQueue) Consume(ctx context.Context, out chan<- EventMessage, strategy retry.Strategy) error {
	bodies := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		errc <- q.Consumer.ConsumeWithRetry(bodies, strategy)
	}()

	for {
		select {
		case <-ctx.Done():
			go q.requeueAfterShutdown(bodies, errc, strategy)
			return nil
		case err := <-errc:
			return err
		case body := <-bodies:
			msg, err := Decode(body)
			if err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to unmarshal provider event")
				continue
			}

			out <- msg
		}
	}
}

// requeueAfterShutdown publishes back deliveries the broker consumer already
// acked after shutdown began, until the consumer stops.
func (q *EventQueue) requeueAfterShutdown(bodies <-chan []byte, errc <-chan error, strategy retry.Strategy) {
	for {
		select {
		case <-errc:
			return
		case body := <-bodies:
			if err := q.Publisher.PublishWithRetry(body, RoutingKey, "application/json", strategy); err != nil {
				zlog.Logger.Error().Err(err).Bytes("body", body).Msg("failed to requeue provider event after shutdown")
			}
		}
	}
}

// Decode parses a broker payload into an EventMessage.
func Decode(body []byte) (EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return EventMessage{}, fmt.Errorf("decode event message: %w", err)
	}
	if msg.Event.ProviderName == "" || msg.Event.ProviderMessageID == "" {
		return EventMessage{}, fmt.Errorf("decode event message: missing provider name or message id")
	}

	return msg, nil
}
