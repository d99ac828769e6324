package worker

import (
	"context"
	"sync"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/rabbitmq/queue"
)

//go:generate mockgen -source=events.go -destination=../mocks/worker/mock.go -package=mocks
type eventQueue interface {
	Consume(ctx context.Context, out chan<- queue.EventMessage, strategy retry.Strategy) error
}

type messageHandler interface {
	HandleMessage(ctx context.Context, msg queue.EventMessage, strategy retry.Strategy)
}

// EventConsumer fans provider events from the broker out to a fixed set of
// goroutines that feed the reconciler.
type EventConsumer struct {
	queue   eventQueue
	handler messageHandler
}

// NewEventConsumer wires a queue to the handler that reconciles its messages.
func NewEventConsumer(q eventQueue, h messageHandler) *EventConsumer {
	return &EventConsumer{
		queue:   q,
		handler: h,
	}
}

// Run consumes until ctx is done. Messages the queue has already taken off the
// broker are still handled after that, with a context detached from ctx, and
// Run returns only once they are.
func (c *EventConsumer) Run(ctx context.Context, strategy retry.Strategy, workerCount int) {
	if workerCount <= 0 {
		workerCount = 1
	}

	var wg sync.WaitGroup
	msgChan := make(chan queue.EventMessage)

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		defer close(msgChan)

		if err := c.queue.Consume(ctx, msgChan, strategy); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to consume provider events")
		}
	}()

	bg := context.WithoutCancel(ctx)

	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(id int) {
			defer wg.Done()

			zlog.Logger.Printf("event-worker-%d started", id)

			for msg := range msgChan {
				c.handler.HandleMessage(bg, msg, strategy)
			}

			zlog.Logger.Printf("event-worker-%d shutting down", id)
		}(i)
	}

	<-ctx.Done()
	<-consumed
	wg.Wait()
	zlog.Logger.Print("event consumer stopped")
}
