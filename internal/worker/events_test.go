package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/retry"

	mocks "github.com/aliskhannn/notify-engine/internal/mocks/worker"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/rabbitmq/queue"
)

func TestEventConsumer_Run_HandlesMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockeventQueue(ctrl)
	mockHandler := mocks.NewMockmessageHandler(ctrl)

	c := NewEventConsumer(mockQueue, mockHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond}

	msg := queue.EventMessage{Event: model.ProviderEvent{
		ProviderName:      "smtp",
		ProviderMessageID: "<1@example.com>",
		EventType:         model.EventOpened,
	}}

	mockQueue.EXPECT().Consume(gomock.Any(), gomock.Any(), strategy).DoAndReturn(
		func(_ context.Context, out chan<- queue.EventMessage, _ retry.Strategy) error {
			out <- msg
			return nil
		},
	)

	handled := make(chan struct{})
	mockHandler.EXPECT().HandleMessage(gomock.Any(), msg, strategy).Do(
		func(context.Context, queue.EventMessage, retry.Strategy) { close(handled) },
	)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, strategy, 2)
		close(done)
	}()

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("message was not handled")
	}

	cancel()
	<-done
}

func TestEventConsumer_Run_ConsumeError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockeventQueue(ctrl)
	mockHandler := mocks.NewMockmessageHandler(ctrl)

	c := NewEventConsumer(mockQueue, mockHandler)

	ctx, cancel := context.WithCancel(context.Background())
	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond}

	consumed := make(chan struct{})
	mockQueue.EXPECT().Consume(gomock.Any(), gomock.Any(), strategy).DoAndReturn(
		func(context.Context, chan<- queue.EventMessage, retry.Strategy) error {
			close(consumed)
			return errors.New("connection closed")
		},
	)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, strategy, 1)
		close(done)
	}()

	<-consumed
	cancel()
	<-done
}

func TestEventConsumer_Run_DrainsInFlightMessagesOnShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockeventQueue(ctrl)
	mockHandler := mocks.NewMockmessageHandler(ctrl)

	c := NewEventConsumer(mockQueue, mockHandler)

	ctx, cancel := context.WithCancel(context.Background())
	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond}

	msgs := []queue.EventMessage{
		{Event: model.ProviderEvent{ProviderName: "twilio", ProviderMessageID: "SM1", EventType: model.EventDelivered}},
		{Event: model.ProviderEvent{ProviderName: "twilio", ProviderMessageID: "SM2", EventType: model.EventDelivered}},
		{Event: model.ProviderEvent{ProviderName: "twilio", ProviderMessageID: "SM3", EventType: model.EventFailed}},
	}

	// the queue already holds acked deliveries when shutdown starts
	mockQueue.EXPECT().Consume(gomock.Any(), gomock.Any(), strategy).DoAndReturn(
		func(ctx context.Context, out chan<- queue.EventMessage, _ retry.Strategy) error {
			<-ctx.Done()
			for _, m := range msgs {
				out <- m
			}
			return nil
		},
	)

	var handled atomic.Int32
	mockHandler.EXPECT().HandleMessage(gomock.Any(), gomock.Any(), strategy).Do(
		func(ctx context.Context, _ queue.EventMessage, _ retry.Strategy) {
			assert.NoError(t, ctx.Err())
			handled.Add(1)
		},
	).Times(len(msgs))

	done := make(chan struct{})
	go func() {
		c.Run(ctx, strategy, 2)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, int32(len(msgs)), handled.Load())
}
