package push

import (
	"context"
	"errors"
	"strings"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/channel"
)

type fakeFCM struct {
	got *messaging.Message
	id  string
	err error
}

func (f *fakeFCM) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.got = m
	return f.id, f.err
}

func TestClient_Send(t *testing.T) {
	fcm := &fakeFCM{id: "projects/p/messages/1"}
	c := &Client{fcm: fcm}

	id, err := c.Send(context.Background(), channel.Message{
		Recipient:      "device-token",
		Subject:        "Order shipped",
		Body:           "Your order is on the way",
		IdempotencyKey: "n-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/p/messages/1", id)

	require.NotNil(t, fcm.got)
	assert.Equal(t, "device-token", fcm.got.Token)
	assert.Equal(t, "Order shipped", fcm.got.Notification.Title)
	assert.Equal(t, "n-1", fcm.got.Data["notification_id"])
}

func TestClient_SendErrors(t *testing.T) {
	c := &Client{fcm: &fakeFCM{err: errors.New("unavailable")}}

	_, err := c.Send(context.Background(), channel.Message{Recipient: "device-token"})
	require.Error(t, err)
	assert.Equal(t, channel.ClassTransient, channel.Classify(err))

	_, err = c.Send(context.Background(), channel.Message{Recipient: "bad token"})
	assert.Equal(t, channel.ClassPermanent, channel.Classify(err))
}

func TestClient_ValidateRecipient(t *testing.T) {
	c := &Client{}

	assert.NoError(t, c.ValidateRecipient("abc:APA91b"))
	assert.Error(t, c.ValidateRecipient(""))
	assert.Error(t, c.ValidateRecipient(strings.Repeat("a", maxTokenLength+1)))
}
