package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/model"
)

var t0 = time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

func newNotification(status model.Status) *model.Notification {
	return &model.Notification{Status: status, MaxRetries: 3}
}

func TestApply_HappyPath(t *testing.T) {
	n := newNotification(model.StatusPending)

	steps := []struct {
		ev   Event
		want model.Status
	}{
		{Event{Kind: Enqueue, At: t0, NextAttemptAt: t0}, model.StatusQueued},
		{Event{Kind: Claim, At: t0}, model.StatusProcessing},
		{Event{Kind: Sent, At: t0, ProviderName: "smtp", ProviderMessageID: "m-1", Body: "hi"}, model.StatusSent},
		{Event{Kind: Delivered, At: t0.Add(time.Minute)}, model.StatusDelivered},
		{Event{Kind: Opened, At: t0.Add(2 * time.Minute)}, model.StatusRead},
	}

	for _, s := range steps {
		changed, err := Apply(n, s.ev)
		require.NoError(t, err, s.ev.Kind)
		assert.True(t, changed, s.ev.Kind)
		assert.Equal(t, s.want, n.Status)
	}

	assert.Equal(t, "smtp", n.ProviderName)
	assert.Equal(t, "m-1", n.ProviderMessageID)
	assert.Equal(t, "hi", n.Body)
	require.NotNil(t, n.SentAt)
	require.NotNil(t, n.DeliveredAt)
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, t0.Add(time.Minute), *n.DeliveredAt)
}

func TestApply_InvalidInternalTransitions(t *testing.T) {
	cases := []struct {
		from model.Status
		kind Kind
	}{
		{model.StatusQueued, Enqueue},
		{model.StatusPending, Claim},
		{model.StatusQueued, Sent},
		{model.StatusSent, Fail},
		{model.StatusQueued, Retry},
		{model.StatusProcessing, Finalize},
		{model.StatusQueued, Release},
	}

	for _, c := range cases {
		n := newNotification(c.from)
		changed, err := Apply(n, Event{Kind: c.kind, At: t0})
		assert.ErrorIs(t, err, model.ErrInvalidTransition, "%s from %s", c.kind, c.from)
		assert.False(t, changed)
		assert.Equal(t, c.from, n.Status)
	}
}

func TestApply_RetryRespectsBudget(t *testing.T) {
	n := newNotification(model.StatusFailed)
	n.MaxRetries = 1

	changed, err := Apply(n, Event{Kind: Retry, At: t0, NextAttemptAt: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, model.StatusQueued, n.Status)
	assert.Equal(t, t0.Add(time.Second), n.NextAttemptAt)

	n.Status = model.StatusFailed
	_, err = Apply(n, Event{Kind: Retry, At: t0})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, 1, n.RetryCount)
}

func TestApply_FinalizeSetsFailedAtOnce(t *testing.T) {
	n := newNotification(model.StatusProcessing)

	_, err := Apply(n, Event{Kind: Fail, At: t0, Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, "boom", n.LastError)
	assert.Nil(t, n.FailedAt)

	_, err = Apply(n, Event{Kind: Finalize, At: t0})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailedFinal, n.Status)
	require.NotNil(t, n.FailedAt)
	assert.Equal(t, t0, *n.FailedAt)
}

func TestApply_Cancel(t *testing.T) {
	for _, from := range []model.Status{model.StatusPending, model.StatusQueued} {
		n := newNotification(from)
		changed, err := Apply(n, Event{Kind: Cancel, At: t0})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, model.StatusCancelled, n.Status)

		changed, err = Apply(n, Event{Kind: Cancel, At: t0})
		require.NoError(t, err)
		assert.False(t, changed)
	}

	for _, from := range []model.Status{model.StatusProcessing, model.StatusSent, model.StatusFailedFinal} {
		n := newNotification(from)
		_, err := Apply(n, Event{Kind: Cancel, At: t0})
		assert.ErrorIs(t, err, model.ErrNotCancelable)
		assert.Equal(t, from, n.Status)
	}
}

func TestApply_WebhookReplayIsNoop(t *testing.T) {
	n := newNotification(model.StatusSent)

	changed, err := Apply(n, Event{Kind: Delivered, At: t0})
	require.NoError(t, err)
	require.True(t, changed)
	first := *n

	changed, err = Apply(n, Event{Kind: Delivered, At: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first.Status, n.Status)
	assert.Equal(t, *first.DeliveredAt, *n.DeliveredAt)
}

func TestApply_WebhookNeverMovesBackward(t *testing.T) {
	n := newNotification(model.StatusRead)

	for _, k := range []Kind{Delivered, Opened, Bounced, Failed} {
		changed, err := Apply(n, Event{Kind: k, At: t0})
		require.NoError(t, err)
		assert.False(t, changed, k)
		assert.Equal(t, model.StatusRead, n.Status)
	}

	// a delivery receipt arriving after the open is discarded
	n = newNotification(model.StatusSent)
	_, err := Apply(n, Event{Kind: Opened, At: t0})
	require.NoError(t, err)
	changed, err := Apply(n, Event{Kind: Delivered, At: t0})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.StatusRead, n.Status)
	assert.Nil(t, n.DeliveredAt)
}

func TestApply_WebhookBeforeSentIsDropped(t *testing.T) {
	n := newNotification(model.StatusProcessing)

	changed, err := Apply(n, Event{Kind: Delivered, At: t0})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.StatusProcessing, n.Status)
}

func TestApply_BounceIsFinal(t *testing.T) {
	n := newNotification(model.StatusSent)

	changed, err := Apply(n, Event{Kind: Bounced, At: t0, Error: "mailbox full"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusFailedFinal, n.Status)
	assert.Equal(t, "mailbox full", n.LastError)

	changed, err = Apply(n, Event{Kind: Delivered, At: t0})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestFromProviderEvent(t *testing.T) {
	ev, err := FromProviderEvent(model.ProviderEvent{EventType: model.EventOpened, Timestamp: t0})
	require.NoError(t, err)
	assert.Equal(t, Opened, ev.Kind)
	assert.Equal(t, t0, ev.At)

	_, err = FromProviderEvent(model.ProviderEvent{EventType: "clicked"})
	assert.Error(t, err)
}
