package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/lifecycle"
	"github.com/aliskhannn/notify-engine/internal/model"
)

var now = time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

func queued(t *testing.T, s *Store, n model.Notification) (uuid.UUID, model.QueueEntry) {
	t.Helper()

	if n.Channel == "" {
		n.Channel = model.ChannelEmail
	}
	if n.Recipient == "" {
		n.Recipient = "user@example.com"
	}

	id, err := s.CreateNotification(context.Background(), n)
	require.NoError(t, err)

	e, err := s.Enqueue(context.Background(), id, now)
	require.NoError(t, err)

	return id, e
}

func TestStore_CreateAndEnqueue(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id, err := s.CreateNotification(ctx, model.Notification{Channel: model.ChannelSMS, Recipient: "+15550001111", MaxRetries: 3})
	require.NoError(t, err)

	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, n.Status)

	e, err := s.Enqueue(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimQueued, e.ClaimStatus)

	n, err = s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, n.Status)

	_, err = s.Enqueue(ctx, id, now)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = s.GetNotification(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotificationNotFound)
}

func TestStore_ListDueOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	low, _ := queued(t, s, model.Notification{Priority: 5})
	high, _ := queued(t, s, model.Notification{Priority: 1})

	future, err := s.CreateNotification(ctx, model.Notification{Channel: model.ChannelEmail})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, future, now.Add(time.Hour))
	require.NoError(t, err)

	due, err := s.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, high, due[0].NotificationID)
	assert.Equal(t, low, due[1].NotificationID)

	due, err = s.ListDue(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestStore_ClaimIsExclusive(t *testing.T) {
	s := NewStore()
	_, e := queued(t, s, model.Notification{})

	const workers = 16
	var (
		wins      int32
		conflicts int32
		wg        sync.WaitGroup
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.Claim(context.Background(), e.ID, fmt.Sprintf("worker-%d", i), now)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, model.ErrClaimConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, workers-1, conflicts)
}

func TestStore_CompleteSent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{})

	_, err := s.Claim(ctx, e.ID, "w", now)
	require.NoError(t, err)

	err = s.CompleteSent(ctx, e.ID, "w", model.SendResult{ProviderName: "smtp", ProviderMessageID: "abc"}, now)
	require.NoError(t, err)

	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, n.Status)
	require.NotNil(t, n.SentAt)

	found, err := s.FindByProviderMessageID(ctx, "smtp", "abc")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	err = s.CompleteSent(ctx, e.ID, "w", model.SendResult{}, now)
	assert.ErrorIs(t, err, model.ErrClaimConflict)
}

func TestStore_CompleteFailedRetryAppendsEntry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{MaxRetries: 2})

	_, err := s.Claim(ctx, e.ID, "w", now)
	require.NoError(t, err)

	retryAt := now.Add(time.Minute)
	err = s.CompleteFailed(ctx, e.ID, "w", model.FailureOutcome{Error: "timeout", Retry: true, NextAttemptAt: retryAt}, now)
	require.NoError(t, err)

	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, "timeout", n.LastError)

	entries, err := s.ListEntries(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ClaimDone, entries[0].ClaimStatus)
	assert.Equal(t, model.ClaimQueued, entries[1].ClaimStatus)
	assert.Equal(t, retryAt, entries[1].ScheduledAt)
	assert.Equal(t, 1, entries[1].Attempt)
}

func TestStore_CompleteFailedFinalize(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{MaxRetries: 2})

	_, err := s.Claim(ctx, e.ID, "w", now)
	require.NoError(t, err)

	err = s.CompleteFailed(ctx, e.ID, "w", model.FailureOutcome{Error: "invalid recipient"}, now)
	require.NoError(t, err)

	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailedFinal, n.Status)
	assert.Equal(t, 0, n.RetryCount)
	require.NotNil(t, n.FailedAt)

	entries, err := s.ListEntries(ctx, id)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_DeferKeepsRetryBudget(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{MaxRetries: 1})

	_, err := s.Claim(ctx, e.ID, "w", now)
	require.NoError(t, err)

	until := now.Add(30 * time.Second)
	require.NoError(t, s.Defer(ctx, e.ID, "w", until, now))

	n, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, n.Status)
	assert.Equal(t, 0, n.RetryCount)

	due, err := s.ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.ListDue(ctx, until, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, e.ID, due[0].ID)
}

func TestStore_ReclaimStuck(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{})

	_, err := s.Claim(ctx, e.ID, "w", now)
	require.NoError(t, err)

	n, err := s.ReclaimStuck(ctx, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.ReclaimStuck(ctx, now.Add(time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, got.Status)

	_, err = s.Claim(ctx, e.ID, "w2", now.Add(time.Minute))
	assert.NoError(t, err)
}

func TestStore_CreateAndEnqueueAtomic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := now.Add(time.Hour)

	e, err := s.CreateAndEnqueue(ctx, model.Notification{Channel: model.ChannelEmail, Recipient: "user@example.com", Body: "b"}, at)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimQueued, e.ClaimStatus)
	assert.Equal(t, at, e.ScheduledAt)

	n, err := s.GetNotification(ctx, e.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, n.Status)

	_, err = s.CreateAndEnqueue(ctx, model.Notification{ID: e.NotificationID, Channel: model.ChannelEmail, Recipient: "x@example.com"}, at)
	assert.Error(t, err)

	all, err := s.ListNotifications(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "user@example.com", all[0].Recipient)
}

func TestStore_StaleWorkerCannotFinishReclaimedEntry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{MaxRetries: 3})

	_, err := s.Claim(ctx, e.ID, "w1", now)
	require.NoError(t, err)

	reclaimed, err := s.ReclaimStuck(ctx, now.Add(time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	_, err = s.Claim(ctx, e.ID, "w2", now.Add(time.Minute))
	require.NoError(t, err)

	later := now.Add(2 * time.Minute)
	assert.ErrorIs(t, s.Defer(ctx, e.ID, "w1", later, later), model.ErrClaimConflict)
	assert.ErrorIs(t, s.CompleteFailed(ctx, e.ID, "w1", model.FailureOutcome{Error: "timeout", Retry: true, NextAttemptAt: later}, later), model.ErrClaimConflict)
	assert.ErrorIs(t, s.CompleteSent(ctx, e.ID, "w1", model.SendResult{ProviderName: "smtp", ProviderMessageID: "stale"}, later), model.ErrClaimConflict)

	_, err = s.Claim(ctx, e.ID, "w3", later)
	assert.ErrorIs(t, err, model.ErrClaimConflict)

	got, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	assert.Zero(t, got.RetryCount)

	require.NoError(t, s.CompleteSent(ctx, e.ID, "w2", model.SendResult{ProviderName: "smtp", ProviderMessageID: "m"}, later))

	got, err = s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, "m", got.ProviderMessageID)
}

func TestStore_Cancel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{})

	require.NoError(t, s.Cancel(ctx, id, now))
	require.NoError(t, s.Cancel(ctx, id, now))

	_, err := s.Claim(ctx, e.ID, "w", now)
	assert.ErrorIs(t, err, model.ErrClaimConflict)

	due, err := s.ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	other, oe := queued(t, s, model.Notification{})
	_, err = s.Claim(ctx, oe.ID, "w", now)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Cancel(ctx, other, now), model.ErrNotCancelable)

	assert.ErrorIs(t, s.Cancel(ctx, uuid.New(), now), model.ErrNotificationNotFound)
}

func TestStore_ApplyProviderEvent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, e := queued(t, s, model.Notification{})

	_, err := s.Claim(ctx, e.ID, "w", now)
	require.NoError(t, err)
	require.NoError(t, s.CompleteSent(ctx, e.ID, "w", model.SendResult{ProviderName: "smtp", ProviderMessageID: "m"}, now))

	changed, err := s.ApplyProviderEvent(ctx, id, lifecycle.Event{Kind: lifecycle.Delivered, At: now})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.ApplyProviderEvent(ctx, id, lifecycle.Event{Kind: lifecycle.Delivered, At: now})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStore_RelatedQueries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	campaign := uuid.NewString()

	var batch []model.Notification
	for i := 0; i < 3; i++ {
		batch = append(batch, model.Notification{
			Channel:       model.ChannelPush,
			Recipient:     fmt.Sprintf("token-%d", i),
			RelatedEntity: model.RelatedCampaign,
			RelatedID:     campaign,
		})
	}
	ids, err := s.CreateNotifications(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	pending, err := s.ListPendingByRelated(ctx, model.RelatedCampaign, campaign, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], pending)

	_, err = s.Enqueue(ctx, ids[0], now)
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx, model.RelatedCampaign, campaign)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.StatusPending])
	assert.Equal(t, 1, counts[model.StatusQueued])
}

func TestStore_ListNotifications(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.ListNotifications(ctx, 10, 0)
	assert.ErrorIs(t, err, model.ErrNoNotificationsFound)

	first, _ := queued(t, s, model.Notification{})
	second, _ := queued(t, s, model.Notification{})

	list, err := s.ListNotifications(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	list, err = s.ListNotifications(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first, list[0].ID)
}
