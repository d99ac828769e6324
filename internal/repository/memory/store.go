// Package memory provides an in-process notification store and dispatch queue.
//
// It has the same semantics as the Postgres repository and is used for
// single-node deployments and tests. A single mutex plays the role of the
// database transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/notify-engine/internal/lifecycle"
	"github.com/aliskhannn/notify-engine/internal/model"
)

// Store keeps notifications and their queue entries in memory.
type Store struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*model.Notification
	entries       map[uuid.UUID]*model.QueueEntry
	order         []uuid.UUID // notification ids in creation order
}

func NewStore() *Store {
	return &Store{
		notifications: make(map[uuid.UUID]*model.Notification),
		entries:       make(map[uuid.UUID]*model.QueueEntry),
	}
}

// CreateNotification stores n as Pending and returns its id.
func (s *Store) CreateNotification(_ context.Context, n model.Notification) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insert(n)
}

// CreateNotifications stores every notification as Pending in one step.
func (s *Store) CreateNotifications(_ context.Context, ns []model.Notification) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range ns {
		if n.ID != uuid.Nil {
			if _, ok := s.notifications[n.ID]; ok {
				return nil, fmt.Errorf("create notifications: duplicate id %s", n.ID)
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(ns))
	for _, n := range ns {
		id, err := s.insert(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *Store) insert(n model.Notification) (uuid.UUID, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if _, ok := s.notifications[n.ID]; ok {
		return uuid.Nil, fmt.Errorf("create notification: duplicate id %s", n.ID)
	}

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = n.CreatedAt
	n.Status = model.StatusPending

	s.notifications[n.ID] = &n
	s.order = append(s.order, n.ID)

	return n.ID, nil
}

// Enqueue moves a Pending notification to Queued and creates its first entry.
func (s *Store) Enqueue(_ context.Context, id uuid.UUID, scheduledAt time.Time) (model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return model.QueueEntry{}, model.ErrNotificationNotFound
	}

	next := *n
	if _, err := lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Enqueue, At: time.Now().UTC(), NextAttemptAt: scheduledAt}); err != nil {
		return model.QueueEntry{}, fmt.Errorf("enqueue %s: %w", id, err)
	}

	e, err := s.newEntry(&next, scheduledAt)
	if err != nil {
		return model.QueueEntry{}, err
	}
	*n = next

	return *e, nil
}

// CreateAndEnqueue stores n and its first queue entry in one step.
func (s *Store) CreateAndEnqueue(_ context.Context, n model.Notification, scheduledAt time.Time) (model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.insert(n)
	if err != nil {
		return model.QueueEntry{}, err
	}

	stored := s.notifications[id]
	next := *stored
	if _, err = lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Enqueue, At: next.CreatedAt, NextAttemptAt: scheduledAt}); err == nil {
		var e *model.QueueEntry
		if e, err = s.newEntry(&next, scheduledAt); err == nil {
			*stored = next
			return *e, nil
		}
	}

	s.remove(id)
	return model.QueueEntry{}, fmt.Errorf("enqueue %s: %w", id, err)
}

// remove drops a notification that never made it onto the queue.
func (s *Store) remove(id uuid.UUID) {
	delete(s.notifications, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// newEntry appends a queued entry, refusing a second active entry for the same notification.
func (s *Store) newEntry(n *model.Notification, scheduledAt time.Time) (*model.QueueEntry, error) {
	for _, e := range s.entries {
		if e.NotificationID == n.ID && e.ClaimStatus.IsActive() {
			return nil, fmt.Errorf("notification %s already has active entry %s", n.ID, e.ID)
		}
	}

	e := &model.QueueEntry{
		ID:             uuid.New(),
		NotificationID: n.ID,
		Priority:       n.Priority,
		ScheduledAt:    scheduledAt,
		Attempt:        n.RetryCount,
		ClaimStatus:    model.ClaimQueued,
	}
	s.entries[e.ID] = e

	return e, nil
}

// ListAttachments returns the notification's attachments.
func (s *Store) ListAttachments(_ context.Context, id uuid.UUID) ([]model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}

	return append([]model.Attachment(nil), n.Attachments...), nil
}

// GetNotification returns a copy of the notification.
func (s *Store) GetNotification(_ context.Context, id uuid.UUID) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, model.ErrNotificationNotFound
	}

	return *n, nil
}

// FindByProviderMessageID looks a notification up by the id its provider assigned.
func (s *Store) FindByProviderMessageID(_ context.Context, provider, messageID string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		n := s.notifications[id]
		if n.ProviderName == provider && n.ProviderMessageID == messageID && messageID != "" {
			return *n, nil
		}
	}

	return model.Notification{}, model.ErrNotificationNotFound
}

// ListNotifications returns notifications newest first.
func (s *Store) ListNotifications(_ context.Context, limit, offset int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset >= len(s.order) {
		return nil, model.ErrNoNotificationsFound
	}

	out := make([]model.Notification, 0, limit)
	for i := len(s.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.notifications[s.order[i]])
	}

	if len(out) == 0 {
		return nil, model.ErrNoNotificationsFound
	}

	return out, nil
}

// ListEntries returns every queue entry of a notification, oldest attempt first.
func (s *Store) ListEntries(_ context.Context, notificationID uuid.UUID) ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.QueueEntry
	for _, e := range s.entries {
		if e.NotificationID == notificationID {
			out = append(out, *e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempt != out[j].Attempt {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})

	return out, nil
}

// ListDue returns queued entries scheduled at or before now, most urgent first.
func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []model.QueueEntry
	for _, e := range s.entries {
		if e.ClaimStatus == model.ClaimQueued && !e.ScheduledAt.After(now) {
			due = append(due, *e)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// Claim atomically moves a queued entry to processing on behalf of workerID.
// It returns model.ErrClaimConflict when the entry is no longer queued.
func (s *Store) Claim(_ context.Context, entryID uuid.UUID, workerID string, now time.Time) (model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return model.QueueEntry{}, model.ErrEntryNotFound
	}
	if e.ClaimStatus != model.ClaimQueued {
		return model.QueueEntry{}, model.ErrClaimConflict
	}

	n := s.notifications[e.NotificationID]
	next := *n
	if _, err := lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Claim, At: now}); err != nil {
		return model.QueueEntry{}, fmt.Errorf("claim %s: %w", entryID, err)
	}
	*n = next

	claimedAt := now
	e.ClaimStatus = model.ClaimProcessing
	e.ClaimedBy = workerID
	e.ClaimedAt = &claimedAt

	return *e, nil
}

// processing returns the entry and its notification if workerID still holds the claim.
func (s *Store) processing(entryID uuid.UUID, workerID string) (*model.QueueEntry, *model.Notification, error) {
	e, ok := s.entries[entryID]
	if !ok {
		return nil, nil, model.ErrEntryNotFound
	}
	if e.ClaimStatus != model.ClaimProcessing || e.ClaimedBy != workerID {
		return nil, nil, model.ErrClaimConflict
	}

	return e, s.notifications[e.NotificationID], nil
}

// CompleteSent closes the entry and records the provider acceptance.
func (s *Store) CompleteSent(_ context.Context, entryID uuid.UUID, workerID string, res model.SendResult, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, n, err := s.processing(entryID, workerID)
	if err != nil {
		return err
	}

	next := *n
	_, err = lifecycle.Apply(&next, lifecycle.Event{
		Kind:              lifecycle.Sent,
		At:                now,
		ProviderName:      res.ProviderName,
		ProviderMessageID: res.ProviderMessageID,
		Subject:           res.Subject,
		Body:              res.Body,
	})
	if err != nil {
		return fmt.Errorf("complete sent %s: %w", entryID, err)
	}
	*n = next

	done(e, now)
	return nil
}

// CompleteFailed records a failed attempt, then either appends a retry entry
// or finalizes the notification, all in one step.
func (s *Store) CompleteFailed(_ context.Context, entryID uuid.UUID, workerID string, out model.FailureOutcome, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, n, err := s.processing(entryID, workerID)
	if err != nil {
		return err
	}

	next := *n
	if _, err := lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Fail, At: now, Error: out.Error}); err != nil {
		return fmt.Errorf("complete failed %s: %w", entryID, err)
	}

	if out.Retry {
		if _, err := lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Retry, At: now, NextAttemptAt: out.NextAttemptAt}); err != nil {
			return fmt.Errorf("retry %s: %w", entryID, err)
		}
	} else {
		if _, err := lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Finalize, At: now}); err != nil {
			return fmt.Errorf("finalize %s: %w", entryID, err)
		}
	}

	done(e, now)

	if out.Retry {
		if _, err := s.newEntry(&next, out.NextAttemptAt); err != nil {
			e.ClaimStatus = model.ClaimProcessing
			e.CompletedAt = nil
			return err
		}
	}
	*n = next

	return nil
}

// Defer hands a claimed entry back to the queue without consuming retry budget.
func (s *Store) Defer(_ context.Context, entryID uuid.UUID, workerID string, until, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, n, err := s.processing(entryID, workerID)
	if err != nil {
		return err
	}

	next := *n
	if _, err := lifecycle.Apply(&next, lifecycle.Event{Kind: lifecycle.Release, At: now, NextAttemptAt: until}); err != nil {
		return fmt.Errorf("defer %s: %w", entryID, err)
	}
	*n = next

	release(e, until)
	return nil
}

// ReclaimStuck returns entries claimed before cutoff to the queue.
func (s *Store) ReclaimStuck(_ context.Context, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if e.ClaimStatus != model.ClaimProcessing || e.ClaimedAt == nil || !e.ClaimedAt.Before(cutoff) {
			continue
		}

		n := s.notifications[e.NotificationID]
		if _, err := lifecycle.Apply(n, lifecycle.Event{Kind: lifecycle.Release, At: now, NextAttemptAt: now}); err != nil {
			return count, fmt.Errorf("reclaim %s: %w", e.ID, err)
		}

		release(e, now)
		count++
	}

	return count, nil
}

// Cancel cancels a Pending or Queued notification and abandons its queued entry.
func (s *Store) Cancel(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return model.ErrNotificationNotFound
	}

	changed, err := lifecycle.Apply(n, lifecycle.Event{Kind: lifecycle.Cancel, At: now})
	if err != nil || !changed {
		return err
	}

	for _, e := range s.entries {
		if e.NotificationID == id && e.ClaimStatus == model.ClaimQueued {
			e.ClaimStatus = model.ClaimAbandoned
			completed := now
			e.CompletedAt = &completed
		}
	}

	return nil
}

// ApplyProviderEvent advances a notification from a webhook event.
// It reports false when the event was a replay or out of order.
func (s *Store) ApplyProviderEvent(_ context.Context, id uuid.UUID, ev lifecycle.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return false, model.ErrNotificationNotFound
	}

	return lifecycle.Apply(n, ev)
}

// ListPendingByRelated returns up to limit Pending notification ids for the related object.
func (s *Store) ListPendingByRelated(_ context.Context, entity, relatedID string, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for _, id := range s.order {
		if len(ids) >= limit {
			break
		}
		n := s.notifications[id]
		if n.Status == model.StatusPending && n.RelatedEntity == entity && n.RelatedID == relatedID {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// CountByStatus summarizes notification statuses for the related object.
func (s *Store) CountByStatus(_ context.Context, entity, relatedID string) (map[model.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.Status]int)
	for _, n := range s.notifications {
		if n.RelatedEntity == entity && n.RelatedID == relatedID {
			counts[n.Status]++
		}
	}

	return counts, nil
}

func done(e *model.QueueEntry, now time.Time) {
	completed := now
	e.ClaimStatus = model.ClaimDone
	e.CompletedAt = &completed
}

func release(e *model.QueueEntry, scheduledAt time.Time) {
	e.ClaimStatus = model.ClaimQueued
	e.ClaimedBy = ""
	e.ClaimedAt = nil
	e.ScheduledAt = scheduledAt
}
