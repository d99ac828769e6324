package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aliskhannn/notify-engine/internal/lifecycle"
	"github.com/aliskhannn/notify-engine/internal/model"
)

// uniqueViolation is the Postgres error code raised by uq_queue_entries_active.
const uniqueViolation = "23505"

const (
	insertEntryQuery = `
		INSERT INTO queue_entries (id, notification_id, priority, scheduled_at, attempt, claim_status)
		VALUES ($1, $2, $3, $4, $5, 'queued');
    `

	listDueQuery = `
		SELECT id, notification_id, priority, scheduled_at, attempt, claim_status
		FROM queue_entries
		WHERE claim_status = 'queued' AND scheduled_at <= $1
		ORDER BY priority ASC, scheduled_at ASC
		LIMIT $2;
    `

	listEntriesQuery = `
		SELECT id, notification_id, priority, scheduled_at, attempt, claim_status, claimed_by, claimed_at, completed_at
		FROM queue_entries
		WHERE notification_id = $1
		ORDER BY attempt, scheduled_at;
    `

	claimEntryQuery = `
		UPDATE queue_entries
		SET claim_status = 'processing', claimed_by = $2, claimed_at = $3
		WHERE id = $1 AND claim_status = 'queued'
		RETURNING notification_id, priority, scheduled_at, attempt;
    `

	completeEntryQuery = `
		UPDATE queue_entries
		SET claim_status = 'done', completed_at = $2
		WHERE id = $1 AND claim_status = 'processing' AND claimed_by = $3
		RETURNING notification_id;
    `

	releaseEntryQuery = `
		UPDATE queue_entries
		SET claim_status = 'queued', claimed_by = '', claimed_at = NULL, scheduled_at = $2
		WHERE id = $1 AND claim_status = 'processing' AND claimed_by = $3
		RETURNING notification_id;
    `

	reclaimStuckQuery = `
		UPDATE queue_entries
		SET claim_status = 'queued', claimed_by = '', claimed_at = NULL, scheduled_at = $2
		WHERE claim_status = 'processing' AND claimed_at < $1
		RETURNING notification_id;
    `

	abandonEntriesQuery = `
		UPDATE queue_entries
		SET claim_status = 'abandoned', completed_at = $2
		WHERE notification_id = $1 AND claim_status = 'queued';
    `
)

func insertEntry(ctx context.Context, tx *sql.Tx, n model.Notification, scheduledAt time.Time) (model.QueueEntry, error) {
	e := model.QueueEntry{
		ID:             uuid.New(),
		NotificationID: n.ID,
		Priority:       n.Priority,
		ScheduledAt:    scheduledAt,
		Attempt:        n.RetryCount,
		ClaimStatus:    model.ClaimQueued,
	}

	_, err := tx.ExecContext(ctx, insertEntryQuery, e.ID, e.NotificationID, e.Priority, e.ScheduledAt, e.Attempt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.QueueEntry{}, fmt.Errorf("notification %s already has an active entry: %w", n.ID, err)
		}
		return model.QueueEntry{}, err
	}

	return e, nil
}

// Enqueue moves a Pending notification to Queued and creates its first entry.
func (r *Repository) Enqueue(ctx context.Context, id uuid.UUID, scheduledAt time.Time) (model.QueueEntry, error) {
	var entry model.QueueEntry

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		n, err := lockNotification(ctx, tx, id)
		if err != nil {
			return err
		}

		ev := lifecycle.Event{Kind: lifecycle.Enqueue, At: time.Now().UTC(), NextAttemptAt: scheduledAt}
		if _, err := lifecycle.Apply(&n, ev); err != nil {
			return err
		}

		if err := saveNotification(ctx, tx, n); err != nil {
			return err
		}

		entry, err = insertEntry(ctx, tx, n, scheduledAt)
		return err
	})
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("enqueue notification: %w", err)
	}

	return entry, nil
}

// CreateAndEnqueue inserts n and its first queue entry in one transaction, so
// a failure leaves no Pending notification behind.
func (r *Repository) CreateAndEnqueue(ctx context.Context, n model.Notification, scheduledAt time.Time) (model.QueueEntry, error) {
	var entry model.QueueEntry

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertNotification(ctx, tx, &n); err != nil {
			return err
		}

		ev := lifecycle.Event{Kind: lifecycle.Enqueue, At: n.CreatedAt, NextAttemptAt: scheduledAt}
		if _, err := lifecycle.Apply(&n, ev); err != nil {
			return err
		}

		if err := saveNotification(ctx, tx, n); err != nil {
			return err
		}

		var err error
		entry, err = insertEntry(ctx, tx, n, scheduledAt)
		return err
	})
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("create and enqueue notification: %w", err)
	}

	return entry, nil
}

// ListDue returns queued entries scheduled at or before now, most urgent first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error) {
	rows, err := r.db.Master.QueryContext(ctx, listDueQuery, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		if err := rows.Scan(&e.ID, &e.NotificationID, &e.Priority, &e.ScheduledAt, &e.Attempt, &e.ClaimStatus); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ListEntries returns every queue entry of a notification, oldest attempt first.
func (r *Repository) ListEntries(ctx context.Context, notificationID uuid.UUID) ([]model.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, listEntriesQuery, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		err := rows.Scan(
			&e.ID, &e.NotificationID, &e.Priority, &e.ScheduledAt, &e.Attempt,
			&e.ClaimStatus, &e.ClaimedBy, &e.ClaimedAt, &e.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Claim moves a queued entry to processing with a single conditional update.
// Losing the race yields model.ErrClaimConflict.
func (r *Repository) Claim(ctx context.Context, entryID uuid.UUID, workerID string, now time.Time) (model.QueueEntry, error) {
	e := model.QueueEntry{ID: entryID, ClaimStatus: model.ClaimProcessing, ClaimedBy: workerID, ClaimedAt: &now}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, claimEntryQuery, entryID, workerID, now).
			Scan(&e.NotificationID, &e.Priority, &e.ScheduledAt, &e.Attempt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrClaimConflict
			}
			return err
		}

		_, err = transition(ctx, tx, e.NotificationID, lifecycle.Event{Kind: lifecycle.Claim, At: now})
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrClaimConflict) {
			return model.QueueEntry{}, model.ErrClaimConflict
		}
		return model.QueueEntry{}, fmt.Errorf("claim entry %s: %w", entryID, err)
	}

	return e, nil
}

// finishEntry runs query against an entry still claimed by workerID and returns
// its notification id. A reclaimed or foreign claim yields model.ErrClaimConflict.
func finishEntry(ctx context.Context, tx *sql.Tx, query string, entryID uuid.UUID, workerID string, at time.Time) (uuid.UUID, error) {
	var notificationID uuid.UUID

	err := tx.QueryRowContext(ctx, query, entryID, at, workerID).Scan(&notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, model.ErrClaimConflict
		}
		return uuid.Nil, err
	}

	return notificationID, nil
}

// CompleteSent closes the entry and records the provider acceptance.
func (r *Repository) CompleteSent(ctx context.Context, entryID uuid.UUID, workerID string, res model.SendResult, now time.Time) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		notificationID, err := finishEntry(ctx, tx, completeEntryQuery, entryID, workerID, now)
		if err != nil {
			return err
		}

		_, err = transition(ctx, tx, notificationID, lifecycle.Event{
			Kind:              lifecycle.Sent,
			At:                now,
			ProviderName:      res.ProviderName,
			ProviderMessageID: res.ProviderMessageID,
			Subject:           res.Subject,
			Body:              res.Body,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("complete sent %s: %w", entryID, err)
	}

	return nil
}

// CompleteFailed records a failed attempt, then either appends a retry entry
// or finalizes the notification, in one transaction.
func (r *Repository) CompleteFailed(ctx context.Context, entryID uuid.UUID, workerID string, out model.FailureOutcome, now time.Time) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		notificationID, err := finishEntry(ctx, tx, completeEntryQuery, entryID, workerID, now)
		if err != nil {
			return err
		}

		n, err := lockNotification(ctx, tx, notificationID)
		if err != nil {
			return err
		}

		if _, err := lifecycle.Apply(&n, lifecycle.Event{Kind: lifecycle.Fail, At: now, Error: out.Error}); err != nil {
			return err
		}

		next := lifecycle.Event{Kind: lifecycle.Finalize, At: now}
		if out.Retry {
			next = lifecycle.Event{Kind: lifecycle.Retry, At: now, NextAttemptAt: out.NextAttemptAt}
		}
		if _, err := lifecycle.Apply(&n, next); err != nil {
			return err
		}

		if err := saveNotification(ctx, tx, n); err != nil {
			return err
		}

		if out.Retry {
			_, err = insertEntry(ctx, tx, n, out.NextAttemptAt)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("complete failed %s: %w", entryID, err)
	}

	return nil
}

// Defer hands a claimed entry back to the queue without consuming retry budget.
func (r *Repository) Defer(ctx context.Context, entryID uuid.UUID, workerID string, until, now time.Time) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		notificationID, err := finishEntry(ctx, tx, releaseEntryQuery, entryID, workerID, until)
		if err != nil {
			return err
		}

		_, err = transition(ctx, tx, notificationID, lifecycle.Event{Kind: lifecycle.Release, At: now, NextAttemptAt: until})
		return err
	})
	if err != nil {
		return fmt.Errorf("defer entry %s: %w", entryID, err)
	}

	return nil
}

// ReclaimStuck returns entries claimed before cutoff to the queue and
// releases their notifications. It returns how many were reclaimed.
func (r *Repository) ReclaimStuck(ctx context.Context, cutoff, now time.Time) (int, error) {
	var count int

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, reclaimStuckQuery, cutoff, now)
		if err != nil {
			return err
		}

		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		ns, err := lockNotifications(ctx, tx, ids)
		if err != nil {
			return err
		}

		for _, n := range ns {
			if _, err := lifecycle.Apply(&n, lifecycle.Event{Kind: lifecycle.Release, At: now, NextAttemptAt: now}); err != nil {
				return err
			}
			if err := saveNotification(ctx, tx, n); err != nil {
				return err
			}
		}

		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck entries: %w", err)
	}

	return count, nil
}
