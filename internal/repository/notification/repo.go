package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/notify-engine/internal/lifecycle"
	"github.com/aliskhannn/notify-engine/internal/model"
)

const notificationColumns = `id, channel, recipient, subject, body, status, priority, retry_count, max_retries,
		next_attempt_at, provider_name, provider_message_id, template_id, template_variables,
		related_entity, related_id, last_error, created_at, updated_at,
		sent_at, delivered_at, read_at, failed_at`

const (
	insertNotificationQuery = `
		INSERT INTO notifications (
		    id, channel, recipient, subject, body, status, priority, retry_count, max_retries,
		    next_attempt_at, template_id, template_variables, related_entity, related_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
    `

	selectNotificationQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1;
    `

	lockNotificationQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1
		FOR UPDATE;
    `

	lockNotificationsQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = ANY($1::uuid[])
		FOR UPDATE;
    `

	saveNotificationQuery = `
		UPDATE notifications
		SET status = $2, retry_count = $3, next_attempt_at = $4, provider_name = $5,
		    provider_message_id = $6, subject = $7, body = $8, last_error = $9, updated_at = $10,
		    sent_at = $11, delivered_at = $12, read_at = $13, failed_at = $14
		WHERE id = $1;
    `

	findByProviderMessageQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE provider_name = $1 AND provider_message_id = $2
		ORDER BY created_at DESC
		LIMIT 1;
    `

	listNotificationsQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
    `

	listPendingByRelatedQuery = `
		SELECT id
		FROM notifications
		WHERE related_entity = $1 AND related_id = $2 AND status = 'pending'
		ORDER BY created_at
		LIMIT $3;
    `

	insertAttachmentQuery = `
		INSERT INTO notification_attachments (notification_id, position, filename, content_type, content)
		VALUES ($1, $2, $3, $4, $5);
    `

	listAttachmentsQuery = `
		SELECT filename, content_type, content
		FROM notification_attachments
		WHERE notification_id = $1
		ORDER BY position;
    `

	countByStatusQuery = `
		SELECT status, COUNT(*)
		FROM notifications
		WHERE related_entity = $1 AND related_id = $2
		GROUP BY status;
    `
)

// Repository stores notifications and their dispatch queue in Postgres.
//
// Reads that must observe the latest committed state go to the master;
// listings may be served by replicas.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (model.Notification, error) {
	var (
		n    model.Notification
		vars []byte
	)

	err := row.Scan(
		&n.ID, &n.Channel, &n.Recipient, &n.Subject, &n.Body, &n.Status, &n.Priority, &n.RetryCount, &n.MaxRetries,
		&n.NextAttemptAt, &n.ProviderName, &n.ProviderMessageID, &n.TemplateID, &vars,
		&n.RelatedEntity, &n.RelatedID, &n.LastError, &n.CreatedAt, &n.UpdatedAt,
		&n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.FailedAt,
	)
	if err != nil {
		return model.Notification{}, err
	}

	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &n.TemplateVariables); err != nil {
			return model.Notification{}, fmt.Errorf("decode template variables: %w", err)
		}
	}

	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, db execer, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.UpdatedAt = n.CreatedAt
	n.Status = model.StatusPending

	var vars []byte
	if len(n.TemplateVariables) > 0 {
		var err error
		if vars, err = json.Marshal(n.TemplateVariables); err != nil {
			return fmt.Errorf("encode template variables: %w", err)
		}
	}

	_, err := db.ExecContext(
		ctx, insertNotificationQuery,
		n.ID, n.Channel, n.Recipient, n.Subject, n.Body, n.Status, n.Priority, n.RetryCount, n.MaxRetries,
		n.NextAttemptAt, n.TemplateID, vars, n.RelatedEntity, n.RelatedID, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for i, a := range n.Attachments {
		if _, err := db.ExecContext(ctx, insertAttachmentQuery, n.ID, i, a.Filename, a.ContentType, a.Content); err != nil {
			return fmt.Errorf("insert attachment %s: %w", a.Filename, err)
		}
	}

	return nil
}

// CreateNotification inserts a Pending notification and its attachments and
// returns its id.
func (r *Repository) CreateNotification(ctx context.Context, n model.Notification) (uuid.UUID, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		return insertNotification(ctx, tx, &n)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return n.ID, nil
}

// ListAttachments returns the notification's attachments in the order they were given.
func (r *Repository) ListAttachments(ctx context.Context, id uuid.UUID) ([]model.Attachment, error) {
	rows, err := r.db.Master.QueryContext(ctx, listAttachmentsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.Filename, &a.ContentType, &a.Content); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// CreateNotifications inserts all notifications in one transaction.
func (r *Repository) CreateNotifications(ctx context.Context, ns []model.Notification) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(ns))

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for i := range ns {
			n := ns[i]
			if err := insertNotification(ctx, tx, &n); err != nil {
				return err
			}
			ids = append(ids, n.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications: %w", err)
	}

	return ids, nil
}

// GetNotification reads a notification from the master.
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	n, err := scanNotification(r.db.Master.QueryRowContext(ctx, selectNotificationQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, model.ErrNotificationNotFound
		}

		return model.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// FindByProviderMessageID looks a notification up by the id its provider assigned.
func (r *Repository) FindByProviderMessageID(ctx context.Context, provider, messageID string) (model.Notification, error) {
	n, err := scanNotification(r.db.Master.QueryRowContext(ctx, findByProviderMessageQuery, provider, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, model.ErrNotificationNotFound
		}

		return model.Notification{}, fmt.Errorf("failed to find notification by provider message id: %w", err)
	}

	return n, nil
}

// ListNotifications returns notifications newest first.
func (r *Repository) ListNotifications(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx, listNotificationsQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	if len(notifications) == 0 {
		return nil, model.ErrNoNotificationsFound
	}

	return notifications, nil
}

// ApplyProviderEvent advances a notification from a webhook event under a row lock.
// It reports false when the event was a replay or out of order.
func (r *Repository) ApplyProviderEvent(ctx context.Context, id uuid.UUID, ev lifecycle.Event) (bool, error) {
	var changed bool

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		changed, err = transition(ctx, tx, id, ev)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("apply provider event: %w", err)
	}

	return changed, nil
}

// Cancel cancels a Pending or Queued notification and abandons its queued entry.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		changed, err := transition(ctx, tx, id, lifecycle.Event{Kind: lifecycle.Cancel, At: now})
		if err != nil || !changed {
			return err
		}

		_, err = tx.ExecContext(ctx, abandonEntriesQuery, id, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("cancel notification: %w", err)
	}

	return nil
}

// ListPendingByRelated returns up to limit Pending notification ids for the related object.
func (r *Repository) ListPendingByRelated(ctx context.Context, entity, relatedID string, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Master.QueryContext(ctx, listPendingByRelatedQuery, entity, relatedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountByStatus summarizes notification statuses for the related object.
func (r *Repository) CountByStatus(ctx context.Context, entity, relatedID string) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, countByStatusQuery, entity, relatedID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var (
			status model.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func lockNotification(ctx context.Context, tx *sql.Tx, id uuid.UUID) (model.Notification, error) {
	n, err := scanNotification(tx.QueryRowContext(ctx, lockNotificationQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, model.ErrNotificationNotFound
		}
		return model.Notification{}, err
	}

	return n, nil
}

func lockNotifications(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) ([]model.Notification, error) {
	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, id.String())
	}

	rows, err := tx.QueryContext(ctx, lockNotificationsQuery, pq.Array(strIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	return out, rows.Err()
}

func saveNotification(ctx context.Context, tx *sql.Tx, n model.Notification) error {
	_, err := tx.ExecContext(
		ctx, saveNotificationQuery,
		n.ID, n.Status, n.RetryCount, n.NextAttemptAt, n.ProviderName,
		n.ProviderMessageID, n.Subject, n.Body, n.LastError, n.UpdatedAt,
		n.SentAt, n.DeliveredAt, n.ReadAt, n.FailedAt,
	)
	return err
}

// transition locks the notification, applies ev and writes it back if it changed.
func transition(ctx context.Context, tx *sql.Tx, id uuid.UUID, ev lifecycle.Event) (bool, error) {
	n, err := lockNotification(ctx, tx, id)
	if err != nil {
		return false, err
	}

	changed, err := lifecycle.Apply(&n, ev)
	if err != nil || !changed {
		return false, err
	}

	return true, saveNotification(ctx, tx, n)
}
