package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/render"
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/notification/mock.go -package=mocks

type notificationRepository interface {
	CreateAndEnqueue(ctx context.Context, n model.Notification, scheduledAt time.Time) (model.QueueEntry, error)
	GetNotification(ctx context.Context, id uuid.UUID) (model.Notification, error)
	ListNotifications(ctx context.Context, limit, offset int) ([]model.Notification, error)
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) error
}

type templateSource interface {
	Template(id string) (model.Template, error)
}

type router interface {
	Resolve(ch model.Channel) (channel.Route, error)
}

// Service validates send requests and hands them to storage.
type Service struct {
	repo              notificationRepository
	templates         templateSource
	routes            router
	defaultMaxRetries int
	now               func() time.Time
}

func NewService(repo notificationRepository, templates templateSource, routes router, defaultMaxRetries int) *Service {
	return &Service{
		repo:              repo,
		templates:         templates,
		routes:            routes,
		defaultMaxRetries: defaultMaxRetries,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue validates req, stores the notification and puts it on the dispatch queue.
func (s *Service) Enqueue(ctx context.Context, req model.SendRequest) (uuid.UUID, error) {
	if err := s.validate(req); err != nil {
		return uuid.Nil, err
	}

	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	n := model.Notification{
		Channel:           req.Channel,
		Recipient:         req.Recipient,
		Subject:           req.Subject,
		Body:              req.Body,
		Priority:          req.Priority,
		MaxRetries:        maxRetries,
		TemplateID:        req.TemplateID,
		TemplateVariables: req.Variables,
		RelatedEntity:     req.RelatedEntity,
		RelatedID:         req.RelatedID,
		Attachments:       req.Attachments,
	}

	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}

	e, err := s.repo.CreateAndEnqueue(ctx, n, scheduledAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue notification: %w", err)
	}
	id := e.NotificationID

	zlog.Logger.Info().
		Str("notification_id", id.String()).
		Str("channel", string(req.Channel)).
		Time("scheduled_at", scheduledAt).
		Msg("notification enqueued")

	return id, nil
}

func (s *Service) validate(req model.SendRequest) error {
	if !req.Channel.IsValid() {
		return fmt.Errorf("%w: unknown channel %q", model.ErrValidation, req.Channel)
	}

	route, err := s.routes.Resolve(req.Channel)
	if err != nil {
		if errors.Is(err, channel.ErrNoBinding) {
			return fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		return err
	}

	if err := route.Adapter.ValidateRecipient(req.Recipient); err != nil {
		return fmt.Errorf("%w: recipient: %v", model.ErrValidation, err)
	}

	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", model.ErrValidation)
	}

	if len(req.Attachments) > 0 && req.Channel != model.ChannelEmail {
		return fmt.Errorf("%w: attachments are only supported for email", model.ErrValidation)
	}
	for i, a := range req.Attachments {
		if a.Filename == "" || len(a.Content) == 0 {
			return fmt.Errorf("%w: attachment %d needs a filename and content", model.ErrValidation, i)
		}
	}

	if req.TemplateID == "" {
		if req.Body == "" {
			return fmt.Errorf("%w: either template_id or body is required", model.ErrValidation)
		}
		return nil
	}

	t, err := s.templates.Template(req.TemplateID)
	if err != nil {
		return err
	}
	if t.Channel != req.Channel {
		return fmt.Errorf("%w: template %s is for channel %s", model.ErrValidation, t.ID, t.Channel)
	}

	return render.CheckRequired(t, req.Variables)
}

// Cancel stops a notification that has not been claimed by a worker yet.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Cancel(ctx, id, s.now()); err != nil {
		return fmt.Errorf("cancel notification %s: %w", id, err)
	}

	zlog.Logger.Info().Str("notification_id", id.String()).Msg("notification cancelled")
	return nil
}

// GetStatus returns the latest committed state of the notification.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return model.Notification{}, fmt.Errorf("get notification: %w", err)
	}

	return n, nil
}

// List returns notifications newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	ns, err := s.repo.ListNotifications(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return ns, nil
}
