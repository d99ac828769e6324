package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/metrics"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/render"
)

type notificationStore interface {
	CreateNotifications(ctx context.Context, ns []model.Notification) ([]uuid.UUID, error)
	Enqueue(ctx context.Context, id uuid.UUID, scheduledAt time.Time) (model.QueueEntry, error)
	ListPendingByRelated(ctx context.Context, entity, relatedID string, limit int) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, entity, relatedID string) (map[model.Status]int, error)
}

type campaignStore interface {
	CreateCampaign(ctx context.Context, c model.Campaign) (uuid.UUID, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (model.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error)
	UpdateCampaign(ctx context.Context, id uuid.UUID, status model.CampaignStatus, stats model.CampaignStats) error
	DeleteCampaign(ctx context.Context, id uuid.UUID) error
}

type templateSource interface {
	Template(id string) (model.Template, error)
}

type router interface {
	Resolve(ch model.Channel) (channel.Route, error)
}

// Config tunes the campaign pump.
type Config struct {
	EnqueuePerSecond int           // pump throughput across all campaigns
	StatsInterval    time.Duration // how often stats are recomputed
	MaxRetries       int           // retry budget of every campaign notification
}

// Service creates campaigns and feeds their notifications to the dispatch queue.
type Service struct {
	notifications notificationStore
	campaigns     campaignStore
	templates     templateSource
	routes        router
	validate      *validator.Validate
	cfg           Config
	now           func() time.Time
}

// NewService creates a campaign service. EnqueuePerSecond defaults to 100
// and StatsInterval to 10s.
func NewService(ns notificationStore, cs campaignStore, templates templateSource, routes router, cfg Config) *Service {
	if cfg.EnqueuePerSecond <= 0 {
		cfg.EnqueuePerSecond = 100
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 10 * time.Second
	}

	return &Service{
		notifications: ns,
		campaigns:     cs,
		templates:     templates,
		routes:        routes,
		validate:      validator.New(),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// EnqueueCampaign validates the audience, stores the campaign with one Pending
// notification per recipient and returns without waiting for them to be queued.
func (s *Service) EnqueueCampaign(ctx context.Context, templateID string, recipients []model.Recipient, priority int) (uuid.UUID, error) {
	if len(recipients) == 0 {
		return uuid.Nil, fmt.Errorf("%w: campaign has no recipients", model.ErrValidation)
	}

	t, err := s.templates.Template(templateID)
	if err != nil {
		return uuid.Nil, err
	}

	route, err := s.routes.Resolve(t.Channel)
	if err != nil {
		if errors.Is(err, channel.ErrNoBinding) {
			return uuid.Nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		return uuid.Nil, err
	}

	for i, r := range recipients {
		if err := s.validate.Struct(r); err != nil {
			return uuid.Nil, fmt.Errorf("%w: recipient %d: %v", model.ErrValidation, i, err)
		}
		if err := route.Adapter.ValidateRecipient(r.Address); err != nil {
			return uuid.Nil, fmt.Errorf("%w: recipient %d: %v", model.ErrValidation, i, err)
		}
		if err := render.CheckRequired(t, r.Variables); err != nil {
			return uuid.Nil, fmt.Errorf("recipient %d: %w", i, err)
		}
	}

	id, err := s.campaigns.CreateCampaign(ctx, model.Campaign{
		ID:         uuid.New(),
		TemplateID: t.ID,
		Channel:    t.Channel,
		Priority:   priority,
		Status:     model.CampaignEnqueuing,
		Total:      len(recipients),
		Stats:      model.CampaignStats{Pending: len(recipients)},
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create campaign: %w", err)
	}

	ns := make([]model.Notification, 0, len(recipients))
	for _, r := range recipients {
		ns = append(ns, model.Notification{
			Channel:           t.Channel,
			Recipient:         r.Address,
			Priority:          priority,
			MaxRetries:        s.cfg.MaxRetries,
			TemplateID:        t.ID,
			TemplateVariables: r.Variables,
			RelatedEntity:     model.RelatedCampaign,
			RelatedID:         id.String(),
		})
	}

	if _, err := s.notifications.CreateNotifications(ctx, ns); err != nil {
		// CreateNotifications is all-or-nothing, so only the campaign row is left over.
		if delErr := s.campaigns.DeleteCampaign(context.WithoutCancel(ctx), id); delErr != nil {
			zlog.Logger.Error().Err(delErr).Str("campaign_id", id.String()).Msg("failed to remove campaign without notifications")
		}
		return uuid.Nil, fmt.Errorf("create campaign %s notifications: %w", id, err)
	}

	zlog.Logger.Info().
		Str("campaign_id", id.String()).
		Str("template_id", t.ID).
		Int("recipients", len(recipients)).
		Msg("campaign created")

	return id, nil
}

// GetCampaign returns the campaign with freshly computed stats.
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (model.Campaign, error) {
	c, err := s.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return model.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}

	counts, err := s.notifications.CountByStatus(ctx, model.RelatedCampaign, id.String())
	if err != nil {
		return model.Campaign{}, fmt.Errorf("count campaign %s notifications: %w", id, err)
	}
	c.Stats = model.StatsFromCounts(counts)

	return c, nil
}

// Run pumps Pending campaign notifications into the queue once per second and
// refreshes campaign stats every StatsInterval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	pump := time.NewTicker(time.Second)
	defer pump.Stop()

	stats := time.NewTicker(s.cfg.StatsInterval)
	defer stats.Stop()

	zlog.Logger.Print("campaign pump started")

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Print("campaign pump stopped")
			return
		case <-pump.C:
			if _, err := s.Pump(ctx); err != nil && ctx.Err() == nil {
				zlog.Logger.Error().Err(err).Msg("campaign pump failed")
			}
		case <-stats.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				zlog.Logger.Error().Err(err).Msg("campaign stats refresh failed")
			}
		}
	}
}

func (s *Service) active(ctx context.Context) ([]model.Campaign, error) {
	cs, err := s.campaigns.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Priority != cs[j].Priority {
			return cs[i].Priority < cs[j].Priority
		}
		return cs[i].CreatedAt.Before(cs[j].CreatedAt)
	})

	return cs, nil
}

// Pump enqueues up to EnqueuePerSecond Pending notifications, most urgent
// campaign first. It works only from Pending rows, so it resumes after a crash.
func (s *Service) Pump(ctx context.Context) (int, error) {
	cs, err := s.active(ctx)
	if err != nil {
		return 0, err
	}

	budget := s.cfg.EnqueuePerSecond
	enqueued := 0

	for _, c := range cs {
		if c.Status != model.CampaignEnqueuing {
			continue
		}
		if budget == 0 {
			break
		}

		ids, err := s.notifications.ListPendingByRelated(ctx, model.RelatedCampaign, c.ID.String(), budget)
		if err != nil {
			return enqueued, fmt.Errorf("list pending notifications of campaign %s: %w", c.ID, err)
		}

		for _, id := range ids {
			if _, err := s.notifications.Enqueue(ctx, id, s.now()); err != nil {
				zlog.Logger.Error().Err(err).
					Str("campaign_id", c.ID.String()).
					Str("notification_id", id.String()).
					Msg("failed to enqueue campaign notification")
				continue
			}
			enqueued++
		}
		budget -= len(ids)

		if len(ids) == 0 {
			if err := s.update(ctx, c, model.CampaignEnqueued); err != nil {
				return enqueued, err
			}
			zlog.Logger.Info().Str("campaign_id", c.ID.String()).Msg("campaign fully enqueued")
		}
	}

	metrics.CampaignEnqueued.Add(float64(enqueued))
	return enqueued, nil
}

// Refresh recomputes the stats of every active campaign and completes the
// ones with nothing left in flight.
func (s *Service) Refresh(ctx context.Context) error {
	cs, err := s.active(ctx)
	if err != nil {
		return err
	}

	for _, c := range cs {
		if err := s.update(ctx, c, c.Status); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) update(ctx context.Context, c model.Campaign, status model.CampaignStatus) error {
	counts, err := s.notifications.CountByStatus(ctx, model.RelatedCampaign, c.ID.String())
	if err != nil {
		return fmt.Errorf("count campaign %s notifications: %w", c.ID, err)
	}

	stats := model.StatsFromCounts(counts)
	if status == model.CampaignEnqueued && stats.InFlight() == 0 {
		status = model.CampaignCompleted
		zlog.Logger.Info().
			Str("campaign_id", c.ID.String()).
			Int("sent", stats.Sent+stats.Delivered+stats.Read).
			Int("failed", stats.Failed).
			Msg("campaign completed")
	}

	if err := s.campaigns.UpdateCampaign(ctx, c.ID, status, stats); err != nil {
		return fmt.Errorf("update campaign %s: %w", c.ID, err)
	}

	return nil
}
