package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/config"
	"github.com/aliskhannn/notify-engine/internal/lifecycle"
	"github.com/aliskhannn/notify-engine/internal/model"
	campaignrepo "github.com/aliskhannn/notify-engine/internal/repository/campaign"
	"github.com/aliskhannn/notify-engine/internal/repository/memory"
	notifrepo "github.com/aliskhannn/notify-engine/internal/repository/notification"
	"github.com/aliskhannn/notify-engine/pkg/email"
	"github.com/aliskhannn/notify-engine/pkg/push"
	"github.com/aliskhannn/notify-engine/pkg/twilio"
)

// notificationStore is everything the services, the worker pool and the
// reconciler need from storage. Both the Postgres and the in-memory stores
// satisfy it.
type notificationStore interface {
	CreateNotifications(ctx context.Context, ns []model.Notification) ([]uuid.UUID, error)
	CreateAndEnqueue(ctx context.Context, n model.Notification, scheduledAt time.Time) (model.QueueEntry, error)
	GetNotification(ctx context.Context, id uuid.UUID) (model.Notification, error)
	ListAttachments(ctx context.Context, id uuid.UUID) ([]model.Attachment, error)
	FindByProviderMessageID(ctx context.Context, provider, messageID string) (model.Notification, error)
	ListNotifications(ctx context.Context, limit, offset int) ([]model.Notification, error)
	ListPendingByRelated(ctx context.Context, entity, relatedID string, limit int) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, entity, relatedID string) (map[model.Status]int, error)
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) error
	ApplyProviderEvent(ctx context.Context, id uuid.UUID, ev lifecycle.Event) (bool, error)

	Enqueue(ctx context.Context, id uuid.UUID, scheduledAt time.Time) (model.QueueEntry, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error)
	Claim(ctx context.Context, entryID uuid.UUID, workerID string, now time.Time) (model.QueueEntry, error)
	CompleteSent(ctx context.Context, entryID uuid.UUID, workerID string, res model.SendResult, now time.Time) error
	CompleteFailed(ctx context.Context, entryID uuid.UUID, workerID string, out model.FailureOutcome, now time.Time) error
	Defer(ctx context.Context, entryID uuid.UUID, workerID string, until, now time.Time) error
	ReclaimStuck(ctx context.Context, cutoff, now time.Time) (int, error)
}

type campaignStore interface {
	CreateCampaign(ctx context.Context, c model.Campaign) (uuid.UUID, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (model.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error)
	UpdateCampaign(ctx context.Context, id uuid.UUID, status model.CampaignStatus, stats model.CampaignStats) error
	DeleteCampaign(ctx context.Context, id uuid.UUID) error
}

type stores struct {
	notifications notificationStore
	campaigns     campaignStore
	close         func()
}

func openStores(cfg *config.Config) (stores, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		zlog.Logger.Warn().Msg("using in-memory storage, state is lost on restart")
		return stores{
			notifications: memory.NewStore(),
			campaigns:     memory.NewCampaignStore(),
			close:         func() {},
		}, nil
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		return stores{}, fmt.Errorf("connect to database: %w", err)
	}

	return stores{
		notifications: notifrepo.NewRepository(db),
		campaigns:     campaignrepo.NewRepository(db),
		close: func() {
			if err := db.Master.Close(); err != nil {
				zlog.Logger.Printf("failed to close master DB: %v", err)
			}

			for i, s := range db.Slaves {
				if err := s.Close(); err != nil {
					zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
				}
			}
		},
	}, nil
}

// buildRoutes creates one adapter per bound channel and registers every binding.
func buildRoutes(ctx context.Context, cfg *config.Config) (*channel.Registry, error) {
	routes := channel.NewRegistry()
	adapters := make(map[model.Channel]channel.Adapter)

	for _, b := range cfg.Channels {
		a, ok := adapters[b.Channel]
		if !ok {
			var err error
			a, err = newAdapter(ctx, cfg, b.Channel)
			if err != nil {
				return nil, fmt.Errorf("%s adapter: %w", b.Channel, err)
			}
			adapters[b.Channel] = a
		}

		if err := routes.Register(b, a); err != nil {
			return nil, err
		}

		zlog.Logger.Info().
			Str("channel", string(b.Channel)).
			Str("provider", b.ProviderName).
			Int("rate_limit_per_minute", b.RateLimitPerMinute).
			Msg("channel bound")
	}

	return routes, nil
}

func newAdapter(ctx context.Context, cfg *config.Config, ch model.Channel) (channel.Adapter, error) {
	switch ch {
	case model.ChannelEmail:
		port, err := strconv.Atoi(cfg.Email.SMTPPort)
		if err != nil {
			return nil, fmt.Errorf("parse smtp port: %w", err)
		}
		return email.NewClient(cfg.Email.SMTPHost, port, cfg.Email.Username, cfg.Email.Password, cfg.Email.From), nil
	case model.ChannelSMS:
		return twilio.NewClient(twilio.Config{
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			From:       cfg.SMS.From,
			BaseURL:    cfg.SMS.BaseURL,
		}), nil
	case model.ChannelWhatsApp:
		return twilio.NewClient(twilio.Config{
			AccountSID: cfg.WhatsApp.AccountSID,
			AuthToken:  cfg.WhatsApp.AuthToken,
			From:       cfg.WhatsApp.From,
			WhatsApp:   true,
			BaseURL:    cfg.WhatsApp.BaseURL,
		}), nil
	case model.ChannelPush:
		return push.NewClient(ctx, cfg.Push.ProjectID, cfg.Push.CredentialsFile)
	default:
		return nil, fmt.Errorf("unsupported channel %q", ch)
	}
}
