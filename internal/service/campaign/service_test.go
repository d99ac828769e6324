package campaign

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/render"
	"github.com/aliskhannn/notify-engine/internal/repository/memory"
)

type emailAdapter struct{}

func (emailAdapter) Send(context.Context, channel.Message) (string, error) { return "", nil }

func (emailAdapter) ValidateRecipient(addr string) error {
	if !strings.Contains(addr, "@") {
		return errors.New("not an email address")
	}
	return nil
}

type fixture struct {
	svc           *Service
	notifications *memory.Store
	campaigns     *memory.CampaignStore
}

func newFixture(t *testing.T, perSecond int) fixture {
	t.Helper()

	r, err := render.NewRenderer([]model.Template{{
		ID:                "promo",
		Channel:           model.ChannelEmail,
		SubjectTemplate:   "Sale for {{.name}}",
		BodyTemplate:      "Hi {{.name}}, 20% off today",
		RequiredVariables: []string{"name"},
	}})
	require.NoError(t, err)

	routes := channel.NewRegistry()
	require.NoError(t, routes.Register(channel.Binding{Channel: model.ChannelEmail, ProviderName: "smtp"}, emailAdapter{}))

	f := fixture{notifications: memory.NewStore(), campaigns: memory.NewCampaignStore()}
	f.svc = NewService(f.notifications, f.campaigns, r, routes, Config{EnqueuePerSecond: perSecond, StatsInterval: time.Minute, MaxRetries: 2})

	return f
}

func audience(n int) []model.Recipient {
	rs := make([]model.Recipient, 0, n)
	for i := 0; i < n; i++ {
		rs = append(rs, model.Recipient{
			Address:   "user" + string(rune('a'+i)) + "@example.com",
			Variables: map[string]string{"name": "user"},
		})
	}
	return rs
}

func TestService_EnqueueCampaign(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	id, err := f.svc.EnqueueCampaign(ctx, "promo", audience(3), 5)
	require.NoError(t, err)

	c, err := f.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignEnqueuing, c.Status)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, model.ChannelEmail, c.Channel)
	assert.Equal(t, 3, c.Stats.Pending)

	ids, err := f.notifications.ListPendingByRelated(ctx, model.RelatedCampaign, id.String(), 10)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	n, err := f.notifications.GetNotification(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "promo", n.TemplateID)
	assert.Equal(t, 5, n.Priority)
	assert.Equal(t, 2, n.MaxRetries)
}

func TestService_EnqueueCampaign_Validation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.svc.EnqueueCampaign(ctx, "promo", nil, 0)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.EnqueueCampaign(ctx, "unknown", audience(1), 0)
	assert.ErrorIs(t, err, model.ErrTemplateNotFound)

	_, err = f.svc.EnqueueCampaign(ctx, "promo", []model.Recipient{{Address: ""}}, 0)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.EnqueueCampaign(ctx, "promo", []model.Recipient{{Address: "not-an-email", Variables: map[string]string{"name": "x"}}}, 0)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.EnqueueCampaign(ctx, "promo", []model.Recipient{{Address: "a@example.com"}}, 0)
	assert.ErrorIs(t, err, render.ErrMissingVariable)

	active, err := f.campaigns.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// failingBatch rejects every batch insert and passes everything else through.
type failingBatch struct {
	*memory.Store
}

func (failingBatch) CreateNotifications(context.Context, []model.Notification) ([]uuid.UUID, error) {
	return nil, errors.New("db down")
}

func TestService_EnqueueCampaign_NotificationInsertFailsRemovesCampaign(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.svc.notifications = failingBatch{f.notifications}

	id, err := f.svc.EnqueueCampaign(ctx, "promo", audience(3), 0)
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, id)

	active, err := f.campaigns.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.notifications.ListNotifications(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_PumpRespectsBudget(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	id, err := f.svc.EnqueueCampaign(ctx, "promo", audience(5), 0)
	require.NoError(t, err)

	n, err := f.svc.Pump(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, err := f.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Stats.Pending)
	assert.Equal(t, 2, c.Stats.Queued)

	for i := 0; i < 2; i++ {
		_, err = f.svc.Pump(ctx)
		require.NoError(t, err)
	}

	c, err = f.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Stats.Pending)
	assert.Equal(t, 5, c.Stats.Queued)
	assert.Equal(t, model.CampaignEnqueuing, c.Status)

	n, err = f.svc.Pump(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	c, err = f.svc.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignEnqueued, c.Status)
}

func TestService_RefreshCompletesCampaign(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := f.svc.EnqueueCampaign(ctx, "promo", audience(2), 0)
	require.NoError(t, err)

	_, err = f.svc.Pump(ctx)
	require.NoError(t, err)
	_, err = f.svc.Pump(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.Refresh(ctx))
	c, err := f.campaigns.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignEnqueued, c.Status)
	assert.Equal(t, 2, c.Stats.Queued)

	due, err := f.notifications.ListDue(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	for i, e := range due {
		_, err := f.notifications.Claim(ctx, e.ID, "w1", now)
		require.NoError(t, err)

		if i == 0 {
			require.NoError(t, f.notifications.CompleteSent(ctx, e.ID, "w1", model.SendResult{ProviderName: "smtp", ProviderMessageID: uuid.NewString()}, now))
			continue
		}
		require.NoError(t, f.notifications.CompleteFailed(ctx, e.ID, "w1", model.FailureOutcome{Error: "550"}, now))
	}

	require.NoError(t, f.svc.Refresh(ctx))
	c, err = f.campaigns.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 1, c.Stats.Sent)
	assert.Equal(t, 1, c.Stats.Failed)

	active, err := f.campaigns.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestService_GetCampaignNotFound(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.svc.GetCampaign(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrCampaignNotFound)
}
