package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/backoff"
	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/metrics"
	"github.com/aliskhannn/notify-engine/internal/model"
	"github.com/aliskhannn/notify-engine/internal/ratelimit"
)

type dispatchStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error)
	Claim(ctx context.Context, entryID uuid.UUID, workerID string, now time.Time) (model.QueueEntry, error)
	GetNotification(ctx context.Context, id uuid.UUID) (model.Notification, error)
	ListAttachments(ctx context.Context, id uuid.UUID) ([]model.Attachment, error)
	CompleteSent(ctx context.Context, entryID uuid.UUID, workerID string, res model.SendResult, now time.Time) error
	CompleteFailed(ctx context.Context, entryID uuid.UUID, workerID string, out model.FailureOutcome, now time.Time) error
	Defer(ctx context.Context, entryID uuid.UUID, workerID string, until, now time.Time) error
	ReclaimStuck(ctx context.Context, cutoff, now time.Time) (int, error)
}

type renderer interface {
	Render(templateID string, vars map[string]string) (subject, body string, err error)
}

type router interface {
	Resolve(ch model.Channel) (channel.Route, error)
}

type limiters interface {
	For(ch model.Channel, provider string) ratelimit.Limiter
}

// Config controls the pool's concurrency and timing.
type Config struct {
	Workers           int
	BatchSize         int
	PollInterval      time.Duration
	SendTimeout       time.Duration
	ProcessingTimeout time.Duration // claims older than this are reclaimed by the sweeper
	SweepInterval     time.Duration
	RateLimitMaxWait  time.Duration // longer waits defer the entry instead of blocking the worker
}

// Pool runs the workers that claim queue entries and send them.
type Pool struct {
	store    dispatchStore
	renderer renderer
	routes   router
	limiters limiters
	policy   backoff.Policy
	cfg      Config
	instance string
	now      func() time.Time
}

// NewPool builds a pool over the dispatch store. Zero values in cfg fall back
// to one worker, batches of ten, a one second poll and a 30s send timeout.
func NewPool(s dispatchStore, r renderer, routes router, l limiters, policy backoff.Policy, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	return &Pool{
		store:    s,
		renderer: r,
		routes:   routes,
		limiters: l,
		policy:   policy,
		cfg:      cfg,
		instance: uuid.NewString()[:8],
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the workers and the sweeper and blocks until ctx is done and
// every in-flight send has been persisted.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()

			workerID := fmt.Sprintf("%s-worker-%d", p.instance, id)
			zlog.Logger.Printf("worker-%d started", id)

			for {
				if ctx.Err() != nil {
					zlog.Logger.Printf("worker-%d shutting down", id)
					return
				}

				if p.RunOnce(ctx, workerID) > 0 {
					continue
				}

				select {
				case <-ctx.Done():
					zlog.Logger.Printf("worker-%d shutting down", id)
					return
				case <-time.After(p.cfg.PollInterval):
				}
			}
		}(i)
	}

	if p.cfg.SweepInterval > 0 && p.cfg.ProcessingTimeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runSweeper(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	zlog.Logger.Print("worker pool stopped")
}

// RunOnce polls for due entries and processes every one it manages to claim.
// It returns how many entries were processed.
func (p *Pool) RunOnce(ctx context.Context, workerID string) int {
	entries, err := p.store.ListDue(ctx, p.now(), p.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			zlog.Logger.Error().Err(err).Str("worker", workerID).Msg("failed to list due entries")
		}
		return 0
	}

	processed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}

		claimed, err := p.store.Claim(ctx, e.ID, workerID, p.now())
		if err != nil {
			if errors.Is(err, model.ErrClaimConflict) {
				metrics.ClaimConflicts.Inc()
				continue
			}

			zlog.Logger.Error().Err(err).Str("entry_id", e.ID.String()).Msg("failed to claim entry")
			continue
		}

		p.process(ctx, claimed)
		processed++
	}

	return processed
}

// process runs one claimed entry to completion. Work after the claim uses a
// context detached from shutdown so the attempt is always persisted.
func (p *Pool) process(ctx context.Context, e model.QueueEntry) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			zlog.Logger.Error().
				Str("entry_id", e.ID.String()).
				Str("notification_id", e.NotificationID.String()).
				Interface("panic", r).
				Msg("recovered panic while processing notification, leaving entry for the sweeper")
		}
	}()

	bg := context.WithoutCancel(ctx)

	n, err := p.store.GetNotification(bg, e.NotificationID)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("notification_id", e.NotificationID.String()).Msg("failed to load claimed notification")
		return
	}

	route, err := p.routes.Resolve(n.Channel)
	if err != nil {
		p.fail(bg, e, n, "", channel.Permanent(err))
		return
	}

	subject, body := n.Subject, n.Body
	if n.TemplateID != "" {
		subject, body, err = p.renderer.Render(n.TemplateID, n.TemplateVariables)
		if err != nil {
			p.fail(bg, e, n, route.Binding.ProviderName, channel.Permanent(fmt.Errorf("render template %s: %w", n.TemplateID, err)))
			return
		}
	}

	var files []channel.Attachment
	if n.Channel == model.ChannelEmail {
		atts, err := p.store.ListAttachments(bg, n.ID)
		if err != nil {
			p.fail(bg, e, n, route.Binding.ProviderName, channel.Transient(fmt.Errorf("load attachments: %w", err)))
			return
		}
		for _, a := range atts {
			files = append(files, channel.Attachment{Filename: a.Filename, ContentType: a.ContentType, Content: bytes.NewReader(a.Content)})
		}
	}

	if !p.admit(ctx, e, n, route.Binding) {
		return
	}

	sendCtx, cancel := context.WithTimeout(bg, p.cfg.SendTimeout)
	start := time.Now()
	messageID, err := route.Adapter.Send(sendCtx, channel.Message{
		Channel:        n.Channel,
		Recipient:      n.Recipient,
		Subject:        subject,
		Body:           body,
		Attachments:    files,
		IdempotencyKey: n.ID.String(),
	})
	cancel()
	metrics.SendDuration.WithLabelValues(string(n.Channel), route.Binding.ProviderName).Observe(time.Since(start).Seconds())

	if err != nil {
		p.fail(bg, e, n, route.Binding.ProviderName, err)
		return
	}

	metrics.SendsTotal.WithLabelValues(string(n.Channel), route.Binding.ProviderName, "sent").Inc()

	err = p.store.CompleteSent(bg, e.ID, e.ClaimedBy, model.SendResult{
		ProviderName:      route.Binding.ProviderName,
		ProviderMessageID: messageID,
		Subject:           subject,
		Body:              body,
	}, p.now())
	if err != nil {
		zlog.Logger.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Str("provider_message_id", messageID).
			Msg("notification sent but completion was not recorded")
		return
	}

	zlog.Logger.Info().
		Str("notification_id", n.ID.String()).
		Str("channel", string(n.Channel)).
		Str("provider", route.Binding.ProviderName).
		Msg("notification sent")
}

// admit blocks on the rate limiter for short waits. Longer waits, limiter
// errors and shutdown hand the entry back to the queue; it then returns false.
func (p *Pool) admit(ctx context.Context, e model.QueueEntry, n model.Notification, b channel.Binding) bool {
	bg := context.WithoutCancel(ctx)
	limiter := p.limiters.For(n.Channel, b.ProviderName)

	for {
		ok, wait, err := limiter.Allow(bg)
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("provider", b.ProviderName).Msg("rate limiter unavailable, deferring entry")
			p.deferEntry(bg, e, p.cfg.PollInterval)
			return false
		}
		if ok {
			return true
		}

		if wait > p.cfg.RateLimitMaxWait {
			metrics.RateLimited.WithLabelValues(string(n.Channel), b.ProviderName, "defer").Inc()
			p.deferEntry(bg, e, wait)
			return false
		}

		metrics.RateLimited.WithLabelValues(string(n.Channel), b.ProviderName, "wait").Inc()

		select {
		case <-ctx.Done():
			p.deferEntry(bg, e, 0)
			return false
		case <-time.After(wait):
		}
	}
}

func (p *Pool) deferEntry(ctx context.Context, e model.QueueEntry, wait time.Duration) {
	now := p.now()
	if err := p.store.Defer(ctx, e.ID, e.ClaimedBy, now.Add(wait), now); err != nil {
		zlog.Logger.Error().Err(err).Str("entry_id", e.ID.String()).Msg("failed to defer entry")
	}
}

// fail asks the retry policy what to do and persists the outcome.
func (p *Pool) fail(ctx context.Context, e model.QueueEntry, n model.Notification, provider string, sendErr error) {
	class := channel.Classify(sendErr)
	now := p.now()
	d := p.policy.Decide(n.RetryCount, n.MaxRetries, class, now)

	out := model.FailureOutcome{
		Error:         sendErr.Error(),
		Retry:         d.Action == backoff.Retry,
		NextAttemptAt: d.NextAttemptAt,
	}

	if err := p.store.CompleteFailed(ctx, e.ID, e.ClaimedBy, out, now); err != nil {
		zlog.Logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to record send failure")
		return
	}

	metrics.SendsTotal.WithLabelValues(string(n.Channel), provider, class.String()).Inc()

	if out.Retry {
		metrics.RetriesScheduled.WithLabelValues(string(n.Channel)).Inc()
		zlog.Logger.Warn().Err(sendErr).
			Str("notification_id", n.ID.String()).
			Int("retry", n.RetryCount+1).
			Time("next_attempt_at", d.NextAttemptAt).
			Msg("send failed, retry scheduled")
		return
	}

	metrics.FailedFinal.WithLabelValues(string(n.Channel), class.String()).Inc()
	zlog.Logger.Error().Err(sendErr).
		Str("notification_id", n.ID.String()).
		Str("class", class.String()).
		Int("retry_count", n.RetryCount).
		Msg("notification failed permanently")
}
