package model

import (
	"time"

	"github.com/google/uuid"
)

// RelatedCampaign is the RelatedEntity value of notifications created by a campaign.
const RelatedCampaign = "campaign"

// CampaignStatus tracks how far a campaign has progressed.
type CampaignStatus string

const (
	CampaignEnqueuing CampaignStatus = "enqueuing" // pending notifications still being fed to the queue
	CampaignEnqueued  CampaignStatus = "enqueued"  // everything queued, sends in flight
	CampaignCompleted CampaignStatus = "completed" // nothing left in flight
)

// CampaignStats is an aggregate over the notifications of one campaign.
type CampaignStats struct {
	Pending   int `json:"pending"`
	Queued    int `json:"queued"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// InFlight returns how many notifications may still change because of a worker.
func (s CampaignStats) InFlight() int {
	return s.Pending + s.Queued
}

// StatsFromCounts folds per-status counts into campaign stats.
// Processing and transient failures count as queued since they will be retried or finalized.
func StatsFromCounts(counts map[Status]int) CampaignStats {
	return CampaignStats{
		Pending:   counts[StatusPending],
		Queued:    counts[StatusQueued] + counts[StatusProcessing] + counts[StatusFailed],
		Sent:      counts[StatusSent],
		Delivered: counts[StatusDelivered],
		Read:      counts[StatusRead],
		Failed:    counts[StatusFailedFinal],
		Cancelled: counts[StatusCancelled],
	}
}

// Campaign is a batch of notifications rendered from one template.
type Campaign struct {
	ID         uuid.UUID      `json:"id"`
	TemplateID string         `json:"template_id"`
	Channel    Channel        `json:"channel"`
	Priority   int            `json:"priority"`
	Status     CampaignStatus `json:"status"`
	Total      int            `json:"total"`
	Stats      CampaignStats  `json:"stats"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Recipient is one resolved member of a campaign audience.
type Recipient struct {
	Address   string            `json:"address" validate:"required"`
	Variables map[string]string `json:"variables"`
}
