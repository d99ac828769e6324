package model

import (
	"time"

	"github.com/google/uuid"
)

// ClaimStatus is the state of a single dispatch attempt.
type ClaimStatus string

const (
	ClaimQueued     ClaimStatus = "queued"
	ClaimProcessing ClaimStatus = "processing"
	ClaimDone       ClaimStatus = "done"
	ClaimAbandoned  ClaimStatus = "abandoned"
)

// IsActive reports whether the entry still counts against the one-active-entry rule.
func (s ClaimStatus) IsActive() bool {
	return s == ClaimQueued || s == ClaimProcessing
}

// QueueEntry is one claimable attempt to dispatch a notification.
// Retries append new entries; finished entries are never reused.
type QueueEntry struct {
	ID             uuid.UUID   `json:"id"`
	NotificationID uuid.UUID   `json:"notification_id"`
	Priority       int         `json:"priority"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	Attempt        int         `json:"attempt"` // notification retry count when the entry was created
	ClaimStatus    ClaimStatus `json:"claim_status"`
	ClaimedBy      string      `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// SendResult is what a successful adapter call records on the notification.
type SendResult struct {
	ProviderName      string
	ProviderMessageID string
	Subject           string
	Body              string
}

// FailureOutcome is the retry decision persisted together with a failed attempt.
type FailureOutcome struct {
	Error         string
	Retry         bool      // false finalizes the notification
	NextAttemptAt time.Time // scheduled time of the new entry when Retry is set
}
