package model

import "time"

// ProviderEventType is a normalized provider callback kind.
type ProviderEventType string

const (
	EventDelivered ProviderEventType = "delivered"
	EventBounced   ProviderEventType = "bounced"
	EventOpened    ProviderEventType = "opened"
	EventFailed    ProviderEventType = "failed"
)

// IsValid reports whether t is a known event type.
func (t ProviderEventType) IsValid() bool {
	switch t {
	case EventDelivered, EventBounced, EventOpened, EventFailed:
		return true
	}
	return false
}

// ProviderEvent is an inbound provider callback after normalization.
type ProviderEvent struct {
	ProviderName      string            `json:"provider_name"`
	ProviderMessageID string            `json:"provider_message_id"`
	EventType         ProviderEventType `json:"event_type"`
	Timestamp         time.Time         `json:"timestamp"`
	Reason            string            `json:"reason,omitempty"` // provider failure description, if any
	RawPayload        []byte            `json:"raw_payload,omitempty"`
}
