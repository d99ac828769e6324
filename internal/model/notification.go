package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
)

// IsValid reports whether c is one of the supported channels.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush:
		return true
	}
	return false
}

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending     Status = "pending"
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusRead        Status = "read"
	StatusFailed      Status = "failed"
	StatusFailedFinal Status = "failed_final"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether no worker will ever touch a notification in status s again.
// Sent and Delivered are not terminal for the webhook path.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRead, StatusFailedFinal, StatusCancelled:
		return true
	}
	return false
}

// Attachment is a file delivered with an email notification.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Notification represents one logical message in the system.
type Notification struct {
	ID                uuid.UUID         `json:"id"`                            // unique identifier, also the provider idempotency key
	Channel           Channel           `json:"channel"`                       // delivery medium
	Recipient         string            `json:"recipient"`                     // email address, phone number or device token
	Subject           string            `json:"subject,omitempty"`             // rendered subject, empty for channels without one
	Body              string            `json:"body"`                          // rendered body
	Status            Status            `json:"status"`                        // current lifecycle state
	Priority          int               `json:"priority"`                      // lower is more urgent
	RetryCount        int               `json:"retry_count"`                   // retries consumed so far
	MaxRetries        int               `json:"max_retries"`                   // retry budget
	NextAttemptAt     time.Time         `json:"next_attempt_at"`               // earliest time the next attempt may run
	ProviderName      string            `json:"provider_name,omitempty"`       // provider that accepted the send
	ProviderMessageID string            `json:"provider_message_id,omitempty"` // correlation key for webhooks
	TemplateID        string            `json:"template_id,omitempty"`         // optional template to render before send
	TemplateVariables map[string]string `json:"template_variables,omitempty"`  // variables for the template
	RelatedEntity     string            `json:"related_entity,omitempty"`      // originating business object kind
	RelatedID         string            `json:"related_id,omitempty"`          // originating business object id
	LastError         string            `json:"last_error,omitempty"`          // last send or delivery failure
	Attachments       []Attachment      `json:"-"`                             // email only, loaded with ListAttachments
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	ReadAt            *time.Time        `json:"read_at,omitempty"`
	FailedAt          *time.Time        `json:"failed_at,omitempty"`
}
