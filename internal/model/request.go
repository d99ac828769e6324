package model

import "time"

// SendRequest asks the engine to deliver one message. Either TemplateID or
// Body must be set.
type SendRequest struct {
	Channel       Channel
	Recipient     string
	TemplateID    string
	Variables     map[string]string
	Subject       string
	Body          string
	Priority      int
	RelatedEntity string
	RelatedID     string
	ScheduledAt   time.Time // zero means now
	MaxRetries    *int      // nil means the configured default
	Attachments   []Attachment
}
