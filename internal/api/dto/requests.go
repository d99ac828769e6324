package dto

import (
	"time"

	"github.com/aliskhannn/notify-engine/internal/model"
)

// CreateRequest is the body of POST /api/notify. Either TemplateID or Body is required.
type CreateRequest struct {
	Channel       string            `json:"channel" validate:"required,oneof=email sms whatsapp push"`
	Recipient     string            `json:"recipient" validate:"required"`
	TemplateID    string            `json:"template_id" validate:"required_without=Body"`
	Variables     map[string]string `json:"variables"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body" validate:"required_without=TemplateID"`
	Priority      int               `json:"priority" validate:"gte=0"`
	RelatedEntity string            `json:"related_entity"`
	RelatedID     string            `json:"related_id"`
	ScheduledAt   *time.Time        `json:"scheduled_at"`
	MaxRetries    *int              `json:"max_retries" validate:"omitempty,gte=0"`
	Attachments   []Attachment      `json:"attachments" validate:"omitempty,max=10,dive"`
}

// Attachment is a file sent with an email. Content is base64 in JSON.
type Attachment struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content" validate:"required"`
}

func (r CreateRequest) ToModel() model.SendRequest {
	req := model.SendRequest{
		Channel:       model.Channel(r.Channel),
		Recipient:     r.Recipient,
		TemplateID:    r.TemplateID,
		Variables:     r.Variables,
		Subject:       r.Subject,
		Body:          r.Body,
		Priority:      r.Priority,
		RelatedEntity: r.RelatedEntity,
		RelatedID:     r.RelatedID,
		MaxRetries:    r.MaxRetries,
	}
	if r.ScheduledAt != nil {
		req.ScheduledAt = r.ScheduledAt.UTC()
	}
	for _, a := range r.Attachments {
		req.Attachments = append(req.Attachments, model.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}

	return req
}

// CampaignRequest is the body of POST /api/campaigns.
type CampaignRequest struct {
	TemplateID string            `json:"template_id" validate:"required"`
	Priority   int               `json:"priority" validate:"gte=0"`
	Recipients []model.Recipient `json:"recipients" validate:"required,min=1,dive"`
}

// IDResponse is returned when a resource is created.
type IDResponse struct {
	ID string `json:"id"`
}

// AcceptedResponse reports how many provider events a webhook call produced.
type AcceptedResponse struct {
	Accepted int `json:"accepted"`
}
