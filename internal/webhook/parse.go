// Package webhook normalizes provider delivery callbacks into model.ProviderEvent values.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aliskhannn/notify-engine/internal/model"
)

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Parse detects the payload format and returns the events it carries.
// Intermediate statuses (queued, sent, deferred and the like) yield no events.
//
// Supported formats:
//   - form-encoded Twilio status callbacks (MessageSid, MessageStatus)
//   - JSON arrays of SendGrid-style events (event, sg_message_id, smtp-id)
//   - generic JSON, a single object or an array of
//     {provider_message_id, event_type, timestamp, reason}
func Parse(provider, contentType string, body []byte, now time.Time) ([]model.ProviderEvent, error) {
	if provider == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidPayload)
	}

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return parseTwilio(provider, body, now)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}

		var events []model.ProviderEvent
		for _, item := range raw {
			ev, ok, err := parseItem(provider, item, now)
			if err != nil {
				return nil, err
			}
			if ok {
				events = append(events, ev)
			}
		}

		return events, nil
	}

	ev, ok, err := parseItem(provider, trimmed, now)
	if err != nil || !ok {
		return nil, err
	}

	return []model.ProviderEvent{ev}, nil
}

type item struct {
	// generic
	ProviderMessageID string          `json:"provider_message_id"`
	EventType         string          `json:"event_type"`
	Timestamp         json.RawMessage `json:"timestamp"`
	Reason            string          `json:"reason"`

	// sendgrid
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	SMTPID      string `json:"smtp-id"`
	Response    string `json:"response"`
}

func parseItem(provider string, raw []byte, now time.Time) (model.ProviderEvent, bool, error) {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return model.ProviderEvent{}, false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ts, err := parseTimestamp(it.Timestamp, now)
	if err != nil {
		return model.ProviderEvent{}, false, err
	}

	ev := model.ProviderEvent{
		ProviderName: provider,
		Timestamp:    ts,
		Reason:       it.Reason,
		RawPayload:   append([]byte(nil), raw...),
	}

	if it.Event != "" {
		// Message-ID set by the email adapter wins over the provider's own id.
		ev.ProviderMessageID = it.SMTPID
		if ev.ProviderMessageID == "" {
			ev.ProviderMessageID = it.SGMessageID
		}
		if ev.Reason == "" {
			ev.Reason = it.Response
		}

		t, ok := sendgridEvents[it.Event]
		if !ok {
			return model.ProviderEvent{}, false, nil
		}
		ev.EventType = t
	} else {
		ev.ProviderMessageID = it.ProviderMessageID
		ev.EventType = model.ProviderEventType(it.EventType)
	}

	if ev.ProviderMessageID == "" {
		return model.ProviderEvent{}, false, fmt.Errorf("%w: missing message id", ErrInvalidPayload)
	}
	if ev.EventType == "" {
		return model.ProviderEvent{}, false, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}

	return ev, true, nil
}

var sendgridEvents = map[string]model.ProviderEventType{
	"delivered": model.EventDelivered,
	"open":      model.EventOpened,
	"bounce":    model.EventBounced,
	"dropped":   model.EventFailed,
}

var twilioStatuses = map[string]model.ProviderEventType{
	"delivered":   model.EventDelivered,
	"read":        model.EventOpened,
	"undelivered": model.EventBounced,
	"failed":      model.EventFailed,
}

func parseTwilio(provider string, body []byte, now time.Time) ([]model.ProviderEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	sid := form.Get("MessageSid")
	if sid == "" {
		sid = form.Get("SmsSid")
	}
	if sid == "" {
		return nil, fmt.Errorf("%w: missing MessageSid", ErrInvalidPayload)
	}

	t, ok := twilioStatuses[form.Get("MessageStatus")]
	if !ok {
		return nil, nil
	}

	ev := model.ProviderEvent{
		ProviderName:      provider,
		ProviderMessageID: sid,
		EventType:         t,
		Timestamp:         now,
		RawPayload:        append([]byte(nil), body...),
	}
	if code := form.Get("ErrorCode"); code != "" {
		ev.Reason = "twilio error " + code
	}

	return []model.ProviderEvent{ev}, nil
}

// parseTimestamp accepts unix seconds or RFC 3339; a missing value means now.
func parseTimestamp(raw json.RawMessage, now time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return now, nil
	}

	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %s", ErrInvalidPayload, raw)
	}

	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidPayload, s)
	}

	return ts.UTC(), nil
}
