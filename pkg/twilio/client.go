// Package twilio provides a client for sending SMS and WhatsApp messages
// through the Twilio Programmable Messaging REST API.
//
// One Client serves one channel: construct it with WhatsApp set to true to
// send through the WhatsApp sender.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aliskhannn/notify-engine/internal/channel"
)

const (
	defaultBaseURL = "https://api.twilio.com/2010-04-01"
	whatsappPrefix = "whatsapp:"

	// maxBodyLength is the longest body Twilio accepts (ten concatenated segments).
	maxBodyLength = 1600
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Config holds Twilio account credentials and the sender number.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string // E.164 sender number
	WhatsApp   bool   // prefix addresses with "whatsapp:"
	BaseURL    string // overrides the API root, mainly for tests
}

// Client represents a Twilio client used to send notifications.
type Client struct {
	cfg    Config
	client *http.Client // HTTP client used to make requests
}

// NewClient creates a new Twilio Client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// messageResponse is the subset of the Message resource we read.
type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// errorResponse is the body Twilio returns for rejected requests.
type errorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// ValidateRecipient checks that to is an E.164 phone number.
func (c *Client) ValidateRecipient(to string) error {
	if !e164.MatchString(strings.TrimPrefix(to, whatsappPrefix)) {
		return fmt.Errorf("invalid phone number %q: expected E.164 format", to)
	}
	return nil
}

// Send posts a message and returns the Twilio message SID.
//
// HTTP 400 and 404 are treated as permanent; 429, 5xx and network errors are transient.
// The Messages API has no request idempotency, so msg.IdempotencyKey is not
// sent and a resend after a reclaimed claim can deliver the message twice.
func (c *Client) Send(ctx context.Context, msg channel.Message) (string, error) {
	if err := c.ValidateRecipient(msg.Recipient); err != nil {
		return "", channel.Permanent(err)
	}

	body := msg.Body
	if len([]rune(body)) > maxBodyLength {
		body = string([]rune(body)[:maxBodyLength])
	}

	form := url.Values{}
	form.Set("To", c.address(msg.Recipient))
	form.Set("From", c.address(c.cfg.From))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", channel.Permanent(fmt.Errorf("build request: %w", err))
	}

	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", channel.Transient(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", channel.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp.StatusCode, raw)
	}

	var out messageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", channel.Transient(fmt.Errorf("decode response: %w", err))
	}

	if out.SID == "" {
		return "", channel.Transient(errors.New("twilio response has no message sid"))
	}

	return out.SID, nil
}

func (c *Client) address(number string) string {
	if c.cfg.WhatsApp && !strings.HasPrefix(number, whatsappPrefix) {
		return whatsappPrefix + number
	}
	return number
}

func statusError(status int, raw []byte) error {
	var apiErr errorResponse
	_ = json.Unmarshal(raw, &apiErr)

	err := fmt.Errorf("twilio API error: status %d, code %d: %s", status, apiErr.Code, apiErr.Message)

	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return channel.Transient(err)
	case status == http.StatusBadRequest, status == http.StatusNotFound:
		return channel.Permanent(err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		// credentials may be rotated without a redeploy
		return channel.Transient(err)
	default:
		return channel.Permanent(err)
	}
}
