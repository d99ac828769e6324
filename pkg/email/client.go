// Package email sends notifications over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/mail.v2"

	"github.com/aliskhannn/notify-engine/internal/channel"
)

const defaultTimeout = 30 * time.Second

var replyCode = regexp.MustCompile(`\b([245]\d\d)[ -]`)

// Client is an SMTP channel adapter.
type Client struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	domain   string // right-hand side of generated Message-IDs

	send func(ctx context.Context, m *mail.Message) error
}

func NewClient(smtpHost string, smtpPort int, username, password, from string) *Client {
	c := &Client{
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
		from:     from,
		domain:   smtpHost,
	}

	if addr, err := netmail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 {
			c.domain = addr.Address[at+1:]
		}
	}

	c.send = c.dialAndSend
	return c
}

// ValidateRecipient checks that to is a parseable address.
func (c *Client) ValidateRecipient(to string) error {
	if _, err := netmail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid email address %q: %w", to, err)
	}
	return nil
}

// Send delivers msg and returns the Message-ID it was sent with. The id is
// derived from the idempotency key so resends of one notification share it.
func (c *Client) Send(ctx context.Context, msg channel.Message) (string, error) {
	if err := c.ValidateRecipient(msg.Recipient); err != nil {
		return "", channel.Permanent(err)
	}

	messageID := fmt.Sprintf("<%s@%s>", msg.IdempotencyKey, c.domain)

	subject := msg.Subject
	if subject == "" {
		subject = "Notification"
	}

	message := mail.NewMessage()

	message.SetHeader("From", c.from)
	message.SetHeader("To", msg.Recipient)
	message.SetHeader("Subject", subject)
	message.SetHeader("Message-ID", messageID)

	message.SetBody("text/plain", msg.Body)

	for _, a := range msg.Attachments {
		var settings []mail.FileSetting
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		message.AttachReader(a.Filename, a.Content, settings...)
	}

	if err := c.send(ctx, message); err != nil {
		return "", classify(err)
	}

	return messageID, nil
}

func (c *Client) dialAndSend(ctx context.Context, m *mail.Message) error {
	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)
	dialer.Timeout = defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Timeout = time.Until(deadline)
	}

	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps SMTP replies to the error taxonomy: 5xx is permanent,
// everything else (4xx, network, timeouts) is transient.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return channel.Transient(err)
	}

	code := 0

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		code = tpErr.Code
	} else if m := replyCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ = strconv.Atoi(m[1])
	}

	if code >= 500 && code < 600 {
		return channel.Permanent(fmt.Errorf("smtp: %w", err))
	}

	return channel.Transient(fmt.Errorf("smtp: %w", err))
}
