// Package push delivers notifications to mobile devices through Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/aliskhannn/notify-engine/internal/channel"
)

const maxTokenLength = 4096

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client is an FCM channel adapter. The recipient is a device registration token.
type Client struct {
	fcm sender
}

// NewClient initializes a Firebase app from a service account file.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	fcm, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firebase messaging client: %w", err)
	}

	return &Client{fcm: fcm}, nil
}

// ValidateRecipient performs a shape check on a registration token.
func (c *Client) ValidateRecipient(token string) error {
	if token == "" || len(token) > maxTokenLength || strings.ContainsAny(token, " \t\r\n") {
		return errors.New("invalid device registration token")
	}
	return nil
}

// Send pushes msg to one device and returns the FCM message name.
func (c *Client) Send(ctx context.Context, msg channel.Message) (string, error) {
	if err := c.ValidateRecipient(msg.Recipient); err != nil {
		return "", channel.Permanent(err)
	}

	message := &messaging.Message{
		Token: msg.Recipient,
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
		Data: map[string]string{
			"notification_id": msg.IdempotencyKey,
		},
	}

	id, err := c.fcm.Send(ctx, message)
	if err != nil {
		return "", classify(err)
	}

	return id, nil
}

func classify(err error) error {
	switch {
	case messaging.IsUnregistered(err),
		messaging.IsInvalidArgument(err),
		messaging.IsSenderIDMismatch(err),
		messaging.IsThirdPartyAuthError(err):
		return channel.Permanent(fmt.Errorf("fcm: %w", err))
	default:
		return channel.Transient(fmt.Errorf("fcm: %w", err))
	}
}
