// Package channel defines the contract between the dispatch engine and the
// provider clients that actually deliver messages.
package channel

import (
	"context"
	"io"

	"github.com/aliskhannn/notify-engine/internal/model"
)

// Attachment is a file sent along with a message. Only email uses it.
type Attachment struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// Message is what an adapter needs to perform one send.
type Message struct {
	Channel        model.Channel
	Recipient      string
	Subject        string
	Body           string
	Attachments    []Attachment
	IdempotencyKey string // the notification id; providers that support it dedupe on this
}

// Adapter delivers messages over one provider. Implementations must be safe
// for concurrent use and must respect ctx cancellation.
//
// Send returns the provider's message id. Failures should be wrapped with
// Transient or Permanent; anything else is treated as transient.
type Adapter interface {
	Send(ctx context.Context, msg Message) (string, error)
	ValidateRecipient(recipient string) error
}
