// Package sending defines the delivery contract for simulation messages.
//
// Each transport (SES, the log sender used in development) implements
// Sender. The dispatcher stays transport-agnostic and only sees this
// interface.
package sending

import (
	"context"
	"time"
)

// Message is one rendered simulation email addressed to one recipient.
type Message struct {
	CampaignID  string
	RecipientID string
	To          string
	ToName      string
	FromName    string
	FromEmail   string
	ReplyTo     string
	Subject     string
	HTMLBody    string
}

// Result describes an accepted message.
type Result struct {
	MessageID string
	Transport string
	SentAt    time.Time
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use. A non-nil error means the message was not accepted.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}

// Limiter blocks until the next send is allowed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}
