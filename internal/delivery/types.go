// Package delivery implements batch-paced campaign dispatch: recipient
// partitioning, A/B splits, template rendering, and the fan-out loop
// that hands individual messages to an email transport.
package delivery

import (
	"context"
	"errors"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// ErrNoTransport is returned when a dispatcher is constructed without a
// usable transport.
var ErrNoTransport = errors.New("delivery: no transport configured")

// Message is a single outbound email, provider-agnostic.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tags    []string
	Headers map[string]string
}

// SendResult reports the outcome of one transport send.
type SendResult struct {
	Success bool
	ID      string
	Message string
	Error   string
}

// Transport delivers a single message through an email provider.
type Transport interface {
	Send(ctx context.Context, msg Message) SendResult
}

// SuppressionStore exposes the provider's suppression state: addresses
// that must never receive campaign mail, plus unsubscribe management.
type SuppressionStore interface {
	// SuppressedEmails returns the full suppressed set, lowercased.
	SuppressedEmails(ctx context.Context) (map[string]bool, error)
	// Suppressions lists entries of one type for the admin surface.
	Suppressions(ctx context.Context, kind domain.SuppressionType) ([]domain.SuppressionEntry, error)
	AddUnsubscribe(ctx context.Context, email string) error
	RemoveUnsubscribe(ctx context.Context, email string) error
}

// ProgressFunc receives cumulative counters after each completed batch.
type ProgressFunc func(p domain.SendProgress)
