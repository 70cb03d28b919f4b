package domain

import (
	"time"
)

// EventType classifies a delivery-provider engagement callback.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventUnsubscribed EventType = "unsubscribed"
	EventComplained   EventType = "complained"
	EventBounced      EventType = "bounced"
)

// EventMetadata carries the free-form details of a provider callback.
type EventMetadata struct {
	URL       string   `json:"url,omitempty"`
	IP        string   `json:"ip,omitempty"`
	UserAgent string   `json:"userAgent,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Event is one append-only engagement row, one per provider callback.
type Event struct {
	ID         string        `json:"id" db:"id"`
	CampaignID *string       `json:"campaign_id" db:"campaign_id"`
	VariantID  *string       `json:"variant_id" db:"variant_id"`
	EventType  EventType     `json:"event_type" db:"event_type"`
	Recipient  string        `json:"recipient" db:"recipient"`
	Timestamp  time.Time     `json:"timestamp" db:"timestamp"`
	Metadata   EventMetadata `json:"metadata" db:"metadata"`
	IsBot      bool          `json:"is_bot" db:"is_bot"`
}

// ReengagementOutcome tracks whether a recipient who clicked a winback
// email returned to active use within 7/30 days. At most one outcome
// exists per (email, sequence) pair; the 7d/30d flags are filled in by a
// background reconciliation pass as the windows elapse.
type ReengagementOutcome struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	SequenceID string    `json:"sequence_id" db:"sequence_id"`
	VariantID  *string   `json:"variant_id" db:"variant_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Email      string    `json:"email" db:"email"`
	ClickedAt  time.Time `json:"clicked_at" db:"clicked_at"`

	Active7d   *bool      `json:"active_7d" db:"active_7d"`
	Active30d  *bool      `json:"active_30d" db:"active_30d"`
	ReturnedAt *time.Time `json:"returned_at" db:"returned_at"`
	Relapsed   *bool      `json:"relapsed" db:"relapsed"`
}
