package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// Campaign represents one outbound email blast: subject and body injected
// into a named template, optionally linked to a re-engagement sequence and
// optionally split into A/B variants.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Subject      string         `json:"subject" db:"subject"`
	BodyHTML     string         `json:"body_html" db:"body_html"`
	TemplateName string         `json:"template_name" db:"template_name"`
	Status       CampaignStatus `json:"status" db:"status"`

	// Sequence linkage; nil for one-off campaigns.
	SequenceID   *string    `json:"sequence_id" db:"sequence_id"`
	SequenceStep int        `json:"sequence_step" db:"sequence_step"`
	ScheduledAt  *time.Time `json:"scheduled_at" db:"scheduled_at"`

	// Delivery counters, written at batch boundaries during a send.
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	TotalSent       int `json:"total_sent" db:"total_sent"`
	TotalFailed     int `json:"total_failed" db:"total_failed"`

	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}

// Variant is one arm of a split-test campaign with its own content and
// target percentage of the recipient pool.
type Variant struct {
	ID              string `json:"id" db:"id"`
	CampaignID      string `json:"campaign_id" db:"campaign_id"`
	Label           string `json:"variant_label" db:"variant_label"`
	Subject         string `json:"subject" db:"subject"`
	BodyHTML        string `json:"body_html" db:"body_html"`
	TemplateName    string `json:"template_name" db:"template_name"`
	SplitPercentage int    `json:"split_percentage" db:"split_percentage"`

	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	TotalSent       int `json:"total_sent" db:"total_sent"`
	TotalFailed     int `json:"total_failed" db:"total_failed"`
}

// SequenceStatus enumerates the lifecycle states of a sequence.
type SequenceStatus string

const (
	SequenceActive    SequenceStatus = "active"
	SequenceCompleted SequenceStatus = "completed"
)

// Sequence is an ordered set of campaigns ("steps") sent with time
// spacing, used for automated re-engagement.
type Sequence struct {
	ID         string         `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	Status     SequenceStatus `json:"status" db:"status"`
	TotalSteps int            `json:"total_steps" db:"total_steps"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
