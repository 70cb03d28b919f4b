// Package events ingests delivery-provider webhook callbacks: signature
// checking, tag attribution, bot flagging, and first-click outcome
// creation for re-engagement sequences.
package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jellyjelly/campaign-engine/internal/domain"
	"github.com/jellyjelly/campaign-engine/internal/mailgun"
	"github.com/jellyjelly/campaign-engine/internal/pkg/logger"
)

var (
	// ErrBadSignature means the webhook signature did not verify.
	ErrBadSignature = errors.New("webhook signature verification failed")

	// ErrMissingEventData means the payload carried no event-data block.
	ErrMissingEventData = errors.New("webhook payload missing event-data")
)

// Envelope is the provider's webhook payload shape.
type Envelope struct {
	Signature struct {
		Timestamp string `json:"timestamp"`
		Token     string `json:"token"`
		Signature string `json:"signature"`
	} `json:"signature"`
	EventData *EventData `json:"event-data"`
}

// EventData is the engagement record inside a webhook payload.
type EventData struct {
	Event     string      `json:"event"`
	Recipient string      `json:"recipient"`
	Timestamp float64     `json:"timestamp"` // epoch seconds
	Tags      []string    `json:"tags"`
	URL       string      `json:"url"`
	IP        string      `json:"ip"`
	Client    *ClientInfo `json:"client-info"`
}

// ClientInfo describes the device behind an open or click.
type ClientInfo struct {
	UserAgent  string `json:"user-agent"`
	ClientName string `json:"client-name"`
	DeviceType string `json:"device-type"`
	Bot        bool   `json:"bot"`
}

// EventRepo appends engagement rows.
type EventRepo interface {
	Insert(ctx context.Context, e *domain.Event) error
}

// VariantLookup resolves a variant by campaign and label. A nil result
// with nil error means no such variant.
type VariantLookup interface {
	VariantByLabel(ctx context.Context, campaignID, label string) (*domain.Variant, error)
}

// OutcomeRepo stores re-engagement outcomes, at most one per
// (email, sequence) pair.
type OutcomeRepo interface {
	OutcomeExists(ctx context.Context, email, sequenceID string) (bool, error)
	InsertOutcome(ctx context.Context, o *domain.ReengagementOutcome) error
}

// UserResolver maps a recipient address to a directory user ID.
type UserResolver interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
}

// Ingestor turns webhook payloads into event rows and outcomes.
type Ingestor struct {
	signingKey string
	events     EventRepo
	variants   VariantLookup
	outcomes   OutcomeRepo
	users      UserResolver
}

// NewIngestor wires an ingestor. An empty signingKey disables signature
// verification; every other dependency is required.
func NewIngestor(signingKey string, events EventRepo, variants VariantLookup, outcomes OutcomeRepo, users UserResolver) *Ingestor {
	return &Ingestor{
		signingKey: signingKey,
		events:     events,
		variants:   variants,
		outcomes:   outcomes,
		users:      users,
	}
}

// Ingest validates and stores one webhook callback. Every callback adds
// a fresh event row, including exact duplicates; outcome creation is
// the only deduplicated side effect.
func (i *Ingestor) Ingest(ctx context.Context, env *Envelope) (*domain.Event, error) {
	if i.signingKey != "" {
		s := env.Signature
		if !mailgun.VerifySignature(i.signingKey, s.Timestamp, s.Token, s.Signature) {
			return nil, ErrBadSignature
		}
	}
	if env.EventData == nil {
		return nil, ErrMissingEventData
	}
	data := env.EventData

	eventType, ok := mapEventType(data.Event)
	if !ok {
		log.Printf("[Events] ignoring unhandled event type %q", data.Event)
		return nil, nil
	}

	e := &domain.Event{
		ID:        uuid.NewString(),
		EventType: eventType,
		Recipient: data.Recipient,
		Timestamp: time.Unix(int64(data.Timestamp), 0).UTC(),
		Metadata: domain.EventMetadata{
			URL:  data.URL,
			IP:   data.IP,
			Tags: data.Tags,
		},
	}
	if data.Client != nil {
		e.Metadata.UserAgent = data.Client.UserAgent
		// The provider's own bot verdict counts alongside the user-agent
		// heuristic; either one flags the event.
		e.IsBot = data.Client.Bot || isBot(data.Client.UserAgent)
	}

	campaignID, sequenceID := parseTags(data.Tags)
	if campaignID != "" {
		e.CampaignID = &campaignID
		if label := variantLabel(data.Tags); label != "" {
			v, err := i.variants.VariantByLabel(ctx, campaignID, label)
			if err != nil {
				log.Printf("[Events] variant lookup for campaign %s label %s: %v", campaignID, label, err)
			} else if v != nil {
				e.VariantID = &v.ID
			}
		}
	}

	if err := i.events.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	if eventType == domain.EventClicked && sequenceID != "" && !e.IsBot {
		i.recordOutcome(ctx, e, campaignID, sequenceID)
	}
	return e, nil
}

// recordOutcome creates the first-click outcome for a sequence
// recipient. The existence check and insert are separate statements, so
// two concurrent callbacks can in rare cases both insert; the read side
// treats outcomes per (email, sequence) as first-wins.
func (i *Ingestor) recordOutcome(ctx context.Context, e *domain.Event, campaignID, sequenceID string) {
	exists, err := i.outcomes.OutcomeExists(ctx, e.Recipient, sequenceID)
	if err != nil {
		log.Printf("[Events] outcome lookup for %s: %v", logger.RedactEmail(e.Recipient), err)
		return
	}
	if exists {
		return
	}

	var userID string
	if i.users != nil {
		userID, err = i.users.UserIDByEmail(ctx, e.Recipient)
		if err != nil {
			log.Printf("[Events] user lookup for %s: %v", logger.RedactEmail(e.Recipient), err)
		}
	}

	// ReturnedAt stays unset until the reconciliation pass observes
	// actual product activity.
	o := &domain.ReengagementOutcome{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		SequenceID: sequenceID,
		VariantID:  e.VariantID,
		UserID:     userID,
		Email:      e.Recipient,
		ClickedAt:  e.Timestamp,
	}
	if err := i.outcomes.InsertOutcome(ctx, o); err != nil {
		log.Printf("[Events] inserting outcome for %s: %v", logger.RedactEmail(e.Recipient), err)
		return
	}
	log.Printf("[Events] recorded re-engagement outcome for %s on sequence %s",
		logger.RedactEmail(e.Recipient), sequenceID)
}

// mapEventType normalizes provider event names. Mailgun reports hard
// delivery failures as "failed"; those are bounces here.
func mapEventType(event string) (domain.EventType, bool) {
	switch event {
	case "delivered":
		return domain.EventDelivered, true
	case "opened":
		return domain.EventOpened, true
	case "clicked":
		return domain.EventClicked, true
	case "unsubscribed":
		return domain.EventUnsubscribed, true
	case "complained":
		return domain.EventComplained, true
	case "failed", "bounced":
		return domain.EventBounced, true
	}
	return "", false
}

func parseTags(tags []string) (campaignID, sequenceID string) {
	for _, tag := range tags {
		if rest, ok := strings.CutPrefix(tag, "campaign-"); ok && campaignID == "" {
			campaignID = rest
		}
		if rest, ok := strings.CutPrefix(tag, "sequence-"); ok && sequenceID == "" {
			sequenceID = rest
		}
	}
	return campaignID, sequenceID
}

func variantLabel(tags []string) string {
	for _, tag := range tags {
		if rest, ok := strings.CutPrefix(tag, "variant-"); ok {
			return rest
		}
	}
	return ""
}

var botMarkers = []string{"bot", "crawler", "spider", "preview", "scanner", "barracuda", "proofpoint"}

// isBot flags link-scanner user agents so security appliances clicking
// every URL don't pollute engagement stats.
func isBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
