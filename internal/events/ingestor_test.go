package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

const signingKey = "whsec-test"

type fakeEventRepo struct {
	inserted []*domain.Event
}

func (f *fakeEventRepo) Insert(_ context.Context, e *domain.Event) error {
	f.inserted = append(f.inserted, e)
	return nil
}

type fakeVariants struct {
	byLabel map[string]*domain.Variant // key campaignID+"/"+label
}

func (f *fakeVariants) VariantByLabel(_ context.Context, campaignID, label string) (*domain.Variant, error) {
	return f.byLabel[campaignID+"/"+label], nil
}

type fakeOutcomes struct {
	existing map[string]bool // email+"/"+sequenceID
	inserted []*domain.ReengagementOutcome
}

func (f *fakeOutcomes) OutcomeExists(_ context.Context, email, sequenceID string) (bool, error) {
	return f.existing[email+"/"+sequenceID], nil
}

func (f *fakeOutcomes) InsertOutcome(_ context.Context, o *domain.ReengagementOutcome) error {
	f.existing[o.Email+"/"+o.SequenceID] = true
	f.inserted = append(f.inserted, o)
	return nil
}

type fakeUsers struct{ ids map[string]string }

func (f *fakeUsers) UserIDByEmail(_ context.Context, email string) (string, error) {
	return f.ids[email], nil
}

func setup() (*Ingestor, *fakeEventRepo, *fakeOutcomes) {
	eventRepo := &fakeEventRepo{}
	outcomes := &fakeOutcomes{existing: map[string]bool{}}
	variants := &fakeVariants{byLabel: map[string]*domain.Variant{
		"c1/A": {ID: "v-a", CampaignID: "c1", Label: "A"},
	}}
	users := &fakeUsers{ids: map[string]string{"user@example.com": "u1"}}
	return NewIngestor(signingKey, eventRepo, variants, outcomes, users), eventRepo, outcomes
}

func signedEnvelope(data *EventData) *Envelope {
	env := &Envelope{EventData: data}
	env.Signature.Timestamp = "1700000000"
	env.Signature.Token = "token-abc"
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(env.Signature.Timestamp + env.Signature.Token))
	env.Signature.Signature = hex.EncodeToString(mac.Sum(nil))
	return env
}

func clickData() *EventData {
	return &EventData{
		Event:     "clicked",
		Recipient: "user@example.com",
		Timestamp: 1756400000,
		Tags:      []string{"campaign", "campaign-c1", "sequence-s1", "step-2", "variant-A"},
		URL:       "https://jellyjelly.com/welcome-back",
		IP:        "203.0.113.9",
		Client:    &ClientInfo{UserAgent: "Mozilla/5.0"},
	}
}

func TestIngestClickCreatesEventAndOutcome(t *testing.T) {
	ing, eventRepo, outcomes := setup()

	e, err := ing.Ingest(context.Background(), signedEnvelope(clickData()))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if e.EventType != domain.EventClicked || e.Recipient != "user@example.com" {
		t.Errorf("event = %+v", e)
	}
	if e.CampaignID == nil || *e.CampaignID != "c1" {
		t.Errorf("campaign attribution = %v", e.CampaignID)
	}
	if e.VariantID == nil || *e.VariantID != "v-a" {
		t.Errorf("variant attribution = %v", e.VariantID)
	}
	if want := time.Unix(1756400000, 0).UTC(); !e.Timestamp.Equal(want) {
		t.Errorf("timestamp = %s, want %s", e.Timestamp, want)
	}
	if e.IsBot {
		t.Error("human click flagged as bot")
	}

	if len(eventRepo.inserted) != 1 {
		t.Fatalf("inserted %d events", len(eventRepo.inserted))
	}
	if len(outcomes.inserted) != 1 {
		t.Fatalf("inserted %d outcomes", len(outcomes.inserted))
	}
	o := outcomes.inserted[0]
	if o.SequenceID != "s1" || o.CampaignID != "c1" || o.UserID != "u1" {
		t.Errorf("outcome = %+v", o)
	}
	// returned_at is owned by the reconciliation pass; the click alone
	// proves nothing about a return to the product.
	if o.ReturnedAt != nil {
		t.Errorf("outcome returned_at = %v, want nil at insert", o.ReturnedAt)
	}
}

func TestIngestDuplicateWebhook(t *testing.T) {
	ing, eventRepo, outcomes := setup()
	ctx := context.Background()

	env := signedEnvelope(clickData())
	if _, err := ing.Ingest(ctx, env); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if _, err := ing.Ingest(ctx, signedEnvelope(clickData())); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	// Events are append-only; the outcome is created once.
	if len(eventRepo.inserted) != 2 {
		t.Errorf("inserted %d events, want 2", len(eventRepo.inserted))
	}
	if len(outcomes.inserted) != 1 {
		t.Errorf("inserted %d outcomes, want 1", len(outcomes.inserted))
	}
}

func TestIngestBadSignature(t *testing.T) {
	ing, eventRepo, _ := setup()

	env := signedEnvelope(clickData())
	env.Signature.Signature = "deadbeef"
	if _, err := ing.Ingest(context.Background(), env); err != ErrBadSignature {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
	if len(eventRepo.inserted) != 0 {
		t.Error("no event should be stored for a bad signature")
	}
}

func TestIngestMissingEventData(t *testing.T) {
	ing, _, _ := setup()
	env := signedEnvelope(nil)
	if _, err := ing.Ingest(context.Background(), env); err != ErrMissingEventData {
		t.Errorf("err = %v, want ErrMissingEventData", err)
	}
}

func TestIngestFailedMapsToBounced(t *testing.T) {
	ing, eventRepo, _ := setup()

	data := clickData()
	data.Event = "failed"
	if _, err := ing.Ingest(context.Background(), signedEnvelope(data)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if eventRepo.inserted[0].EventType != domain.EventBounced {
		t.Errorf("event type = %s, want bounced", eventRepo.inserted[0].EventType)
	}
}

func TestIngestUnknownEventIgnored(t *testing.T) {
	ing, eventRepo, _ := setup()

	data := clickData()
	data.Event = "accepted"
	e, err := ing.Ingest(context.Background(), signedEnvelope(data))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if e != nil || len(eventRepo.inserted) != 0 {
		t.Error("unhandled event type should be dropped without a row")
	}
}

func TestIngestBotClickSkipsOutcome(t *testing.T) {
	ing, eventRepo, outcomes := setup()

	data := clickData()
	data.Client = &ClientInfo{UserAgent: "Barracuda Sentinel (EE)"}
	e, err := ing.Ingest(context.Background(), signedEnvelope(data))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if !e.IsBot {
		t.Error("scanner user agent should be flagged as bot")
	}
	// The event row is still recorded for audit; only the outcome is
	// withheld.
	if len(eventRepo.inserted) != 1 {
		t.Errorf("inserted %d events, want 1", len(eventRepo.inserted))
	}
	if len(outcomes.inserted) != 0 {
		t.Errorf("bot click created %d outcomes", len(outcomes.inserted))
	}
}

func TestIngestProviderBotFlagSkipsOutcome(t *testing.T) {
	ing, eventRepo, outcomes := setup()

	// An ordinary browser user agent, but the provider's own client
	// analysis marked the click as automated.
	data := clickData()
	data.Client = &ClientInfo{UserAgent: "Mozilla/5.0", Bot: true}
	e, err := ing.Ingest(context.Background(), signedEnvelope(data))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if !e.IsBot {
		t.Error("provider bot verdict should flag the event")
	}
	if len(eventRepo.inserted) != 1 {
		t.Errorf("inserted %d events, want 1", len(eventRepo.inserted))
	}
	if len(outcomes.inserted) != 0 {
		t.Errorf("bot click created %d outcomes", len(outcomes.inserted))
	}
}

func TestIngestNonSequenceClickNoOutcome(t *testing.T) {
	ing, _, outcomes := setup()

	data := clickData()
	data.Tags = []string{"campaign", "campaign-c1"}
	if _, err := ing.Ingest(context.Background(), signedEnvelope(data)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(outcomes.inserted) != 0 {
		t.Error("click without sequence tag should not create an outcome")
	}
}

func TestIngestNoSigningKeySkipsVerification(t *testing.T) {
	eventRepo := &fakeEventRepo{}
	outcomes := &fakeOutcomes{existing: map[string]bool{}}
	ing := NewIngestor("", eventRepo, &fakeVariants{}, outcomes, nil)

	env := &Envelope{EventData: clickData()}
	if _, err := ing.Ingest(context.Background(), env); err != nil {
		t.Fatalf("Ingest without signing key: %v", err)
	}
	if len(eventRepo.inserted) != 1 {
		t.Error("event should be stored when verification is disabled")
	}
}
