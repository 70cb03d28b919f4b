package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// EventRepository implements events.EventRepo and events.VariantLookup.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository wires an event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends one engagement row. Metadata is stored as JSONB;
// duplicate callbacks produce duplicate rows on purpose.
func (r *EventRepository) Insert(ctx context.Context, e *domain.Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, campaign_id, variant_id, event_type, recipient, timestamp, metadata, is_bot)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.CampaignID, e.VariantID, e.EventType, e.Recipient, e.Timestamp, metadata, e.IsBot)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// VariantByLabel resolves a variant for webhook attribution. A missing
// variant is not an error; the event is simply stored without one.
func (r *EventRepository) VariantByLabel(ctx context.Context, campaignID, label string) (*domain.Variant, error) {
	var v domain.Variant
	err := r.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, variant_label, subject, body_html, template_name,
		        split_percentage, total_recipients, total_sent, total_failed
		 FROM campaign_variants WHERE campaign_id = $1 AND variant_label = $2`,
		campaignID, label).Scan(
		&v.ID, &v.CampaignID, &v.Label, &v.Subject, &v.BodyHTML,
		&v.TemplateName, &v.SplitPercentage, &v.TotalRecipients, &v.TotalSent, &v.TotalFailed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching variant %s/%s: %w", campaignID, label, err)
	}
	return &v, nil
}
