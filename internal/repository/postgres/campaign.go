// Package postgres holds the SQL implementations of the service
// repository interfaces. Queries use lib/pq positional placeholders.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/campaign"
	"github.com/jellyjelly/campaign-engine/internal/domain"
)

const campaignColumns = `id, subject, body_html, template_name, status,
	sequence_id, sequence_step, scheduled_at,
	total_recipients, total_sent, total_failed,
	completed_at, created_at, updated_at`

// CampaignRepository implements campaign.Repository.
type CampaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository wires a campaign repository.
func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID, &c.Subject, &c.BodyHTML, &c.TemplateName, &c.Status,
		&c.SequenceID, &c.SequenceStep, &c.ScheduledAt,
		&c.TotalRecipients, &c.TotalSent, &c.TotalFailed,
		&c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID fetches one campaign.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching campaign %s: %w", id, err)
	}
	return c, nil
}

// MarkSending transitions a draft to sending and snapshots the resolved
// recipient count. The status predicate makes the update a
// compare-and-swap: under concurrent triggers the database picks
// exactly one winner.
func (r *CampaignRepository) MarkSending(ctx context.Context, id string, totalRecipients int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = 'sending', total_recipients = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'draft'`, id, totalRecipients)
	if err != nil {
		return fmt.Errorf("marking campaign %s sending: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking campaign %s sending: %w", id, err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking campaign %s: %w", id, err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrNotDraft
}

// UpdateProgress persists cumulative counters mid-send.
func (r *CampaignRepository) UpdateProgress(ctx context.Context, id string, p domain.SendProgress) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaigns
		 SET total_sent = $2, total_failed = $3, total_recipients = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, p.TotalSent, p.TotalFailed, p.TotalRecipients)
	if err != nil {
		return fmt.Errorf("updating campaign %s progress: %w", id, err)
	}
	return nil
}

// Finish records the terminal status and final counters.
func (r *CampaignRepository) Finish(ctx context.Context, id string, status domain.CampaignStatus, p domain.SendProgress, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaigns
		 SET status = $2, total_sent = $3, total_failed = $4, total_recipients = $5,
		     completed_at = $6, updated_at = NOW()
		 WHERE id = $1`,
		id, status, p.TotalSent, p.TotalFailed, p.TotalRecipients, completedAt)
	if err != nil {
		return fmt.Errorf("finishing campaign %s: %w", id, err)
	}
	return nil
}

// Variants lists a campaign's A/B variants ordered by label, so variant
// A is always first.
func (r *CampaignRepository) Variants(ctx context.Context, campaignID string) ([]domain.Variant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, campaign_id, variant_label, subject, body_html, template_name,
		        split_percentage, total_recipients, total_sent, total_failed
		 FROM campaign_variants WHERE campaign_id = $1 ORDER BY variant_label`,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("listing variants for %s: %w", campaignID, err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.CampaignID, &v.Label, &v.Subject, &v.BodyHTML,
			&v.TemplateName, &v.SplitPercentage, &v.TotalRecipients, &v.TotalSent, &v.TotalFailed); err != nil {
			return nil, fmt.Errorf("scanning variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// UpdateVariantStats persists per-variant counters after its half of
// the split finishes.
func (r *CampaignRepository) UpdateVariantStats(ctx context.Context, variantID string, sent, failed int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaign_variants
		 SET total_sent = $2, total_failed = $3, total_recipients = $2 + $3
		 WHERE id = $1`,
		variantID, sent, failed)
	if err != nil {
		return fmt.Errorf("updating variant %s stats: %w", variantID, err)
	}
	return nil
}
