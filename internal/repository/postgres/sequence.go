package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// SequenceRepository implements sequence.Store.
type SequenceRepository struct {
	db *sql.DB
}

// NewSequenceRepository wires a sequence repository.
func NewSequenceRepository(db *sql.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// DueCampaigns returns draft sequence campaigns whose scheduled time
// has passed, oldest first.
func (r *SequenceRepository) DueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignColumns+`
		 FROM campaigns
		 WHERE status = 'draft' AND sequence_id IS NOT NULL AND scheduled_at <= $1
		 ORDER BY scheduled_at`,
		now)
	if err != nil {
		return nil, fmt.Errorf("listing due campaigns: %w", err)
	}
	defer rows.Close()

	var due []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due campaign: %w", err)
		}
		due = append(due, *c)
	}
	return due, rows.Err()
}

// ClickedRecipients returns the lowercased addresses with a non-bot
// click on any earlier step of the sequence.
func (r *SequenceRepository) ClickedRecipients(ctx context.Context, sequenceID string, beforeStep int) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT LOWER(e.recipient)
		 FROM events e
		 JOIN campaigns c ON c.id = e.campaign_id
		 WHERE c.sequence_id = $1 AND c.sequence_step < $2
		   AND e.event_type = 'clicked' AND NOT e.is_bot`,
		sequenceID, beforeStep)
	if err != nil {
		return nil, fmt.Errorf("listing clicked recipients: %w", err)
	}
	defer rows.Close()

	clicked := make(map[string]bool)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scanning clicked recipient: %w", err)
		}
		clicked[strings.ToLower(email)] = true
	}
	return clicked, rows.Err()
}

// MarkCampaignFailed records a step that could not start.
func (r *SequenceRepository) MarkCampaignFailed(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = 'failed', updated_at = NOW() WHERE id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("marking campaign %s failed: %w", campaignID, err)
	}
	return nil
}

// CompleteSequence marks a sequence finished after its last step runs.
func (r *SequenceRepository) CompleteSequence(ctx context.Context, sequenceID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sequences SET status = 'completed' WHERE id = $1`, sequenceID)
	if err != nil {
		return fmt.Errorf("completing sequence %s: %w", sequenceID, err)
	}
	return nil
}

// SequenceTotalSteps returns how many steps a sequence has.
func (r *SequenceRepository) SequenceTotalSteps(ctx context.Context, sequenceID string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT total_steps FROM sequences WHERE id = $1`, sequenceID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sequence %s not found", sequenceID)
	}
	if err != nil {
		return 0, fmt.Errorf("fetching sequence %s: %w", sequenceID, err)
	}
	return total, nil
}
