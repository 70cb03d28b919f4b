package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

const outcomeColumns = `id, campaign_id, sequence_id, variant_id, user_id, email,
	clicked_at, active_7d, active_30d, returned_at, relapsed`

// OutcomeRepository implements sequence.OutcomeStore and
// events.OutcomeRepo.
type OutcomeRepository struct {
	db *sql.DB
}

// NewOutcomeRepository wires an outcome repository.
func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// OutcomeExists reports whether an outcome already exists for the
// (email, sequence) pair. Matching is case-insensitive on email.
func (r *OutcomeRepository) OutcomeExists(ctx context.Context, email, sequenceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM reengagement_outcomes
		   WHERE LOWER(email) = LOWER($1) AND sequence_id = $2)`,
		email, sequenceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking outcome: %w", err)
	}
	return exists, nil
}

// InsertOutcome stores a fresh outcome row.
func (r *OutcomeRepository) InsertOutcome(ctx context.Context, o *domain.ReengagementOutcome) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reengagement_outcomes
		   (id, campaign_id, sequence_id, variant_id, user_id, email, clicked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.CampaignID, o.SequenceID, o.VariantID, o.UserID, o.Email, o.ClickedAt)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}
	return nil
}

func (r *OutcomeRepository) pending(ctx context.Context, flagColumn string, cutoff time.Time) ([]domain.ReengagementOutcome, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM reengagement_outcomes WHERE %s IS NULL AND clicked_at <= $1`,
		outcomeColumns, flagColumn)
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing pending outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.ReengagementOutcome
	for rows.Next() {
		var o domain.ReengagementOutcome
		if err := rows.Scan(&o.ID, &o.CampaignID, &o.SequenceID, &o.VariantID, &o.UserID,
			&o.Email, &o.ClickedAt, &o.Active7d, &o.Active30d, &o.ReturnedAt, &o.Relapsed); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PendingSevenDay lists outcomes whose 7-day window elapsed unrecorded.
func (r *OutcomeRepository) PendingSevenDay(ctx context.Context, cutoff time.Time) ([]domain.ReengagementOutcome, error) {
	return r.pending(ctx, "active_7d", cutoff)
}

// PendingThirtyDay lists outcomes whose 30-day window elapsed
// unrecorded.
func (r *OutcomeRepository) PendingThirtyDay(ctx context.Context, cutoff time.Time) ([]domain.ReengagementOutcome, error) {
	return r.pending(ctx, "active_30d", cutoff)
}

// SetSevenDay records the 7-day activity flag and the return timestamp
// observed by the activity collaborator.
func (r *OutcomeRepository) SetSevenDay(ctx context.Context, id string, active bool, returnedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reengagement_outcomes SET active_7d = $2, returned_at = $3 WHERE id = $1`,
		id, active, returnedAt)
	if err != nil {
		return fmt.Errorf("recording 7-day outcome %s: %w", id, err)
	}
	return nil
}

// SetThirtyDay records the 30-day activity flag and the relapse verdict.
func (r *OutcomeRepository) SetThirtyDay(ctx context.Context, id string, active, relapsed bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reengagement_outcomes SET active_30d = $2, relapsed = $3 WHERE id = $1`,
		id, active, relapsed)
	if err != nil {
		return fmt.Errorf("recording 30-day outcome %s: %w", id, err)
	}
	return nil
}
