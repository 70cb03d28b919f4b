package campaign

import (
	"context"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// Repository is the persistence boundary for campaigns and their
// variants.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// MarkSending transitions a draft campaign to sending and snapshots
	// the resolved recipient count. The update is conditional on the
	// current status so concurrent triggers race to a single winner;
	// losers get ErrNotDraft.
	MarkSending(ctx context.Context, id string, totalRecipients int) error

	// UpdateProgress persists cumulative send counters mid-run.
	UpdateProgress(ctx context.Context, id string, p domain.SendProgress) error

	// Finish records the terminal status and final counters.
	Finish(ctx context.Context, id string, status domain.CampaignStatus, p domain.SendProgress, completedAt time.Time) error

	// Variants returns the campaign's A/B variants ordered by label.
	Variants(ctx context.Context, campaignID string) ([]domain.Variant, error)

	// UpdateVariantStats persists per-variant send counters.
	UpdateVariantStats(ctx context.Context, variantID string, sent, failed int) error
}

// RecipientSource produces the campaign audience before suppression
// filtering.
type RecipientSource interface {
	Recipients(ctx context.Context) ([]domain.Recipient, error)
}
