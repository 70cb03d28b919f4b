package sequence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
	"github.com/jellyjelly/campaign-engine/internal/pkg/logger"
)

// OutcomeStore is the persistence boundary for re-engagement outcomes.
type OutcomeStore interface {
	// PendingSevenDay returns outcomes clicked at or before cutoff whose
	// 7-day flag is not yet recorded.
	PendingSevenDay(ctx context.Context, cutoff time.Time) ([]domain.ReengagementOutcome, error)

	// PendingThirtyDay returns outcomes clicked at or before cutoff whose
	// 30-day flag is not yet recorded.
	PendingThirtyDay(ctx context.Context, cutoff time.Time) ([]domain.ReengagementOutcome, error)

	// SetSevenDay records the 7-day flag and, when known, the timestamp
	// of the user's return.
	SetSevenDay(ctx context.Context, id string, active bool, returnedAt *time.Time) error
	SetThirtyDay(ctx context.Context, id string, active, relapsed bool) error
}

// ActivityChecker exposes the product activity collaborator: the user's
// most recent activity timestamp, and whether any activity happened at
// or after a cutoff.
type ActivityChecker interface {
	LastActive(ctx context.Context, userID string) (*time.Time, error)
	ActiveSince(ctx context.Context, userID string, cutoff time.Time) (bool, error)
}

// Reconciler fills in outcome windows as they elapse. A clicked winback
// email opens two windows: active_7d records whether the user showed up
// within a week of the click, active_30d whether they stayed around
// after that first week. relapsed marks the users who came back briefly
// and then disappeared again.
type Reconciler struct {
	store    OutcomeStore
	activity ActivityChecker

	now func() time.Time
}

// NewReconciler wires an outcome reconciler.
func NewReconciler(store OutcomeStore, activity ActivityChecker) *Reconciler {
	return &Reconciler{store: store, activity: activity, now: time.Now}
}

// ReconcileReport counts what one reconciliation pass recorded.
type ReconcileReport struct {
	SevenDayChecked  int `json:"seven_day_checked"`
	ThirtyDayChecked int `json:"thirty_day_checked"`
	Relapsed         int `json:"relapsed"`
}

// Reconcile processes every outcome whose 7-day or 30-day window has
// elapsed. An activity API failure counts the user as inactive rather
// than blocking the pass; persistence failures are logged and the row
// retried on the next tick.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	now := r.now()
	report := &ReconcileReport{}

	sevenDue, err := r.store.PendingSevenDay(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("listing 7-day outcomes: %w", err)
	}
	for _, o := range sevenDue {
		active, returnedAt := r.sevenDayActivity(ctx, o)
		if err := r.store.SetSevenDay(ctx, o.ID, active, returnedAt); err != nil {
			log.Printf("[Outcomes] recording 7d for %s: %v", logger.RedactEmail(o.Email), err)
			continue
		}
		report.SevenDayChecked++
	}

	thirtyDue, err := r.store.PendingThirtyDay(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("listing 30-day outcomes: %w", err)
	}
	for _, o := range thirtyDue {
		// Activity during the first week already counted toward the
		// 7-day flag; staying active means showing up after it.
		active := r.checkActivity(ctx, o.UserID, o.ClickedAt.Add(7*24*time.Hour))
		relapsed := o.Active7d != nil && *o.Active7d && !active
		if err := r.store.SetThirtyDay(ctx, o.ID, active, relapsed); err != nil {
			log.Printf("[Outcomes] recording 30d for %s: %v", logger.RedactEmail(o.Email), err)
			continue
		}
		report.ThirtyDayChecked++
		if relapsed {
			report.Relapsed++
		}
	}

	if report.SevenDayChecked > 0 || report.ThirtyDayChecked > 0 {
		log.Printf("[Outcomes] reconciled %d seven-day and %d thirty-day outcomes (%d relapsed)",
			report.SevenDayChecked, report.ThirtyDayChecked, report.Relapsed)
	}
	return report, nil
}

// sevenDayActivity resolves the 7-day verdict from the user's most
// recent activity timestamp, which doubles as the recorded return time.
// Activity before the click does not count as a return.
func (r *Reconciler) sevenDayActivity(ctx context.Context, o domain.ReengagementOutcome) (bool, *time.Time) {
	last, err := r.activity.LastActive(ctx, o.UserID)
	if err != nil {
		log.Printf("[Outcomes] activity check for user %s failed, counting as inactive: %v", o.UserID, err)
		return false, nil
	}
	if last == nil || last.Before(o.ClickedAt) {
		return false, nil
	}
	return true, last
}

func (r *Reconciler) checkActivity(ctx context.Context, userID string, cutoff time.Time) bool {
	active, err := r.activity.ActiveSince(ctx, userID, cutoff)
	if err != nil {
		log.Printf("[Outcomes] activity check for user %s failed, counting as inactive: %v", userID, err)
		return false
	}
	return active
}
