package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
)

type fakeOutcomeStore struct {
	outcomes map[string]*domain.ReengagementOutcome
}

func (f *fakeOutcomeStore) PendingSevenDay(_ context.Context, cutoff time.Time) ([]domain.ReengagementOutcome, error) {
	var due []domain.ReengagementOutcome
	for _, o := range f.outcomes {
		if o.Active7d == nil && !o.ClickedAt.After(cutoff) {
			due = append(due, *o)
		}
	}
	return due, nil
}

func (f *fakeOutcomeStore) PendingThirtyDay(_ context.Context, cutoff time.Time) ([]domain.ReengagementOutcome, error) {
	var due []domain.ReengagementOutcome
	for _, o := range f.outcomes {
		if o.Active30d == nil && !o.ClickedAt.After(cutoff) {
			due = append(due, *o)
		}
	}
	return due, nil
}

func (f *fakeOutcomeStore) SetSevenDay(_ context.Context, id string, active bool, returnedAt *time.Time) error {
	f.outcomes[id].Active7d = &active
	f.outcomes[id].ReturnedAt = returnedAt
	return nil
}

func (f *fakeOutcomeStore) SetThirtyDay(_ context.Context, id string, active, relapsed bool) error {
	f.outcomes[id].Active30d = &active
	f.outcomes[id].Relapsed = &relapsed
	return nil
}

type fakeActivity struct {
	lastActive  map[string]time.Time
	activeUsers map[string]bool
	err         error
}

func (f *fakeActivity) LastActive(_ context.Context, userID string) (*time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	if at, ok := f.lastActive[userID]; ok {
		return &at, nil
	}
	return nil, nil
}

func (f *fakeActivity) ActiveSince(_ context.Context, userID string, _ time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.activeUsers[userID], nil
}

func outcome(id, userID string, clickedAt time.Time) *domain.ReengagementOutcome {
	return &domain.ReengagementOutcome{
		ID: id, CampaignID: "c1", SequenceID: "s1",
		UserID: userID, Email: userID + "@example.com", ClickedAt: clickedAt,
	}
}

func boolPtr(b bool) *bool { return &b }

func testReconciler(store *fakeOutcomeStore, activity *fakeActivity, now time.Time) *Reconciler {
	r := NewReconciler(store, activity)
	r.now = func() time.Time { return now }
	return r
}

func TestReconcileSevenDay(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cameBack := now.Add(-24 * time.Hour)
	store := &fakeOutcomeStore{outcomes: map[string]*domain.ReengagementOutcome{
		"o1": outcome("o1", "u1", now.Add(-8*24*time.Hour)), // due, returned after the click
		"o2": outcome("o2", "u2", now.Add(-8*24*time.Hour)), // due, never seen again
		"o3": outcome("o3", "u3", now.Add(-2*24*time.Hour)), // window still open
		"o4": outcome("o4", "u4", now.Add(-8*24*time.Hour)), // due, only pre-click activity
	}}
	activity := &fakeActivity{lastActive: map[string]time.Time{
		"u1": cameBack,
		"u4": now.Add(-20 * 24 * time.Hour),
	}}

	report, err := testReconciler(store, activity, now).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if report.SevenDayChecked != 3 {
		t.Errorf("seven-day checked = %d, want 3", report.SevenDayChecked)
	}
	if got := store.outcomes["o1"].Active7d; got == nil || !*got {
		t.Error("o1 should be active at 7d")
	}
	if got := store.outcomes["o1"].ReturnedAt; got == nil || !got.Equal(cameBack) {
		t.Errorf("o1 returned_at = %v, want %v", got, cameBack)
	}
	if got := store.outcomes["o2"].Active7d; got == nil || *got {
		t.Error("o2 should be inactive at 7d")
	}
	if store.outcomes["o2"].ReturnedAt != nil {
		t.Errorf("o2 returned_at = %v, want nil", store.outcomes["o2"].ReturnedAt)
	}
	if store.outcomes["o3"].Active7d != nil {
		t.Error("o3's window has not elapsed; it must stay pending")
	}
	// Activity that predates the click is not a return.
	if got := store.outcomes["o4"].Active7d; got == nil || *got {
		t.Error("o4 should be inactive at 7d")
	}
	if store.outcomes["o4"].ReturnedAt != nil {
		t.Errorf("o4 returned_at = %v, want nil", store.outcomes["o4"].ReturnedAt)
	}
}

func TestReconcileThirtyDayAndRelapse(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clicked := now.Add(-31 * 24 * time.Hour)

	stayed := outcome("stayed", "u1", clicked)
	stayed.Active7d = boolPtr(true)
	relapsed := outcome("relapsed", "u2", clicked)
	relapsed.Active7d = boolPtr(true)
	neverBack := outcome("never", "u3", clicked)
	neverBack.Active7d = boolPtr(false)

	store := &fakeOutcomeStore{outcomes: map[string]*domain.ReengagementOutcome{
		"stayed": stayed, "relapsed": relapsed, "never": neverBack,
	}}
	activity := &fakeActivity{activeUsers: map[string]bool{"u1": true}}

	report, err := testReconciler(store, activity, now).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if report.ThirtyDayChecked != 3 || report.Relapsed != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := store.outcomes["stayed"]; *got.Active30d != true || *got.Relapsed != false {
		t.Errorf("stayed = active30d %v relapsed %v", *got.Active30d, *got.Relapsed)
	}
	// Active in week one, silent afterwards: that is a relapse.
	if got := store.outcomes["relapsed"]; *got.Active30d != false || *got.Relapsed != true {
		t.Errorf("relapsed = active30d %v relapsed %v", *got.Active30d, *got.Relapsed)
	}
	// Never came back at all: inactive but not a relapse.
	if got := store.outcomes["never"]; *got.Active30d != false || *got.Relapsed != false {
		t.Errorf("never = active30d %v relapsed %v", *got.Active30d, *got.Relapsed)
	}
}

func TestReconcileActivityFailureCountsInactive(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := &fakeOutcomeStore{outcomes: map[string]*domain.ReengagementOutcome{
		"o1": outcome("o1", "u1", now.Add(-8*24*time.Hour)),
	}}
	activity := &fakeActivity{err: errors.New("activity API down")}

	report, err := testReconciler(store, activity, now).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.SevenDayChecked != 1 {
		t.Errorf("checked = %d", report.SevenDayChecked)
	}
	if got := store.outcomes["o1"].Active7d; got == nil || *got {
		t.Error("API failure should record the user as inactive")
	}
}
