// Package sequence drives multi-step re-engagement sequences: finding
// due step campaigns, filtering recipients who already came back, and
// reconciling 7/30-day outcome windows.
package sequence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/campaign"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// Store is the persistence boundary for scheduling.
type Store interface {
	// DueCampaigns returns draft campaigns that belong to a sequence and
	// whose scheduled time is at or before now.
	DueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// ClickedRecipients returns the lowercased addresses with a
	// non-bot click on any step of the sequence before the given step.
	ClickedRecipients(ctx context.Context, sequenceID string, beforeStep int) (map[string]bool, error)

	// MarkCampaignFailed records a campaign that could not be started.
	MarkCampaignFailed(ctx context.Context, campaignID string) error

	// CompleteSequence marks a sequence as finished.
	CompleteSequence(ctx context.Context, sequenceID string) error

	// SequenceTotalSteps returns how many steps the sequence has.
	SequenceTotalSteps(ctx context.Context, sequenceID string) (int, error)
}

// TemplateChecker reports whether a named template exists. The campaign
// service falls back to the default shell for unknown names; the
// scheduler instead fails the step, since a sequence step naming a
// missing template is a content bug worth surfacing.
type TemplateChecker interface {
	Has(name string) bool
}

// CampaignResult describes one processed step campaign.
type CampaignResult struct {
	CampaignID string `json:"campaignId"`
	SequenceID string `json:"sequenceId"`
	Step       int    `json:"step"`
	Status     string `json:"status"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// RunReport summarizes one scheduler tick.
type RunReport struct {
	Processed int              `json:"processed"`
	Results   []CampaignResult `json:"results"`
}

// Scheduler finds and sends due sequence steps.
type Scheduler struct {
	store     Store
	campaigns *campaign.Service
	templates TemplateChecker

	now func() time.Time
}

// NewScheduler wires a scheduler.
func NewScheduler(store Store, campaigns *campaign.Service, templates TemplateChecker) *Scheduler {
	return &Scheduler{store: store, campaigns: campaigns, templates: templates, now: time.Now}
}

// RunDue processes every due sequence campaign. The directory audience
// is resolved once and shared across campaigns; a failure in one
// campaign never blocks the others.
func (s *Scheduler) RunDue(ctx context.Context) (*RunReport, error) {
	now := s.now()
	due, err := s.store.DueCampaigns(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing due campaigns: %w", err)
	}
	report := &RunReport{Results: []CampaignResult{}}
	if len(due) == 0 {
		return report, nil
	}
	log.Printf("[Scheduler] %d due sequence campaigns", len(due))

	base, err := s.campaigns.ResolveAudience(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving audience: %w", err)
	}

	for i := range due {
		c := &due[i]
		result := s.runOne(ctx, c, base)
		report.Processed++
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (s *Scheduler) runOne(ctx context.Context, c *domain.Campaign, base []domain.Recipient) CampaignResult {
	result := CampaignResult{
		CampaignID: c.ID,
		Step:       c.SequenceStep,
	}
	if c.SequenceID != nil {
		result.SequenceID = *c.SequenceID
	}

	if c.TemplateName != "" && !s.templates.Has(c.TemplateName) {
		log.Printf("[Scheduler] campaign %s names missing template %q, failing it", c.ID, c.TemplateName)
		if err := s.store.MarkCampaignFailed(ctx, c.ID); err != nil {
			log.Printf("[Scheduler] marking campaign %s failed: %v", c.ID, err)
		}
		result.Status = string(domain.CampaignFailed)
		result.Error = fmt.Sprintf("template %q not found", c.TemplateName)
		return result
	}

	recipients, err := s.stepRecipients(ctx, c, base)
	if err != nil {
		result.Status = string(domain.CampaignFailed)
		result.Error = err.Error()
		return result
	}

	progress, err := s.campaigns.Run(ctx, c, recipients)
	result.Sent = progress.TotalSent
	result.Failed = progress.TotalFailed
	if err != nil {
		log.Printf("[Scheduler] campaign %s: %v", c.ID, err)
		result.Status = string(domain.CampaignFailed)
		result.Error = err.Error()
		return result
	}
	result.Status = string(domain.CampaignCompleted)

	s.maybeCompleteSequence(ctx, c)
	return result
}

// stepRecipients narrows the shared audience for one step. From step
// two onward, anyone who clicked an earlier step of the sequence is
// already re-engaged and is left alone.
func (s *Scheduler) stepRecipients(ctx context.Context, c *domain.Campaign, base []domain.Recipient) ([]domain.Recipient, error) {
	if c.SequenceID == nil || c.SequenceStep <= 1 {
		return base, nil
	}
	clicked, err := s.store.ClickedRecipients(ctx, *c.SequenceID, c.SequenceStep)
	if err != nil {
		return nil, fmt.Errorf("loading clicked recipients: %w", err)
	}
	kept := make([]domain.Recipient, 0, len(base))
	for _, r := range base {
		if clicked[strings.ToLower(r.Email)] {
			continue
		}
		kept = append(kept, r)
	}
	if dropped := len(base) - len(kept); dropped > 0 {
		log.Printf("[Scheduler] campaign %s step %d: skipping %d re-engaged recipients",
			c.ID, c.SequenceStep, dropped)
	}
	return kept, nil
}

func (s *Scheduler) maybeCompleteSequence(ctx context.Context, c *domain.Campaign) {
	if c.SequenceID == nil {
		return
	}
	total, err := s.store.SequenceTotalSteps(ctx, *c.SequenceID)
	if err != nil {
		log.Printf("[Scheduler] loading sequence %s: %v", *c.SequenceID, err)
		return
	}
	if c.SequenceStep < total {
		return
	}
	if err := s.store.CompleteSequence(ctx, *c.SequenceID); err != nil {
		log.Printf("[Scheduler] completing sequence %s: %v", *c.SequenceID, err)
		return
	}
	log.Printf("[Scheduler] sequence %s completed at step %d", *c.SequenceID, c.SequenceStep)
}

var _ TemplateChecker = (*delivery.TemplateStore)(nil)
