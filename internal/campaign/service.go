// Package campaign orchestrates campaign sends: the draft-to-sending
// guard, audience resolution, suppression filtering, A/B splits, and
// final status accounting.
package campaign

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/domain"
)

// Service runs campaigns end to end.
type Service struct {
	repo         Repository
	dispatcher   *delivery.Dispatcher
	suppressions delivery.SuppressionStore
	source       RecipientSource
	templates    *delivery.TemplateStore
	defaults     config.DeliveryConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewService wires a campaign service.
func NewService(repo Repository, dispatcher *delivery.Dispatcher, suppressions delivery.SuppressionStore,
	source RecipientSource, templates *delivery.TemplateStore, defaults config.DeliveryConfig) *Service {
	return &Service{
		repo:         repo,
		dispatcher:   dispatcher,
		suppressions: suppressions,
		source:       source,
		templates:    templates,
		defaults:     defaults,
		now:          time.Now,
	}
}

// Send runs the campaign with the given ID against the current
// directory audience. It is safe to call concurrently for the same
// campaign; exactly one caller wins the draft-to-sending transition.
func (s *Service) Send(ctx context.Context, id string) (domain.SendProgress, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.SendProgress{}, err
	}

	recipients, err := s.ResolveAudience(ctx)
	if err != nil {
		return domain.SendProgress{}, fmt.Errorf("resolving audience: %w", err)
	}
	return s.Run(ctx, c, recipients)
}

// ResolveAudience fetches the directory audience and removes suppressed
// addresses. Matching is case-insensitive.
func (s *Service) ResolveAudience(ctx context.Context) ([]domain.Recipient, error) {
	all, err := s.source.Recipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching recipients: %w", err)
	}
	suppressed, err := s.suppressions.SuppressedEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching suppression list: %w", err)
	}

	kept := make([]domain.Recipient, 0, len(all))
	for _, r := range all {
		if suppressed[strings.ToLower(r.Email)] {
			continue
		}
		kept = append(kept, r)
	}
	if dropped := len(all) - len(kept); dropped > 0 {
		log.Printf("[Campaign] suppression filter dropped %d of %d recipients", dropped, len(all))
	}
	return kept, nil
}

// Run sends a campaign to a pre-resolved, already-filtered audience.
// The scheduler uses this entry point so one audience resolution can
// serve several due campaigns.
func (s *Service) Run(ctx context.Context, c *domain.Campaign, recipients []domain.Recipient) (domain.SendProgress, error) {
	if err := s.repo.MarkSending(ctx, c.ID, len(recipients)); err != nil {
		return domain.SendProgress{}, err
	}
	log.Printf("[Campaign] %s: sending to %d recipients", c.ID, len(recipients))

	variants, err := s.repo.Variants(ctx, c.ID)
	if err != nil {
		return domain.SendProgress{}, fmt.Errorf("loading variants: %w", err)
	}

	// Anything other than a proper A/B pair sends the base content once.
	var progress domain.SendProgress
	if len(variants) == 2 {
		progress, err = s.runABTest(ctx, c, variants, recipients)
	} else {
		if len(variants) != 0 {
			log.Printf("[Campaign] %s: %d variants is not an A/B pair, sending base content", c.ID, len(variants))
		}
		progress, err = s.runSingle(ctx, c, recipients)
	}
	if err != nil {
		s.finish(ctx, c.ID, domain.CampaignFailed, progress)
		return progress, err
	}

	status := domain.CampaignCompleted
	if progress.TotalRecipients > 0 && progress.TotalFailed == progress.TotalRecipients {
		status = domain.CampaignFailed
	}
	s.finish(ctx, c.ID, status, progress)
	log.Printf("[Campaign] %s: %s (%d sent, %d failed of %d)",
		c.ID, status, progress.TotalSent, progress.TotalFailed, progress.TotalRecipients)
	return progress, nil
}

func (s *Service) runSingle(ctx context.Context, c *domain.Campaign, recipients []domain.Recipient) (domain.SendProgress, error) {
	cfg := delivery.SendConfig{
		CampaignID:   c.ID,
		Subject:      c.Subject,
		BodyHTML:     c.BodyHTML,
		TemplateHTML: s.templates.Get(c.TemplateName),
		BatchSize:    s.defaults.BatchSize,
		Delay:        s.defaults.Delay(),
		OnProgress: func(p domain.SendProgress) {
			if err := s.repo.UpdateProgress(ctx, c.ID, p); err != nil {
				log.Printf("[Campaign] %s: persisting progress: %v", c.ID, err)
			}
		},
	}
	if c.SequenceID != nil {
		cfg.SequenceID = *c.SequenceID
		cfg.SequenceStep = c.SequenceStep
	}
	return s.dispatcher.Dispatch(ctx, recipients, cfg)
}

// runABTest splits the audience by variant A's percentage and sends
// each half its own subject and body. Variant counters are persisted
// individually; campaign counters are the sum, persisted at batch
// boundaries like a single send.
func (s *Service) runABTest(ctx context.Context, c *domain.Campaign, variants []domain.Variant, recipients []domain.Recipient) (domain.SendProgress, error) {
	groupA, groupB := delivery.Split(recipients, variants[0].SplitPercentage)
	groups := [][]domain.Recipient{groupA, groupB}
	total := domain.SendProgress{TotalRecipients: len(recipients)}

	for i, v := range variants {
		doneSent, doneFailed := total.TotalSent, total.TotalFailed
		cfg := delivery.SendConfig{
			CampaignID:   c.ID,
			Subject:      v.Subject,
			BodyHTML:     v.BodyHTML,
			TemplateHTML: s.templates.Get(v.TemplateName),
			VariantLabel: v.Label,
			BatchSize:    s.defaults.BatchSize,
			Delay:        s.defaults.Delay(),
			OnProgress: func(p domain.SendProgress) {
				cumulative := domain.SendProgress{
					TotalSent:       doneSent + p.TotalSent,
					TotalFailed:     doneFailed + p.TotalFailed,
					TotalRecipients: len(recipients),
				}
				if err := s.repo.UpdateProgress(ctx, c.ID, cumulative); err != nil {
					log.Printf("[Campaign] %s: persisting progress: %v", c.ID, err)
				}
			},
		}
		if c.SequenceID != nil {
			cfg.SequenceID = *c.SequenceID
			cfg.SequenceStep = c.SequenceStep
		}
		p, err := s.dispatcher.Dispatch(ctx, groups[i], cfg)
		total.TotalSent += p.TotalSent
		total.TotalFailed += p.TotalFailed
		if err != nil {
			return total, fmt.Errorf("dispatching variant %s: %w", v.Label, err)
		}
		if err := s.repo.UpdateVariantStats(ctx, v.ID, p.TotalSent, p.TotalFailed); err != nil {
			log.Printf("[Campaign] %s: persisting variant %s stats: %v", c.ID, v.Label, err)
		}
		log.Printf("[Campaign] %s: variant %s done (%d sent, %d failed of %d)",
			c.ID, v.Label, p.TotalSent, p.TotalFailed, len(groups[i]))
	}
	return total, nil
}

// finish persists the terminal state. The send already happened, so a
// persistence failure is logged rather than returned.
func (s *Service) finish(ctx context.Context, id string, status domain.CampaignStatus, p domain.SendProgress) {
	if err := s.repo.Finish(ctx, id, status, p, s.now()); err != nil {
		log.Printf("[Campaign] %s: persisting final status %s: %v", id, status, err)
	}
}
