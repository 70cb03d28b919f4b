package delivery

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/domain"
	"github.com/jellyjelly/campaign-engine/internal/pkg/logger"
	"github.com/jellyjelly/campaign-engine/internal/token"
)

// SendConfig describes one dispatch run. BatchSize and Delay fall back
// to 50 recipients and 1s when zero.
type SendConfig struct {
	CampaignID   string
	Subject      string
	BodyHTML     string
	TemplateHTML string
	Preheader    string

	Tags         []string
	SequenceID   string
	SequenceStep int
	VariantLabel string

	BatchSize int
	Delay     time.Duration

	// OnProgress, if set, is called with cumulative totals after every
	// completed batch.
	OnProgress ProgressFunc
}

// Dispatcher fans a campaign out to its recipients in paced batches.
// Within a batch recipients are sent concurrently; between batches the
// dispatcher pauses so provider rate limits are respected.
type Dispatcher struct {
	transport   Transport
	unsubSecret string
	siteURL     string
}

// NewDispatcher builds a dispatcher sending through transport.
// Unsubscribe links are built against siteURL and signed with
// unsubSecret.
func NewDispatcher(transport Transport, unsubSecret, siteURL string) *Dispatcher {
	return &Dispatcher{
		transport:   transport,
		unsubSecret: unsubSecret,
		siteURL:     strings.TrimRight(siteURL, "/"),
	}
}

// Dispatch sends the campaign to every recipient and returns final
// counters. Individual transport failures are counted, logged and
// skipped; only configuration errors (no transport, no campaign ID)
// abort the run. On context cancellation the counters so far are
// returned alongside the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []domain.Recipient, cfg SendConfig) (domain.SendProgress, error) {
	progress := domain.SendProgress{TotalRecipients: len(recipients)}

	if d.transport == nil {
		return progress, ErrNoTransport
	}
	if cfg.CampaignID == "" {
		return progress, fmt.Errorf("delivery: campaign ID is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = time.Second
	}
	tags := resolveTags(cfg)

	batches := Chunk(recipients, batchSize)
	log.Printf("[Delivery] campaign %s: %d recipients in %d batches of up to %d",
		cfg.CampaignID, len(recipients), len(batches), batchSize)

	for i, batch := range batches {
		var (
			mu     sync.Mutex
			sent   int
			failed int
		)
		var wg sync.WaitGroup
		for _, rcpt := range batch {
			wg.Add(1)
			go func(rcpt domain.Recipient) {
				defer wg.Done()
				res := d.transport.Send(ctx, d.buildMessage(rcpt, cfg, tags))
				mu.Lock()
				if res.Success {
					sent++
				} else {
					failed++
				}
				mu.Unlock()
				if !res.Success {
					log.Printf("[Delivery] campaign %s: send to %s failed: %s",
						cfg.CampaignID, logger.RedactEmail(rcpt.Email), res.Error)
				}
			}(rcpt)
		}
		wg.Wait()

		progress.TotalSent += sent
		progress.TotalFailed += failed
		if cfg.OnProgress != nil {
			cfg.OnProgress(progress)
		}
		log.Printf("[Delivery] campaign %s: batch %d/%d done (%d sent, %d failed)",
			cfg.CampaignID, i+1, len(batches), progress.TotalSent, progress.TotalFailed)

		// Pause between batches, but not after the last one.
		if i < len(batches)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return progress, ctx.Err()
			}
		}
	}

	return progress, nil
}

func (d *Dispatcher) buildMessage(rcpt domain.Recipient, cfg SendConfig, tags []string) Message {
	tok := token.Create(rcpt.Email, cfg.CampaignID, d.unsubSecret)
	unsubURL := d.siteURL + "/unsubscribe?token=" + url.QueryEscape(tok)

	html := Render(cfg.TemplateHTML, RenderVars{
		Body:           cfg.BodyHTML,
		Subject:        cfg.Subject,
		Preheader:      cfg.Preheader,
		UnsubscribeURL: unsubURL,
	})

	return Message{
		To:      rcpt.Email,
		Subject: cfg.Subject,
		HTML:    html,
		Tags:    tags,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}
}

// resolveTags builds the analytics tag list for a run. Explicit tags
// replace the default campaign-{id} tag; the sequence, step and variant
// tags are appended when applicable, each family at most once.
func resolveTags(cfg SendConfig) []string {
	var tags []string
	if len(cfg.Tags) > 0 {
		tags = append(tags, cfg.Tags...)
	} else {
		tags = []string{"campaign-" + cfg.CampaignID}
	}
	hasFamily := func(prefix string) bool {
		for _, t := range tags {
			if strings.HasPrefix(t, prefix) {
				return true
			}
		}
		return false
	}
	if cfg.SequenceID != "" && !hasFamily("sequence-") {
		tags = append(tags, "sequence-"+cfg.SequenceID)
	}
	if cfg.SequenceID != "" && !hasFamily("step-") {
		tags = append(tags, fmt.Sprintf("step-%d", cfg.SequenceStep))
	}
	if cfg.VariantLabel != "" && !hasFamily("variant-") {
		tags = append(tags, "variant-"+cfg.VariantLabel)
	}
	return tags
}
