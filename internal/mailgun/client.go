// Package mailgun is a minimal Mailgun v3 API client covering message
// submission and suppression management for the campaign engine.
package mailgun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/domain"
	"github.com/jellyjelly/campaign-engine/internal/pkg/httpretry"
)

// Client talks to the Mailgun HTTP API. It satisfies both
// delivery.Transport and delivery.SuppressionStore.
type Client struct {
	apiKey  string
	domain  string
	baseURL string
	client  httpretry.HTTPDoer
}

// NewClient builds a Mailgun client from configuration. Requests are
// retried on transient failures.
func NewClient(cfg config.MailgunConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		domain:  cfg.Domain,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}
}

// sendResponse is Mailgun's message submission reply.
type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send submits one message. From, Reply-To and the mailer header are
// derived from the sending domain; per-message headers and tags come
// from the caller.
func (c *Client) Send(ctx context.Context, msg delivery.Message) delivery.SendResult {
	form := url.Values{}
	form.Set("from", fmt.Sprintf("Campaigns <campaigns@%s>", c.domain))
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTML)
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}
	form.Set("h:Reply-To", "support@"+c.domain)
	form.Set("h:X-Mailer", "campaign-engine")
	for k, v := range msg.Headers {
		form.Set("h:"+k, v)
	}
	for _, tag := range msg.Tags {
		form.Add("o:tag", tag)
	}
	form.Set("o:tracking", "yes")
	form.Set("o:tracking-clicks", "yes")
	form.Set("o:tracking-opens", "yes")

	endpoint := fmt.Sprintf("%s/v3/%s/messages", c.baseURL, c.domain)
	body, status, err := c.do(ctx, http.MethodPost, endpoint, form)
	if err != nil {
		return delivery.SendResult{Error: err.Error()}
	}
	if status < 200 || status >= 300 {
		return delivery.SendResult{Error: fmt.Sprintf("mailgun returned %d: %s", status, truncate(body, 200))}
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return delivery.SendResult{Error: fmt.Sprintf("decoding mailgun response: %v", err)}
	}
	return delivery.SendResult{Success: true, ID: resp.ID, Message: resp.Message}
}

// suppressionItem covers the shared shape of unsubscribe, bounce and
// complaint records.
type suppressionItem struct {
	Address   string   `json:"address"`
	CreatedAt string   `json:"created_at"`
	Code      string   `json:"code,omitempty"`
	Error     string   `json:"error,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type suppressionPage struct {
	Items  []suppressionItem `json:"items"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func suppressionPath(kind domain.SuppressionType) (string, error) {
	switch kind {
	case domain.SuppressionUnsubscribe:
		return "unsubscribes", nil
	case domain.SuppressionBounce:
		return "bounces", nil
	case domain.SuppressionComplaint:
		return "complaints", nil
	}
	return "", fmt.Errorf("unknown suppression type %q", kind)
}

// Suppressions lists every entry of one suppression type, following
// Mailgun's cursor pagination until an empty page.
func (c *Client) Suppressions(ctx context.Context, kind domain.SuppressionType) ([]domain.SuppressionEntry, error) {
	path, err := suppressionPath(kind)
	if err != nil {
		return nil, err
	}

	next := fmt.Sprintf("%s/v3/%s/%s?limit=1000", c.baseURL, c.domain, path)
	var entries []domain.SuppressionEntry
	for next != "" {
		body, status, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", path, err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("listing %s: status %d: %s", path, status, truncate(body, 200))
		}

		var page suppressionPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding %s page: %w", path, err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, it := range page.Items {
			entries = append(entries, domain.SuppressionEntry{
				Address:   it.Address,
				Type:      kind,
				CreatedAt: it.CreatedAt,
				Code:      it.Code,
				Error:     it.Error,
				Tags:      it.Tags,
			})
		}
		next = page.Paging.Next
	}
	return entries, nil
}

// SuppressedEmails returns the union of unsubscribed, bounced and
// complained addresses, lowercased for case-insensitive matching.
func (c *Client) SuppressedEmails(ctx context.Context) (map[string]bool, error) {
	suppressed := make(map[string]bool)
	for _, kind := range []domain.SuppressionType{
		domain.SuppressionUnsubscribe,
		domain.SuppressionBounce,
		domain.SuppressionComplaint,
	} {
		entries, err := c.Suppressions(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			suppressed[strings.ToLower(e.Address)] = true
		}
	}
	log.Printf("[Mailgun] suppression list has %d addresses", len(suppressed))
	return suppressed, nil
}

// AddUnsubscribe records an address on the domain unsubscribe list.
func (c *Client) AddUnsubscribe(ctx context.Context, email string) error {
	form := url.Values{}
	form.Set("address", email)
	form.Set("tag", "*")

	endpoint := fmt.Sprintf("%s/v3/%s/unsubscribes", c.baseURL, c.domain)
	body, status, err := c.do(ctx, http.MethodPost, endpoint, form)
	if err != nil {
		return fmt.Errorf("adding unsubscribe: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("adding unsubscribe: status %d: %s", status, truncate(body, 200))
	}
	return nil
}

// RemoveUnsubscribe deletes an address from the unsubscribe list. A 404
// is treated as success: the address is not suppressed either way.
func (c *Client) RemoveUnsubscribe(ctx context.Context, email string) error {
	endpoint := fmt.Sprintf("%s/v3/%s/unsubscribes/%s", c.baseURL, c.domain, url.PathEscape(email))
	body, status, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("removing unsubscribe: %w", err)
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("removing unsubscribe: status %d: %s", status, truncate(body, 200))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values) ([]byte, int, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth("api", c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
