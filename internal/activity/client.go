// Package activity queries the product activity API used to judge
// whether a re-engaged user actually came back.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/pkg/httpretry"
)

// Client reads per-user activity timestamps.
type Client struct {
	baseURL string
	client  httpretry.HTTPDoer
}

// NewClient builds an activity client from configuration.
func NewClient(cfg config.ActivityConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

type activityResponse struct {
	LastActiveAt *time.Time `json:"last_active_at"`
}

// LastActive returns the user's most recent activity timestamp, or nil
// when the user has none recorded.
func (c *Client) LastActive(ctx context.Context, userID string) (*time.Time, error) {
	endpoint := fmt.Sprintf("%s/v3/user/%s/activity", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building activity request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching activity for user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading activity response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("activity API returned %d", resp.StatusCode)
	}

	var ar activityResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("decoding activity response: %w", err)
	}
	return ar.LastActiveAt, nil
}

// ActiveSince reports whether the user has activity at or after the
// cutoff.
func (c *Client) ActiveSince(ctx context.Context, userID string, cutoff time.Time) (bool, error) {
	last, err := c.LastActive(ctx, userID)
	if err != nil {
		return false, err
	}
	return last != nil && !last.Before(cutoff), nil
}
