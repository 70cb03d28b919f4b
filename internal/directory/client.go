// Package directory fetches the subscriber base from the user directory
// API. Campaign audiences start from this list before suppression
// filtering.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/domain"
	"github.com/jellyjelly/campaign-engine/internal/pkg/httpretry"
)

// Client pages through the directory's user listing.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   httpretry.HTTPDoer
}

// NewClient builds a directory client from configuration.
func NewClient(cfg config.DirectoryConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		client:   httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}
}

type userPage struct {
	Users []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"users"`
}

// Recipients returns every directory user with an email address. Pages
// are fetched sequentially until a short page signals the end.
func (c *Client) Recipients(ctx context.Context) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/v1/users?page=%d&per_page=%d", c.baseURL, page, c.pageSize)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("building directory request: %w", err)
		}
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching directory page %d: %w", page, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading directory page %d: %w", page, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("directory page %d: status %d", page, resp.StatusCode)
		}

		var pageData userPage
		if err := json.Unmarshal(body, &pageData); err != nil {
			return nil, fmt.Errorf("decoding directory page %d: %w", page, err)
		}
		for _, u := range pageData.Users {
			if u.Email == "" {
				continue
			}
			recipients = append(recipients, domain.Recipient{Email: u.Email, UserID: u.ID})
		}
		if len(pageData.Users) < c.pageSize {
			return recipients, nil
		}
	}
}

// UserIDByEmail resolves one address to a directory user ID. An unknown
// address yields an empty ID, not an error.
func (c *Client) UserIDByEmail(ctx context.Context, email string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/users?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building directory request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading directory response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("directory lookup: status %d", resp.StatusCode)
	}

	var pageData userPage
	if err := json.Unmarshal(body, &pageData); err != nil {
		return "", fmt.Errorf("decoding directory response: %w", err)
	}
	if len(pageData.Users) == 0 {
		return "", nil
	}
	return pageData.Users[0].ID, nil
}
