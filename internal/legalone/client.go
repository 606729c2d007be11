// Package legalone talks to the Legal One REST API to discover
// completed fulfillment tasks and resolve them to case numbers.
package legalone

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MDR-Advocacia/OneSid/internal/storage"
)

// taskFilters selects the task type/subtype pairs that count as
// fulfillment work. Each filter is queried separately because the API
// caps $filter complexity.
var taskFilters = []string{
	"(typeId eq 26 and subTypeId eq 1131)",
	"(typeId eq 18 and subTypeId eq 961)",
	"(typeId eq 18 and subTypeId eq 936)",
	"(typeId eq 18 and subTypeId eq 984)",
}

// Task is one completed upstream task resolved to its case number.
type Task struct {
	ID            int64
	ProcessNumber string
	CompletedBy   string
}

// Client wraps the Legal One API with a cached OAuth token.
type Client struct {
	baseURL      string
	authURL      string
	clientID     string
	clientSecret string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a client from the legalone config section.
func NewClient(cfg storage.LegalOneConfig) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		authURL:      cfg.AuthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// getValidToken returns the cached token, refreshing it when less than
// a minute of lifetime remains.
func (c *Client) getValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt.Add(-60*time.Second)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 1800
	}

	c.token = tok.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// getJSON performs an authenticated GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	token, err := c.getValidToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", rawURL, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}

var errNotFound = fmt.Errorf("not found")

type taskPage struct {
	Value []apiTask `json:"value"`
}

type apiTask struct {
	ID            int64          `json:"id"`
	FinishedBy    string         `json:"finishedBy"`
	Relationships []relationship `json:"relationships"`
}

type relationship struct {
	ID     int64 `json:"id"`
	LinkID int64 `json:"linkId"`
}

type litigation struct {
	IdentifierNumber string `json:"identifierNumber"`
}

// FetchCompletedTasks queries the most recent completed tasks for each
// configured filter and resolves each one to its litigation's case
// number. Tasks whose litigation cannot be resolved are skipped; a
// failing filter query is logged and the remaining filters still run.
func (c *Client) FetchCompletedTasks(ctx context.Context) ([]Task, error) {
	var all []apiTask
	for _, filter := range taskFilters {
		params := url.Values{
			"$filter":  {filter + " and statusId eq 1 and relationships/any(r: r/linkType eq 'Litigation')"},
			"$expand":  {"relationships($select=id,linkId)"},
			"$select":  {"id,finishedBy,relationships"},
			"$top":     {"30"},
			"$orderby": {"id desc"},
		}

		var page taskPage
		if err := c.getJSON(ctx, c.baseURL+"/tasks?"+params.Encode(), &page); err != nil {
			log.Printf("legalone: task query failed for filter %q: %v", filter, err)
			continue
		}
		all = append(all, page.Value...)
	}

	tasks := make([]Task, 0, len(all))
	for _, t := range all {
		if len(t.Relationships) == 0 {
			continue
		}

		var lit litigation
		litURL := fmt.Sprintf("%s/litigations/%d?$select=identifierNumber", c.baseURL, t.Relationships[0].LinkID)
		if err := c.getJSON(ctx, litURL, &lit); err != nil {
			if err == errNotFound {
				log.Printf("legalone: litigation %d not found for task %d", t.Relationships[0].LinkID, t.ID)
				continue
			}
			return nil, fmt.Errorf("failed to resolve litigation for task %d: %w", t.ID, err)
		}
		if lit.IdentifierNumber == "" {
			continue
		}

		tasks = append(tasks, Task{
			ID:            t.ID,
			ProcessNumber: lit.IdentifierNumber,
			CompletedBy:   t.FinishedBy,
		})
	}

	return tasks, nil
}
