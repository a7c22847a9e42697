package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxzi/phishdash/internal/results"
)

// ErrorResponse is the error body returned by the platform API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the phishing platform's REST API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new platform API client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// request performs a GET and decodes the JSON response into result
func (c *Client) request(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg == "" {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %s", msg)
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FetchResults returns the campaigns and the flattened results of a workspace.
// The endpoint answers with a two-element array: [campaigns, results].
func (c *Client) FetchResults(ctx context.Context, workspaceID string) ([]results.Campaign, []results.Result, error) {
	var payload []json.RawMessage
	path := "/workspaces/" + url.PathEscape(workspaceID) + "/results"
	if err := c.request(ctx, path, &payload); err != nil {
		return nil, nil, fmt.Errorf("fetch results for workspace %s: %w", workspaceID, err)
	}

	if len(payload) != 2 {
		return nil, nil, fmt.Errorf("fetch results for workspace %s: expected [campaigns, results], got %d elements", workspaceID, len(payload))
	}

	var campaigns []results.Campaign
	if err := json.Unmarshal(payload[0], &campaigns); err != nil {
		return nil, nil, fmt.Errorf("decode campaigns: %w", err)
	}

	var all []results.Result
	if err := json.Unmarshal(payload[1], &all); err != nil {
		return nil, nil, fmt.Errorf("decode results: %w", err)
	}

	return campaigns, all, nil
}

// Workspace is a workspace as listed by the platform
type Workspace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ListWorkspaces returns the workspaces visible to the API key.
// It doubles as a connectivity check.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var ws []Workspace
	if err := c.request(ctx, "/workspaces", &ws); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return ws, nil
}
