package ticktick

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

const defaultBaseURL = "https://api.ticktick.com/open/v1"

// Client is a thin HTTP client for the TickTick Open API. The bearer
// token is supplied per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a TickTick client against the production endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL creates a TickTick client against a custom
// endpoint. Used by tests.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Get performs a GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, token, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, token, nil, result)
}

// Post performs a POST request with an optional JSON body.
func (c *Client) Post(ctx context.Context, token, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, token, body, result)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provider.UnavailableError{Provider: model.ProviderTickTick, Cause: err}
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return &provider.UnavailableError{Provider: model.ProviderTickTick, Cause: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		var after time.Duration
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs >= 0 {
			after = time.Duration(secs) * time.Second
		}
		return &provider.RateLimitError{Provider: model.ProviderTickTick, RetryAfter: after}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &provider.AuthError{
			Provider: model.ProviderTickTick,
			Message:  fmt.Sprintf("status %d on %s %s", resp.StatusCode, method, path),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, provider.ErrItemNotFound)
	case resp.StatusCode >= 500:
		return &provider.UnavailableError{
			Provider: model.ProviderTickTick,
			Cause:    fmt.Errorf("status %d on %s %s", resp.StatusCode, method, path),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf(
			"unexpected status %d on %s %s: %s",
			resp.StatusCode, method, path, string(respBody),
		)
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}
