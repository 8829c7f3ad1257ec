package microsoft

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

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin HTTP client for the Microsoft Graph REST API. The
// bearer token is supplied per call rather than held by the client,
// since a fresh token is obtained from the token store for every
// operation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Graph client against the production endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL creates a Graph client against a custom endpoint.
// Used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetURL performs a GET against an absolute URL (used to follow
// @odata.nextLink) and unmarshals the JSON response.
func (c *Client) GetURL(ctx context.Context, token, url string, result interface{}) error {
	return c.do(ctx, http.MethodGet, url, token, nil, result)
}

// Get performs a GET against a path relative to the base URL.
func (c *Client) Get(ctx context.Context, token, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, c.baseURL+path, token, nil, result)
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, token, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, c.baseURL+path, token, body, result)
}

// Patch performs a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, token, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPatch, c.baseURL+path, token, body, result)
}

func (c *Client) do(ctx context.Context, method, url, token string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provider.UnavailableError{Provider: model.ProviderMicrosoft, Cause: err}
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return &provider.UnavailableError{Provider: model.ProviderMicrosoft, Cause: readErr}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &provider.RateLimitError{
			Provider:   model.ProviderMicrosoft,
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &provider.AuthError{
			Provider: model.ProviderMicrosoft,
			Message:  graphErrorMessage(respBody, resp.StatusCode),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, url, provider.ErrItemNotFound)
	case resp.StatusCode >= 500:
		return &provider.UnavailableError{
			Provider: model.ProviderMicrosoft,
			Cause:    fmt.Errorf("status %d: %s", resp.StatusCode, graphErrorMessage(respBody, resp.StatusCode)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf(
			"unexpected status %d on %s %s: %s",
			resp.StatusCode, method, url, graphErrorMessage(respBody, resp.StatusCode),
		)
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

// retryAfter parses the Retry-After header, returning 0 when absent.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func graphErrorMessage(body []byte, status int) string {
	var envelope errorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("status %d", status)
}
