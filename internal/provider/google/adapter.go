// Package google implements the Gmail provider adapter on top of the
// official google.golang.org/api client.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

const (
	labelInbox   = "INBOX"
	labelUnread  = "UNREAD"
	labelStarred = "STARRED"

	listPageSize = 100
)

// Adapter implements provider.Provider for Gmail.
type Adapter struct {
	accountID string
	userIndex int
	opts      []option.ClientOption
}

// NewAdapter creates a Gmail adapter for one account. userIndex is the
// account's slot in the Gmail web UI, used for deep links. Extra client
// options (e.g., a custom endpoint) are for tests.
func NewAdapter(accountID string, userIndex int, opts ...option.ClientOption) *Adapter {
	return &Adapter{
		accountID: accountID,
		userIndex: userIndex,
		opts:      opts,
	}
}

// Type returns the provider type identifier for Gmail.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderGoogle
}

// Capabilities reports fetch, archive, and star support. Gmail has no
// task completion.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet(provider.CapFetch | provider.CapArchive | provider.CapStar)
}

// service builds a Gmail API client bound to the access token supplied
// for this one call. Tokens come from the token store per operation, so
// the service is never cached.
func (a *Adapter) service(ctx context.Context, token string) (*gmail.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, a.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, &provider.UnavailableError{Provider: model.ProviderGoogle, Cause: err}
	}
	return svc, nil
}

// FetchItems lists inbox message IDs received since the given instant,
// then fetches each message's metadata and normalizes it.
func (a *Adapter) FetchItems(ctx context.Context, token string, since time.Time) ([]model.Item, error) {
	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("in:inbox after:%d", since.Unix())

	var ids []string
	pageToken := ""
	for {
		call := svc.Users.Messages.List("me").
			Q(query).
			MaxResults(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing Gmail messages: %w", mapError(err))
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		msg, err := svc.Users.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders("Subject", "From").
			Context(ctx).
			Do()
		if err != nil {
			// Skip individual message failures; a partially missing
			// message must not abort the whole fetch.
			continue
		}
		items = append(items, a.messageToItem(msg))
	}

	return items, nil
}

// messageToItem normalizes a Gmail message into the common item shape.
func (a *Adapter) messageToItem(msg *gmail.Message) model.Item {
	headers := map[string]string{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	title := headers["Subject"]
	if title == "" {
		title = "(No subject)"
	}

	sender := parseFromHeader(headers["From"])
	if sender == "" {
		sender = "Unknown"
	}

	var received time.Time
	if msg.InternalDate > 0 {
		received = time.UnixMilli(msg.InternalDate)
	}

	status := model.StatusRead
	for _, label := range msg.LabelIds {
		switch label {
		case labelStarred:
			status = model.StatusStarred
		case labelUnread:
			if status != model.StatusStarred {
				status = model.StatusUnread
			}
		}
	}

	raw, _ := json.Marshal(msg)

	return model.Item{
		ID:        msg.Id,
		AccountID: a.accountID,
		Kind:      model.KindEmail,
		Title:     title,
		Sender:    sender,
		Timestamp: received,
		Status:    status,
		WebLink:   fmt.Sprintf("https://mail.google.com/mail/u/%d/#inbox/%s", a.userIndex, msg.Id),
		RawData:   string(raw),
	}
}

// parseFromHeader extracts the display name from a From header, falling
// back to the full header value.
func parseFromHeader(from string) string {
	if from == "" {
		return ""
	}
	if idx := strings.Index(from, "<"); idx > 0 {
		name := strings.Trim(strings.TrimSpace(from[:idx]), `"`)
		if name != "" {
			return name
		}
	}
	return from
}

// Archive removes the inbox label from a message.
func (a *Adapter) Archive(ctx context.Context, token, itemID string) error {
	svc, err := a.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = svc.Users.Messages.Modify("me", itemID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{labelInbox},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("archiving Gmail message %s: %w", itemID, mapError(err))
	}
	return nil
}

// SetStar adds or removes the starred label on a message.
func (a *Adapter) SetStar(ctx context.Context, token, itemID string, starred bool) error {
	svc, err := a.service(ctx, token)
	if err != nil {
		return err
	}
	req := &gmail.ModifyMessageRequest{}
	if starred {
		req.AddLabelIds = []string{labelStarred}
	} else {
		req.RemoveLabelIds = []string{labelStarred}
	}
	_, err = svc.Users.Messages.Modify("me", itemID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("starring Gmail message %s: %w", itemID, mapError(err))
	}
	return nil
}

// SetTaskComplete is not supported by Gmail.
func (a *Adapter) SetTaskComplete(ctx context.Context, token, projectID, itemID string, done bool) error {
	return provider.ErrUnsupported
}

// mapError converts googleapi errors into the shared provider taxonomy.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &provider.UnavailableError{Provider: model.ProviderGoogle, Cause: err}
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		var after time.Duration
		if secs, convErr := strconv.Atoi(apiErr.Header.Get("Retry-After")); convErr == nil && secs >= 0 {
			after = time.Duration(secs) * time.Second
		}
		return &provider.RateLimitError{Provider: model.ProviderGoogle, RetryAfter: after}
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return &provider.AuthError{Provider: model.ProviderGoogle, Message: apiErr.Message}
	case apiErr.Code == http.StatusNotFound:
		return provider.ErrItemNotFound
	case apiErr.Code >= 500:
		return &provider.UnavailableError{Provider: model.ProviderGoogle, Cause: apiErr}
	}
	return err
}
