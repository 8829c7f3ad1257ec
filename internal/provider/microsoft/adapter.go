package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

// pageSize is the $top value for message listing.
const pageSize = 200

// Adapter implements provider.Provider for Microsoft Graph mail.
type Adapter struct {
	client        *Client
	accountID     string
	sharedMailbox string
}

// NewAdapter creates a Graph mail adapter for one account. When
// sharedMailbox is non-empty, requests target that mailbox instead of
// the signed-in user's own inbox.
func NewAdapter(client *Client, accountID, sharedMailbox string) *Adapter {
	return &Adapter{
		client:        client,
		accountID:     accountID,
		sharedMailbox: sharedMailbox,
	}
}

// Type returns the provider type identifier for Microsoft Graph.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderMicrosoft
}

// Capabilities reports fetch, archive, and star support. Graph mail has
// no task completion.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet(provider.CapFetch | provider.CapArchive | provider.CapStar)
}

// mailboxRoot returns the URL segment addressing either the signed-in
// user or the configured shared mailbox.
func (a *Adapter) mailboxRoot() string {
	if a.sharedMailbox != "" {
		return "/users/" + url.PathEscape(a.sharedMailbox)
	}
	return "/me"
}

// FetchItems lists inbox messages received since the given instant,
// following @odata.nextLink until the listing is exhausted.
func (a *Adapter) FetchItems(ctx context.Context, token string, since time.Time) ([]model.Item, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	query.Set("$select", "id,subject,from,receivedDateTime,webLink,isRead,flag")
	query.Set("$orderby", "receivedDateTime desc")
	query.Set("$top", fmt.Sprintf("%d", pageSize))

	var items []model.Item

	var page messagePage
	err := a.client.Get(ctx, token, a.mailboxRoot()+"/mailFolders/inbox/messages?"+query.Encode(), &page)
	for {
		if err != nil {
			return nil, fmt.Errorf("fetching Graph messages: %w", err)
		}
		for _, msg := range page.Value {
			items = append(items, a.messageToItem(msg))
		}
		if page.NextLink == "" {
			break
		}
		next := page.NextLink
		page = messagePage{}
		err = a.client.GetURL(ctx, token, next, &page)
	}

	return items, nil
}

// messageToItem normalizes a Graph message into the common item shape.
func (a *Adapter) messageToItem(msg message) model.Item {
	received, _ := time.Parse(time.RFC3339, msg.ReceivedDateTime)

	sender := "Unknown"
	if msg.From != nil {
		if msg.From.EmailAddress.Name != "" {
			sender = msg.From.EmailAddress.Name
		} else if msg.From.EmailAddress.Address != "" {
			sender = msg.From.EmailAddress.Address
		}
	}

	title := msg.Subject
	if title == "" {
		title = "(No subject)"
	}

	status := model.StatusUnread
	if msg.IsRead {
		status = model.StatusRead
	}
	if msg.Flag != nil && msg.Flag.FlagStatus == "flagged" {
		status = model.StatusStarred
	}

	raw, _ := json.Marshal(msg)

	return model.Item{
		ID:        msg.ID,
		AccountID: a.accountID,
		Kind:      model.KindEmail,
		Title:     title,
		Sender:    sender,
		Timestamp: received,
		Status:    status,
		WebLink:   msg.WebLink,
		RawData:   string(raw),
	}
}

// Archive moves a message into the well-known archive folder.
func (a *Adapter) Archive(ctx context.Context, token, itemID string) error {
	path := fmt.Sprintf("%s/messages/%s/move", a.mailboxRoot(), url.PathEscape(itemID))
	body := map[string]string{"destinationId": "archive"}
	if err := a.client.Post(ctx, token, path, body, nil); err != nil {
		return fmt.Errorf("archiving Graph message %s: %w", itemID, err)
	}
	return nil
}

// SetStar sets or clears the message follow-up flag.
func (a *Adapter) SetStar(ctx context.Context, token, itemID string, starred bool) error {
	flagStatus := "notFlagged"
	if starred {
		flagStatus = "flagged"
	}
	path := fmt.Sprintf("%s/messages/%s", a.mailboxRoot(), url.PathEscape(itemID))
	body := map[string]interface{}{
		"flag": map[string]string{"flagStatus": flagStatus},
	}
	if err := a.client.Patch(ctx, token, path, body, nil); err != nil {
		return fmt.Errorf("flagging Graph message %s: %w", itemID, err)
	}
	return nil
}

// SetTaskComplete is not supported by Graph mail.
func (a *Adapter) SetTaskComplete(ctx context.Context, token, projectID, itemID string, done bool) error {
	return provider.ErrUnsupported
}
