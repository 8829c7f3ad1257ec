package icloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

// Adapter implements provider.Provider for iCloud Mail over IMAP. The
// token passed to each operation is the account's app-specific
// password; the token store treats it as an opaque handle like any
// access token.
type Adapter struct {
	client    *IMAPClient
	accountID string
}

// NewAdapter creates an iCloud adapter for one account.
func NewAdapter(client *IMAPClient, accountID string) *Adapter {
	return &Adapter{client: client, accountID: accountID}
}

// Type returns the provider type identifier for iCloud.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderICloud
}

// Capabilities reports fetch, archive, and star support. IMAP has no
// task completion.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet(provider.CapFetch | provider.CapArchive | provider.CapStar)
}

// FetchItems retrieves inbox envelopes received since the given instant
// and normalizes them.
func (a *Adapter) FetchItems(ctx context.Context, token string, since time.Time) ([]model.Item, error) {
	envelopes, err := a.client.FetchEnvelopes(ctx, token, since)
	if err != nil {
		return nil, fmt.Errorf("fetching iCloud messages: %w", err)
	}

	items := make([]model.Item, 0, len(envelopes))
	for _, env := range envelopes {
		// The IMAP SINCE criterion has day granularity; trim to the
		// exact bound here.
		if env.Date.Before(since) {
			continue
		}
		items = append(items, a.envelopeToItem(env))
	}
	return items, nil
}

// envelopeToItem normalizes an IMAP envelope into the common item shape.
func (a *Adapter) envelopeToItem(env Envelope) model.Item {
	title := env.Subject
	if title == "" {
		title = "(No subject)"
	}
	sender := env.From
	if sender == "" {
		sender = "Unknown"
	}

	status := model.StatusUnread
	if env.Seen {
		status = model.StatusRead
	}
	if env.Flagged {
		status = model.StatusStarred
	}

	raw, _ := json.Marshal(env)

	return model.Item{
		ID:        strconv.FormatUint(uint64(env.UID), 10),
		AccountID: a.accountID,
		Kind:      model.KindEmail,
		Title:     title,
		Sender:    sender,
		Timestamp: env.Date,
		Status:    status,
		RawData:   string(raw),
	}
}

// parseUID converts an item ID back to the message UID it encodes.
func parseUID(itemID string) (imap.UID, error) {
	uid, err := strconv.ParseUint(itemID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("item %s: %w", itemID, provider.ErrItemNotFound)
	}
	return imap.UID(uid), nil
}

// Archive moves the message to the archive mailbox.
func (a *Adapter) Archive(ctx context.Context, token, itemID string) error {
	uid, err := parseUID(itemID)
	if err != nil {
		return err
	}
	if err := a.client.MoveToArchive(ctx, token, uid); err != nil {
		return fmt.Errorf("archiving iCloud message %s: %w", itemID, err)
	}
	return nil
}

// SetStar sets or clears the \Flagged flag on the message.
func (a *Adapter) SetStar(ctx context.Context, token, itemID string, starred bool) error {
	uid, err := parseUID(itemID)
	if err != nil {
		return err
	}
	if err := a.client.SetFlagged(ctx, token, uid, starred); err != nil {
		return fmt.Errorf("flagging iCloud message %s: %w", itemID, err)
	}
	return nil
}

// SetTaskComplete is not supported by iCloud Mail.
func (a *Adapter) SetTaskComplete(ctx context.Context, token, projectID, itemID string, done bool) error {
	return provider.ErrUnsupported
}
