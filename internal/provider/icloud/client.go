// Package icloud implements an IMAP provider adapter for iCloud Mail.
// iCloud has no OAuth API for mail; accounts authenticate with an
// app-specific password instead.
package icloud

import (
	"context"
	"fmt"
	"mime"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

const defaultAddr = "imap.mail.me.com:993"

// archiveMailboxes are the folder names tried, in order, when archiving.
var archiveMailboxes = []string{"Archive", "Archived Messages"}

// Envelope holds the message metadata shown on a board card.
type Envelope struct {
	UID     imap.UID
	Subject string
	From    string
	Date    time.Time
	Seen    bool
	Flagged bool
}

// IMAPClient wraps go-imap v2 for connecting to and querying the iCloud
// IMAP server. The password is supplied per call, mirroring how OAuth
// adapters receive their token per call.
type IMAPClient struct {
	addr     string
	username string
}

// NewIMAPClient creates an IMAP client for the given account address.
func NewIMAPClient(username string) *IMAPClient {
	return NewIMAPClientWithAddr(username, defaultAddr)
}

// NewIMAPClientWithAddr creates an IMAP client against a custom server
// address. Used by tests.
func NewIMAPClientWithAddr(username, addr string) *IMAPClient {
	return &IMAPClient{addr: addr, username: username}
}

// connect dials the server, authenticates, and selects INBOX. The
// caller must Logout the returned client.
func (c *IMAPClient) connect(_ context.Context, password string) (*imapclient.Client, error) {
	options := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	client, err := imapclient.DialTLS(c.addr, options)
	if err != nil {
		return nil, &provider.UnavailableError{
			Provider: model.ProviderICloud,
			Cause:    fmt.Errorf("connecting to IMAP %s: %w", c.addr, err),
		}
	}

	if err := client.Login(c.username, password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &provider.AuthError{
			Provider: model.ProviderICloud,
			Message:  fmt.Sprintf("login failed for %s: %v", c.username, err),
		}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &provider.UnavailableError{
			Provider: model.ProviderICloud,
			Cause:    fmt.Errorf("selecting INBOX: %w", err),
		}
	}

	return client, nil
}

// FetchEnvelopes searches INBOX for messages received since the given
// instant and returns their envelope data.
func (c *IMAPClient) FetchEnvelopes(ctx context.Context, password string, since time.Time) ([]Envelope, error) {
	client, err := c.connect(ctx, password)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{Since: since}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &provider.UnavailableError{
			Provider: model.ProviderICloud,
			Cause:    fmt.Errorf("searching messages: %w", err),
		}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)
	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, &provider.UnavailableError{
			Provider: model.ProviderICloud,
			Cause:    fmt.Errorf("fetching envelopes: %w", err),
		}
	}

	return envelopes, nil
}

// envelopeFromBuffer maps a collected IMAP message buffer to an Envelope.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{UID: buf.UID}

	if buf.Envelope != nil {
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				env.From = from.Name
			} else {
				env.From = from.Addr()
			}
		}
	}

	for _, flag := range buf.Flags {
		switch flag {
		case imap.FlagSeen:
			env.Seen = true
		case imap.FlagFlagged:
			env.Flagged = true
		}
	}

	return env
}

// SetFlagged adds or removes the \Flagged flag on a message.
func (c *IMAPClient) SetFlagged(ctx context.Context, password string, uid imap.UID, flagged bool) error {
	client, err := c.connect(ctx, password)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	op := imap.StoreFlagsAdd
	if !flagged {
		op = imap.StoreFlagsDel
	}

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagFlagged},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return &provider.UnavailableError{
			Provider: model.ProviderICloud,
			Cause:    fmt.Errorf("storing flags for UID %d: %w", uid, err),
		}
	}
	return nil
}

// MoveToArchive moves a message out of INBOX into the first archive
// mailbox the server accepts.
func (c *IMAPClient) MoveToArchive(ctx context.Context, password string, uid imap.UID) error {
	client, err := c.connect(ctx, password)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uidSet := imap.UIDSetNum(uid)

	var lastErr error
	for _, mailbox := range archiveMailboxes {
		if _, err := client.Move(uidSet, mailbox).Wait(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return &provider.UnavailableError{
		Provider: model.ProviderICloud,
		Cause:    fmt.Errorf("moving UID %d to archive: %w", uid, lastErr),
	}
}
