// Package registry wires concrete provider adapters to accounts.
package registry

import (
	"fmt"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
	"github.com/motdiem/email-kanban/internal/provider/google"
	"github.com/motdiem/email-kanban/internal/provider/icloud"
	"github.com/motdiem/email-kanban/internal/provider/microsoft"
	"github.com/motdiem/email-kanban/internal/provider/ticktick"
)

// Registry builds provider adapters per account. HTTP clients for the
// REST providers are shared; adapters themselves are cheap per-account
// views carrying account-specific settings (shared mailbox, Gmail user
// index, IMAP login).
type Registry struct {
	graphClient    *microsoft.Client
	ticktickClient *ticktick.Client
}

// New creates a registry with production API endpoints.
func New() *Registry {
	return &Registry{
		graphClient:    microsoft.NewClient(),
		ticktickClient: ticktick.NewClient(),
	}
}

// AdapterFor returns the adapter serving the account's provider.
func (r *Registry) AdapterFor(account model.Account) (provider.Provider, error) {
	switch account.Provider {
	case model.ProviderMicrosoft:
		return microsoft.NewAdapter(r.graphClient, account.ID, account.SharedMailbox), nil
	case model.ProviderGoogle:
		return google.NewAdapter(account.ID, account.GmailUserIndex), nil
	case model.ProviderTickTick:
		return ticktick.NewAdapter(r.ticktickClient, account.ID), nil
	case model.ProviderICloud:
		return icloud.NewAdapter(icloud.NewIMAPClient(account.Email), account.ID), nil
	}
	return nil, fmt.Errorf("unknown provider %q for account %s", account.Provider, account.ID)
}
