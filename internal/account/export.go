package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/store"
)

// exportVersion tags the exported payload format.
const exportVersion = 1

// ExportedAccount is the portable, secret-free projection of an
// account. Credentials cannot leak through export because this type
// simply has no field for them.
type ExportedAccount struct {
	ID             string             `json:"id"`
	Provider       model.ProviderType `json:"provider"`
	DisplayName    string             `json:"display_name"`
	Email          string             `json:"email,omitempty"`
	ColorTag       string             `json:"color_tag"`
	SortOrder      int                `json:"sort_order"`
	SharedMailbox  string             `json:"shared_mailbox,omitempty"`
	GmailUserIndex int                `json:"gmail_user_index,omitempty"`
}

// ExportedConfig is the full exported payload.
type ExportedConfig struct {
	Version  int               `json:"version"`
	Accounts []ExportedAccount `json:"accounts"`
}

// Export returns all accounts' non-secret fields. Imported accounts
// need re-authorization: tokens are never part of the payload.
func (r *Registry) Export(ctx context.Context) (*ExportedConfig, error) {
	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &ExportedConfig{Version: exportVersion}
	for _, a := range accounts {
		cfg.Accounts = append(cfg.Accounts, ExportedAccount{
			ID:             a.ID,
			Provider:       a.Provider,
			DisplayName:    a.DisplayName,
			Email:          a.Email,
			ColorTag:       a.ColorTag,
			SortOrder:      a.SortOrder,
			SharedMailbox:  a.SharedMailbox,
			GmailUserIndex: a.GmailUserIndex,
		})
	}
	return cfg, nil
}

// Import recreates accounts from an exported payload. Decoding into
// ExportedAccount discards any secret fields present in the input, so
// smuggled credential material is ignored rather than stored. Existing
// accounts with the same ID are updated in their non-secret fields.
func (r *Registry) Import(ctx context.Context, data []byte) (int, error) {
	var cfg ExportedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("%w: parsing import payload: %v", ErrInvalid, err)
	}
	if cfg.Version != exportVersion {
		return 0, fmt.Errorf("%w: unsupported export version %d", ErrInvalid, cfg.Version)
	}

	imported := 0
	for _, exported := range cfg.Accounts {
		if !model.KnownProvider(exported.Provider) {
			return imported, fmt.Errorf("%w: account %s: unknown provider %q", ErrInvalid, exported.ID, exported.Provider)
		}
		if exported.ID == "" || exported.DisplayName == "" {
			return imported, fmt.Errorf("%w: import entry missing id or display name", ErrInvalid)
		}

		account := model.Account{
			ID:             exported.ID,
			Provider:       exported.Provider,
			DisplayName:    exported.DisplayName,
			Email:          exported.Email,
			ColorTag:       exported.ColorTag,
			SortOrder:      exported.SortOrder,
			CredentialRef:  exported.ID,
			SharedMailbox:  exported.SharedMailbox,
			GmailUserIndex: exported.GmailUserIndex,
		}
		if account.ColorTag == "" {
			account.ColorTag = defaultColorTag
		}

		_, err := r.store.GetAccount(ctx, exported.ID)
		switch {
		case err == nil:
			if err := r.store.UpdateAccount(ctx, account); err != nil {
				return imported, err
			}
		case errors.Is(err, store.ErrNotFound):
			now := time.Now()
			account.CreatedAt = now
			account.UpdatedAt = now
			if err := r.store.CreateAccount(ctx, account); err != nil {
				return imported, err
			}
		default:
			return imported, err
		}
		imported++
	}

	return imported, nil
}
