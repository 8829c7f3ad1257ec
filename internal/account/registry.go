// Package account implements CRUD over account records and owns the
// relationship between an account, its credential, and its cache
// partition.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/store"
)

const defaultColorTag = "#0078d4"

// ErrInvalid marks malformed account parameters.
var ErrInvalid = errors.New("invalid account parameters")

// CredentialRevoker removes an account's stored credential.
// Satisfied by *token.Store.
type CredentialRevoker interface {
	Revoke(ctx context.Context, accountID string) error
}

// CacheInvalidator drops an account's cache partition.
// Satisfied by *synccache.Cache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, accountID string) error
}

// Registry owns account records and coordinates deletion across the
// token store and sync cache.
type Registry struct {
	store  store.Store
	tokens CredentialRevoker
	cache  CacheInvalidator
	logger *slog.Logger
}

// New creates an account registry.
func New(db store.Store, tokens CredentialRevoker, cache CacheInvalidator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: db, tokens: tokens, cache: cache, logger: logger}
}

// CreateParams holds the fields of a new account.
type CreateParams struct {
	Provider       model.ProviderType `json:"provider"`
	DisplayName    string             `json:"display_name"`
	Email          string             `json:"email"`
	ColorTag       string             `json:"color_tag"`
	SharedMailbox  string             `json:"shared_mailbox"`
	GmailUserIndex int                `json:"gmail_user_index"`
}

// Create registers a new account at the end of the board order.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*model.Account, error) {
	if !model.KnownProvider(params.Provider) {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalid, params.Provider)
	}
	if strings.TrimSpace(params.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalid)
	}
	if params.Provider == model.ProviderICloud && params.Email == "" {
		return nil, fmt.Errorf("%w: iCloud accounts require an email address", ErrInvalid)
	}
	if params.ColorTag == "" {
		params.ColorTag = defaultColorTag
	}

	existing, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := model.Account{
		ID:             "acc_" + uuid.New().String(),
		Provider:       params.Provider,
		DisplayName:    params.DisplayName,
		Email:          params.Email,
		ColorTag:       params.ColorTag,
		SortOrder:      len(existing),
		SharedMailbox:  params.SharedMailbox,
		GmailUserIndex: params.GmailUserIndex,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	account.CredentialRef = account.ID

	if err := r.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Get retrieves one account.
func (r *Registry) Get(ctx context.Context, id string) (*model.Account, error) {
	return r.store.GetAccount(ctx, id)
}

// List retrieves all accounts in board order.
func (r *Registry) List(ctx context.Context) ([]model.Account, error) {
	return r.store.ListAccounts(ctx)
}

// Update applies a partial update to an account.
func (r *Registry) Update(ctx context.Context, id string, patch model.AccountPatch) (*model.Account, error) {
	account, err := r.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.DisplayName != nil {
		if strings.TrimSpace(*patch.DisplayName) == "" {
			return nil, fmt.Errorf("%w: display name cannot be empty", ErrInvalid)
		}
		account.DisplayName = *patch.DisplayName
	}
	if patch.ColorTag != nil {
		account.ColorTag = *patch.ColorTag
	}
	if patch.SharedMailbox != nil {
		account.SharedMailbox = *patch.SharedMailbox
	}
	if patch.GmailUserIndex != nil {
		account.GmailUserIndex = *patch.GmailUserIndex
	}

	if err := r.store.UpdateAccount(ctx, *account); err != nil {
		return nil, err
	}
	return account, nil
}

// Reorder applies a stable permutation over all accounts atomically.
func (r *Registry) Reorder(ctx context.Context, orderedIDs []string) error {
	return r.store.ReorderAccounts(ctx, orderedIDs)
}

// Delete removes an account. The credential is revoked first, then the
// cache partition dropped, then the record removed. Revocation and
// invalidation failures are logged, not fatal.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.store.GetAccount(ctx, id); err != nil {
		return err
	}

	if err := r.tokens.Revoke(ctx, id); err != nil {
		r.logger.Warn("revoking credential during account deletion failed",
			"account", id, "error", err)
	}
	if err := r.cache.Invalidate(ctx, id); err != nil {
		r.logger.Warn("invalidating cache during account deletion failed",
			"account", id, "error", err)
	}

	return r.store.DeleteAccount(ctx, id)
}
