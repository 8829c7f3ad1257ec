// Package token implements the credential store: OAuth material
// encrypted at rest, decrypted only long enough to hand an access
// token to a provider adapter, refreshed behind a safety margin.
package token

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/oauth"
	"github.com/motdiem/email-kanban/internal/store"
)

var (
	// ErrNoCredential indicates the account has never completed
	// authorization (or its credential was revoked and removed).
	ErrNoCredential = errors.New("no credential stored")

	// ErrCredentialExpired indicates the access token is past its
	// safety margin and could not be refreshed right now.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrCredentialRevoked indicates the provider rejected the refresh
	// token; the user must re-authorize the account.
	ErrCredentialRevoked = errors.New("credential revoked")
)

// refreshMargin is how close to expiry a token may get before it is
// refreshed ahead of use.
const refreshMargin = 60 * time.Second

// Refresher exchanges a refresh token for a fresh credential. Satisfied
// by *oauth.Exchanger.
type Refresher interface {
	Refresh(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error)
}

// Store holds encrypted credentials and supplies valid access tokens on
// demand. Refreshes are idempotent per account: concurrent callers that
// both see a near-expiry token await a single refresh call.
type Store struct {
	db        store.Store
	aead      cipher.AEAD
	refresher Refresher
	margin    time.Duration
	group     singleflight.Group
	now       func() time.Time
}

// New creates a token store over db, deriving the encryption key from
// the process-wide secret.
func New(db store.Store, secret string, refresher Refresher) (*Store, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, fmt.Errorf("deriving token store key: %w", err)
	}
	return &Store{
		db:        db,
		aead:      aead,
		refresher: refresher,
		margin:    refreshMargin,
		now:       time.Now,
	}, nil
}

// Put encrypts and persists a credential. Called on OAuth completion
// and after successful refreshes.
func (s *Store) Put(ctx context.Context, cred model.Credential) error {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	blob, err := seal(s.aead, plaintext)
	if err != nil {
		return fmt.Errorf("encrypting credential for %s: %w", cred.AccountID, err)
	}
	return s.db.PutCredential(ctx, cred.AccountID, blob)
}

// Revoke removes the stored credential for an account.
func (s *Store) Revoke(ctx context.Context, accountID string) error {
	return s.db.DeleteCredential(ctx, accountID)
}

// load reads and decrypts the stored credential.
func (s *Store) load(ctx context.Context, accountID string) (model.Credential, error) {
	blob, err := s.db.GetCredential(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Credential{}, fmt.Errorf("account %s: %w", accountID, ErrNoCredential)
	}
	if err != nil {
		return model.Credential{}, err
	}
	plaintext, err := open(s.aead, blob)
	if err != nil {
		return model.Credential{}, fmt.Errorf("credential for %s: %w", accountID, err)
	}
	var cred model.Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return model.Credential{}, fmt.Errorf("decoding credential for %s: %w", accountID, err)
	}
	return cred, nil
}

// GetValidToken returns an access token guaranteed to outlive the
// safety margin, refreshing synchronously when needed. For app-password
// accounts (iCloud) it returns the password; adapters treat both as an
// opaque handle for one call.
func (s *Store) GetValidToken(ctx context.Context, accountID string, p model.ProviderType) (string, error) {
	cred, err := s.load(ctx, accountID)
	if err != nil {
		return "", err
	}

	if cred.Password != "" {
		return cred.Password, nil
	}
	if !cred.ExpiresWithin(s.now(), s.margin) {
		return cred.AccessToken, nil
	}

	refreshed, err, _ := s.group.Do(accountID, func() (interface{}, error) {
		return s.refresh(ctx, accountID, p)
	})
	if err != nil {
		return "", err
	}
	return refreshed.(model.Credential).AccessToken, nil
}

// refresh performs one refresh round trip. The stored record is only
// mutated on success; a transient failure leaves the previous
// credential untouched so a later attempt can still use it.
func (s *Store) refresh(ctx context.Context, accountID string, p model.ProviderType) (model.Credential, error) {
	// Re-read inside the flight: a refresh that just finished on
	// another call path may already have renewed the credential.
	cred, err := s.load(ctx, accountID)
	if err != nil {
		return model.Credential{}, err
	}
	if !cred.ExpiresWithin(s.now(), s.margin) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return model.Credential{}, fmt.Errorf("account %s has no refresh token: %w", accountID, ErrCredentialExpired)
	}

	fresh, err := s.refresher.Refresh(ctx, p, accountID, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrRefreshRejected) {
			return model.Credential{}, fmt.Errorf("account %s: %w", accountID, ErrCredentialRevoked)
		}
		return model.Credential{}, fmt.Errorf("account %s: %v: %w", accountID, err, ErrCredentialExpired)
	}

	if err := s.Put(ctx, fresh); err != nil {
		return model.Credential{}, fmt.Errorf("persisting refreshed credential: %w", err)
	}
	return fresh, nil
}
