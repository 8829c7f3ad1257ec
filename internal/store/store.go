package store

import (
	"context"
	"errors"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is the persisted item cache for one account: the full item
// set of the last successful fetch and when it happened. Snapshots
// survive process restarts so stale data can still be served after a
// cold start while the provider is down.
type Snapshot struct {
	AccountID string
	Items     []model.Item
	FetchedAt time.Time
}

// Store defines the persistence interface for accounts, encrypted
// credentials, and per-account item snapshots.
type Store interface {
	// === Accounts ===

	CreateAccount(ctx context.Context, account model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccount(ctx context.Context, account model.Account) error
	DeleteAccount(ctx context.Context, id string) error

	// ReorderAccounts applies a stable permutation over all accounts
	// atomically: concurrent readers observe either the old order or
	// the new one, never a mix.
	ReorderAccounts(ctx context.Context, orderedIDs []string) error

	// === Credentials (opaque encrypted blobs) ===

	PutCredential(ctx context.Context, accountID string, blob []byte) error
	GetCredential(ctx context.Context, accountID string) ([]byte, error)
	DeleteCredential(ctx context.Context, accountID string) error

	// === Item snapshots ===

	// ReplaceSnapshot replaces the account's cached items wholesale.
	ReplaceSnapshot(ctx context.Context, accountID string, items []model.Item, fetchedAt time.Time) error
	GetSnapshot(ctx context.Context, accountID string) (*Snapshot, error)
	UpdateItemStatus(ctx context.Context, accountID, itemID, status string) error
	DeleteSnapshot(ctx context.Context, accountID string) error
}
