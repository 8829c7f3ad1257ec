// Package synccache implements the per-account cached-sync layer: it
// fetches provider data through the adapters, stores the normalized
// items with a freshness window, serves reads from that cache, and
// keeps one account's failures away from every other account's entry.
package synccache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
	"github.com/motdiem/email-kanban/internal/store"
)

// DefaultTTL is the freshness window applied when none is configured.
const DefaultTTL = 5 * time.Minute

// TokenSource supplies a valid access token for an account.
// Satisfied by *token.Store.
type TokenSource interface {
	GetValidToken(ctx context.Context, accountID string, p model.ProviderType) (string, error)
}

// Result is what a cache read returns: the account's normalized items
// plus freshness metadata. Stale is set when the items come from a
// snapshot older than the TTL because the refresh that should have
// replaced them failed.
type Result struct {
	Items     []model.Item
	FetchedAt time.Time
	Stale     bool
}

// entry is one account's cache partition. Each entry has its own lock;
// no lock spans accounts.
type entry struct {
	mu        sync.Mutex
	items     []model.Item
	fetchedAt time.Time
	loaded    bool // a successful fetch or snapshot restore happened
}

// Cache orchestrates fetch-normalize-store per account and serves reads.
type Cache struct {
	store   store.Store
	tokens  TokenSource
	factory provider.Factory
	ttl     time.Duration
	loc     *time.Location
	logger  *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry

	now func() time.Time
}

// Options tunes a Cache beyond its collaborators.
type Options struct {
	// TTL is the freshness window; DefaultTTL when zero.
	TTL time.Duration

	// Location slots fetch bounds into board days; UTC when nil.
	Location *time.Location

	// Logger receives warnings for swallowed persistence and refresh
	// errors; slog.Default when nil.
	Logger *slog.Logger
}

// New creates a sync cache.
func New(db store.Store, tokens TokenSource, factory provider.Factory, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		store:   db,
		tokens:  tokens,
		factory: factory,
		ttl:     opts.TTL,
		loc:     opts.Location,
		logger:  opts.Logger,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Location returns the timezone items are slotted into board days with.
func (c *Cache) Location() *time.Location {
	return c.loc
}

// entryFor returns the account's entry, creating it on first use.
func (c *Cache) entryFor(accountID string) *entry {
	c.mu.RLock()
	e, ok := c.entries[accountID]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[accountID]; ok {
		return e
	}
	e = &entry{}
	c.entries[accountID] = e
	return e
}

// snapshot returns a copy of the entry's current contents. Restores the
// persisted snapshot on a cold start so stale data survives restarts.
func (c *Cache) snapshot(ctx context.Context, accountID string, e *entry) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		persisted, err := c.store.GetSnapshot(ctx, accountID)
		if err == nil {
			e.items = persisted.Items
			e.fetchedAt = persisted.FetchedAt
			e.loaded = true
		}
	}
	if !e.loaded {
		return Result{}, false
	}

	items := make([]model.Item, len(e.items))
	copy(items, e.items)
	return Result{
		Items:     items,
		FetchedAt: e.fetchedAt,
		Stale:     c.now().Sub(e.fetchedAt) >= c.ttl,
	}, true
}

// GetItems serves the account's items. A fresh entry is returned
// immediately; a stale or empty entry triggers a synchronous
// single-flight refresh. When the refresh fails but a previous snapshot
// exists, that snapshot is served marked stale instead of failing the
// read: one provider outage must not blank the board.
func (c *Cache) GetItems(ctx context.Context, accountID string) (Result, error) {
	e := c.entryFor(accountID)

	if res, ok := c.snapshot(ctx, accountID, e); ok && !res.Stale {
		return res, nil
	}

	res, err := c.refresh(ctx, accountID, e)
	if err == nil {
		return res, nil
	}

	if prev, ok := c.snapshot(ctx, accountID, e); ok {
		c.logger.Warn("serving stale items after failed refresh",
			"account", accountID, "error", err)
		prev.Stale = true
		return prev, nil
	}
	return Result{}, err
}

// ForceRefresh refreshes the account's entry regardless of freshness.
// The user explicitly asked for a live result, so failures surface
// unmodified instead of falling back to a stale snapshot.
func (c *Cache) ForceRefresh(ctx context.Context, accountID string) (Result, error) {
	return c.refresh(ctx, accountID, c.entryFor(accountID))
}

// refresh performs one single-flight fetch for the account. Concurrent
// callers for the same account share one upstream call; different
// accounts never contend.
func (c *Cache) refresh(ctx context.Context, accountID string, e *entry) (Result, error) {
	v, err, _ := c.group.Do(accountID, func() (interface{}, error) {
		return c.fetch(ctx, accountID, e)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// fetch resolves the account, obtains a token, calls the adapter, and
// replaces the entry wholesale on success. The entry is untouched on
// any failure.
func (c *Cache) fetch(ctx context.Context, accountID string, e *entry) (Result, error) {
	account, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return Result{}, err
	}

	adapter, err := c.factory.AdapterFor(*account)
	if err != nil {
		return Result{}, err
	}

	tok, err := c.tokens.GetValidToken(ctx, accountID, account.Provider)
	if err != nil {
		return Result{}, err
	}

	since := model.StartOfWeek(c.now(), c.loc)
	items, err := adapter.FetchItems(ctx, tok, since)
	if err != nil {
		return Result{}, err
	}
	fetchedAt := c.now()

	e.mu.Lock()
	e.items = items
	e.fetchedAt = fetchedAt
	e.loaded = true
	e.mu.Unlock()

	// Write-through so stale data survives restarts. A persistence
	// failure does not fail the fetch; memory already holds the result.
	if err := c.store.ReplaceSnapshot(ctx, accountID, items, fetchedAt); err != nil {
		c.logger.Warn("persisting item snapshot failed",
			"account", accountID, "error", err)
	}

	result := Result{
		Items:     make([]model.Item, len(items)),
		FetchedAt: fetchedAt,
	}
	copy(result.Items, items)
	return result, nil
}

// CachedItem looks up one item in the account's cached entry.
func (c *Cache) CachedItem(ctx context.Context, accountID, itemID string) (model.Item, error) {
	e := c.entryFor(accountID)
	res, ok := c.snapshot(ctx, accountID, e)
	if !ok {
		return model.Item{}, store.ErrNotFound
	}
	for _, it := range res.Items {
		if it.ID == itemID {
			return it, nil
		}
	}
	return model.Item{}, store.ErrNotFound
}

// PatchItemStatus updates a single cached item's status in place, in
// memory and in the persisted snapshot, without refetching.
func (c *Cache) PatchItemStatus(ctx context.Context, accountID, itemID, status string) (model.Item, error) {
	e := c.entryFor(accountID)

	e.mu.Lock()
	var patched *model.Item
	for i := range e.items {
		if e.items[i].ID == itemID {
			e.items[i].Status = status
			copied := e.items[i]
			patched = &copied
			break
		}
	}
	e.mu.Unlock()

	if patched == nil {
		return model.Item{}, store.ErrNotFound
	}

	if err := c.store.UpdateItemStatus(ctx, accountID, itemID, status); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		c.logger.Warn("persisting item patch failed",
			"account", accountID, "item", itemID, "error", err)
	}
	return *patched, nil
}

// Invalidate drops the account's entry and persisted snapshot. Used on
// account deletion and credential revocation.
func (c *Cache) Invalidate(ctx context.Context, accountID string) error {
	c.mu.Lock()
	delete(c.entries, accountID)
	c.mu.Unlock()

	return c.store.DeleteSnapshot(ctx, accountID)
}
