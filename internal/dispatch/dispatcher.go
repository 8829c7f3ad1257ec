// Package dispatch routes user-initiated item mutations (archive,
// star, complete) to the right provider adapter and patches the cached
// item on success.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
	"github.com/motdiem/email-kanban/internal/store"
	"github.com/motdiem/email-kanban/internal/synccache"
)

// Kind identifies a user action on an item.
type Kind string

const (
	// ActionArchive removes an email from the inbox.
	ActionArchive Kind = "archive"

	// ActionStar sets or clears an email's star/flag; Value carries
	// the target state.
	ActionStar Kind = "star"

	// ActionComplete marks a task done or reopens it; Value carries
	// the target state.
	ActionComplete Kind = "complete"
)

// Request is one user-initiated mutation.
type Request struct {
	Action Kind `json:"action"`

	// Value is the target state for star and complete actions.
	Value bool `json:"value"`
}

// ActionError wraps an adapter failure during a mutation. The cause is
// preserved unmodified for errors.Is/As. Retries, if any, are the
// caller's concern.
type ActionError struct {
	Action Kind
	Cause  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// ItemCache is the slice of the sync cache the dispatcher needs.
// Satisfied by *synccache.Cache.
type ItemCache interface {
	CachedItem(ctx context.Context, accountID, itemID string) (model.Item, error)
	PatchItemStatus(ctx context.Context, accountID, itemID, status string) (model.Item, error)
}

// Dispatcher performs item mutations against providers.
type Dispatcher struct {
	store   store.Store
	tokens  synccache.TokenSource
	factory provider.Factory
	cache   ItemCache
	now     func() time.Time
}

// New creates a dispatcher.
func New(db store.Store, tokens synccache.TokenSource, factory provider.Factory, cache ItemCache) *Dispatcher {
	return &Dispatcher{
		store:   db,
		tokens:  tokens,
		factory: factory,
		cache:   cache,
		now:     time.Now,
	}
}

// PerformAction executes the requested mutation upstream and, only on
// success, patches the cached item's status in place without a full
// refetch. On provider failure the cache is left unchanged and the
// failure is surfaced wrapped in an ActionError.
func (d *Dispatcher) PerformAction(ctx context.Context, accountID, itemID string, req Request) (*model.Item, error) {
	account, err := d.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	item, err := d.cache.CachedItem(ctx, accountID, itemID)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, provider.ErrItemNotFound)
	}

	adapter, err := d.factory.AdapterFor(*account)
	if err != nil {
		return nil, err
	}

	capability, status, err := plan(req, item, d.now())
	if err != nil {
		return nil, err
	}
	if !adapter.Capabilities().Has(capability) {
		return nil, fmt.Errorf("%s %s: %w", account.Provider, req.Action, provider.ErrUnsupported)
	}

	tok, err := d.tokens.GetValidToken(ctx, accountID, account.Provider)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionArchive:
		err = adapter.Archive(ctx, tok, itemID)
	case ActionStar:
		err = adapter.SetStar(ctx, tok, itemID, req.Value)
	case ActionComplete:
		err = adapter.SetTaskComplete(ctx, tok, item.ProjectID, itemID, req.Value)
	}
	if err != nil {
		return nil, &ActionError{Action: req.Action, Cause: err}
	}

	patched, err := d.cache.PatchItemStatus(ctx, accountID, itemID, status)
	if err != nil {
		return nil, err
	}
	return &patched, nil
}

// plan validates the request against the item and decides the
// capability to check and the status the cached item gets on success.
func plan(req Request, item model.Item, now time.Time) (provider.Capability, string, error) {
	switch req.Action {
	case ActionArchive:
		if item.Kind != model.KindEmail {
			return 0, "", fmt.Errorf("cannot archive a %s", item.Kind)
		}
		return provider.CapArchive, model.StatusArchived, nil

	case ActionStar:
		if item.Kind != model.KindEmail {
			return 0, "", fmt.Errorf("cannot star a %s", item.Kind)
		}
		if req.Value {
			return provider.CapStar, model.StatusStarred, nil
		}
		return provider.CapStar, model.StatusRead, nil

	case ActionComplete:
		if item.Kind != model.KindTask {
			return 0, "", fmt.Errorf("cannot complete a %s", item.Kind)
		}
		if req.Value {
			return provider.CapCompleteTask, model.StatusDone, nil
		}
		status := model.StatusPending
		if item.DueDate != nil && item.DueDate.Before(now) {
			status = model.StatusOverdue
		}
		return provider.CapCompleteTask, status, nil
	}
	return 0, "", fmt.Errorf("unknown action %q", req.Action)
}
