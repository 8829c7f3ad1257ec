// Package provider defines the contract every upstream integration
// (Microsoft Graph, Gmail, TickTick, iCloud IMAP) implements, together
// with the error taxonomy shared by all of them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
)

var (
	// ErrItemNotFound indicates the provider no longer knows the item
	// a mutation targeted.
	ErrItemNotFound = errors.New("item not found")

	// ErrUnsupported indicates the adapter does not implement the
	// requested capability. Callers should check Capabilities first.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// AuthError indicates the provider rejected the credential (4xx auth).
type AuthError struct {
	Provider model.ProviderType
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// UnavailableError indicates a transient failure (network error or 5xx)
// that is likely to succeed on a later attempt.
type UnavailableError struct {
	Provider model.ProviderType
	Cause    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// IsUnavailable reports whether err is a transient provider failure.
func IsUnavailable(err error) bool {
	var uerr *UnavailableError
	return errors.As(err, &uerr)
}

// RateLimitError indicates the provider returned 429. RetryAfter is the
// provider's hint, zero when none was supplied. No retry happens inside
// the adapter; callers decide.
type RateLimitError struct {
	Provider   model.ProviderType
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// Capability identifies one optional adapter operation.
type Capability uint8

const (
	CapFetch Capability = 1 << iota
	CapArchive
	CapStar
	CapCompleteTask
)

// CapabilitySet is a bit set of supported capabilities.
type CapabilitySet uint8

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Provider is the uniform adapter contract. Not every variant implements
// every mutation; unsupported operations return ErrUnsupported and are
// absent from Capabilities.
type Provider interface {
	// Type returns the provider type identifier.
	Type() model.ProviderType

	// Capabilities returns the operations this adapter supports.
	Capabilities() CapabilitySet

	// FetchItems retrieves the account's items received or due since
	// the given instant, paging through provider results until
	// exhausted or until items older than since are reached, and
	// normalizes them into the common item shape.
	FetchItems(ctx context.Context, token string, since time.Time) ([]model.Item, error)

	// Archive removes the item from the provider's inbox.
	Archive(ctx context.Context, token, itemID string) error

	// SetStar flags or unflags an email.
	SetStar(ctx context.Context, token, itemID string, starred bool) error

	// SetTaskComplete marks a task complete or reopens it.
	SetTaskComplete(ctx context.Context, token, projectID, itemID string, done bool) error
}
