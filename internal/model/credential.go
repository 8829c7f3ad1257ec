package model

import "time"

// Credential holds the OAuth material for one account. It never leaves
// the token store except as an opaque access token handed to a provider
// adapter for a single call.
type Credential struct {
	// AccountID references the owning account.
	AccountID string `json:"account_id"`

	// AccessToken is the bearer token presented to the provider.
	AccessToken string `json:"access_token"`

	// RefreshToken is exchanged for a new access token on expiry.
	// Providers that issue no refresh token leave it empty.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when the access token stops being accepted.
	ExpiresAt time.Time `json:"expires_at"`

	// Scopes are the OAuth scopes granted at consent time.
	Scopes []string `json:"scopes,omitempty"`

	// Password is the app-specific password for non-OAuth providers
	// (iCloud). Mutually exclusive with the token fields.
	Password string `json:"password,omitempty"`
}

// ExpiresWithin reports whether the access token expires within margin
// of now. Credentials without an expiry (app passwords) never expire.
func (c Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}
