package model

import "time"

// ProviderType identifies the upstream service an account belongs to.
type ProviderType string

const (
	ProviderMicrosoft ProviderType = "microsoft"
	ProviderGoogle    ProviderType = "google"
	ProviderTickTick  ProviderType = "ticktick"
	ProviderICloud    ProviderType = "icloud"
)

// KnownProvider reports whether p is one of the supported provider types.
func KnownProvider(p ProviderType) bool {
	switch p {
	case ProviderMicrosoft, ProviderGoogle, ProviderTickTick, ProviderICloud:
		return true
	}
	return false
}

// Account is a connected mailbox or task list shown as a column group
// on the board.
type Account struct {
	// ID is the internal unique identifier for this account.
	ID string `json:"id" db:"id"`

	// Provider identifies which integration backs this account.
	Provider ProviderType `json:"provider" db:"provider"`

	// DisplayName is the user-chosen label for the account.
	DisplayName string `json:"display_name" db:"display_name"`

	// Email is the address associated with the account, when known.
	Email string `json:"email,omitempty" db:"email"`

	// ColorTag is the hex color used to badge the account's items.
	ColorTag string `json:"color_tag" db:"color_tag"`

	// SortOrder is the account's position among all accounts.
	SortOrder int `json:"sort_order" db:"sort_order"`

	// CredentialRef is the key of the account's entry in the token store.
	// It equals the account ID for every account created by this process.
	CredentialRef string `json:"-" db:"credential_ref"`

	// SharedMailbox, when set on a Microsoft account, targets a shared
	// mailbox instead of the signed-in user's own inbox.
	SharedMailbox string `json:"shared_mailbox,omitempty" db:"shared_mailbox"`

	// GmailUserIndex is the numeric slot of this account in the Gmail
	// web UI, used to build deep links (mail.google.com/mail/u/{n}/...).
	GmailUserIndex int `json:"gmail_user_index,omitempty" db:"gmail_user_index"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AccountPatch holds optional field updates for an account. Nil fields
// are left unchanged.
type AccountPatch struct {
	DisplayName    *string `json:"display_name,omitempty"`
	ColorTag       *string `json:"color_tag,omitempty"`
	SharedMailbox  *string `json:"shared_mailbox,omitempty"`
	GmailUserIndex *int    `json:"gmail_user_index,omitempty"`
}
