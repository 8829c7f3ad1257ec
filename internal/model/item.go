package model

import "time"

// ItemKind distinguishes emails from tasks on the board.
type ItemKind string

const (
	KindEmail ItemKind = "email"
	KindTask  ItemKind = "task"
)

// Normalized email status constants.
const (
	StatusUnread   = "unread"
	StatusRead     = "read"
	StatusStarred  = "starred"
	StatusArchived = "archived"
)

// Normalized task status constants.
const (
	StatusPending = "pending"
	StatusOverdue = "overdue"
	StatusDone    = "done"
)

// Item is the unified representation of an email or task from any provider.
type Item struct {
	// ID is the item's identifier within its provider.
	ID string `json:"id" db:"id"`

	// AccountID references the account this item was fetched for.
	AccountID string `json:"account_id" db:"account_id"`

	// Kind is email or task.
	Kind ItemKind `json:"kind" db:"kind"`

	// Title is the email subject or task title.
	Title string `json:"title" db:"title"`

	// Sender is the display name or address of the email sender.
	// Empty for tasks.
	Sender string `json:"sender,omitempty" db:"sender"`

	// ProjectID and ProjectName identify the task's list (TickTick).
	// Empty for emails.
	ProjectID   string `json:"project_id,omitempty" db:"project_id"`
	ProjectName string `json:"project_name,omitempty" db:"project_name"`

	// Timestamp is the item's temporal slot on the board: receipt time
	// for emails, due date for tasks. Zero when a task has no due date,
	// in which case the item carries no slot and is excluded from
	// day grouping.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// DueDate is the task's due date, when present.
	DueDate *time.Time `json:"due_date,omitempty" db:"due_date"`

	// Status is the normalized state (use the Status* constants).
	Status string `json:"status" db:"status"`

	// WebLink is a deep link back to the item in the provider's UI.
	WebLink string `json:"web_link,omitempty" db:"web_link"`

	// RawData holds the original JSON payload from the provider.
	RawData string `json:"raw_data,omitempty" db:"raw_data"`
}

// HasSlot reports whether the item occupies a day on the board.
// Tasks without a due date have no temporal slot; this is intentional,
// not a bug (they would otherwise crowd every day column).
func (it Item) HasSlot() bool {
	return !it.Timestamp.IsZero()
}

// DayKey returns the YYYY-MM-DD day the item belongs to in loc, or ""
// when the item has no slot.
func (it Item) DayKey(loc *time.Location) string {
	if !it.HasSlot() {
		return ""
	}
	return it.Timestamp.In(loc).Format("2006-01-02")
}

// StartOfWeek returns midnight of the current week's Monday in loc.
// Fetches are bounded to this instant so the board always covers the
// running week.
func StartOfWeek(now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	weekday := int(now.Weekday())
	// time.Weekday counts Sunday as 0.
	sinceMonday := (weekday + 6) % 7
	monday := now.AddDate(0, 0, -sinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, loc)
}

// GroupByDay buckets items by their day key in loc. Items without a
// temporal slot are dropped.
func GroupByDay(items []Item, loc *time.Location) map[string][]Item {
	groups := make(map[string][]Item)
	for _, it := range items {
		key := it.DayKey(loc)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], it)
	}
	return groups
}
