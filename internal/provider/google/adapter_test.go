package google

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"

	gmail "google.golang.org/api/gmail/v1"
)

func TestMessageToItem(t *testing.T) {
	a := NewAdapter("acc_1", 2)

	msg := &gmail.Message{
		Id:           "m1",
		InternalDate: time.Date(2025, 6, 17, 9, 30, 0, 0, time.UTC).UnixMilli(),
		LabelIds:     []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Weekly report"},
				{Name: "From", Value: `"Alice Smith" <alice@example.com>`},
			},
		},
	}

	item := a.messageToItem(msg)
	assert.Equal(t, "m1", item.ID)
	assert.Equal(t, model.KindEmail, item.Kind)
	assert.Equal(t, "Weekly report", item.Title)
	assert.Equal(t, "Alice Smith", item.Sender)
	assert.Equal(t, model.StatusUnread, item.Status)
	assert.True(t, item.Timestamp.Equal(time.Date(2025, 6, 17, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, "https://mail.google.com/mail/u/2/#inbox/m1", item.WebLink)
}

func TestMessageToItemStatusMapping(t *testing.T) {
	a := NewAdapter("acc_1", 0)

	read := a.messageToItem(&gmail.Message{Id: "m1", LabelIds: []string{"INBOX"}})
	assert.Equal(t, model.StatusRead, read.Status)

	// Starred wins regardless of label order.
	starred := a.messageToItem(&gmail.Message{Id: "m2", LabelIds: []string{"STARRED", "UNREAD"}})
	assert.Equal(t, model.StatusStarred, starred.Status)
	starred = a.messageToItem(&gmail.Message{Id: "m3", LabelIds: []string{"UNREAD", "STARRED"}})
	assert.Equal(t, model.StatusStarred, starred.Status)
}

func TestMessageToItemFallbacks(t *testing.T) {
	a := NewAdapter("acc_1", 0)

	item := a.messageToItem(&gmail.Message{Id: "m1"})
	assert.Equal(t, "(No subject)", item.Title)
	assert.Equal(t, "Unknown", item.Sender)
	assert.True(t, item.Timestamp.IsZero())
}

func TestParseFromHeader(t *testing.T) {
	assert.Equal(t, "Alice Smith", parseFromHeader(`"Alice Smith" <alice@example.com>`))
	assert.Equal(t, "Bob", parseFromHeader("Bob <bob@example.com>"))
	assert.Equal(t, "<anon@example.com>", parseFromHeader("<anon@example.com>"))
	assert.Equal(t, "plain@example.com", parseFromHeader("plain@example.com"))
	assert.Equal(t, "", parseFromHeader(""))
}

func TestMapError(t *testing.T) {
	assert.True(t, provider.IsAuthError(mapError(&googleapi.Error{Code: http.StatusUnauthorized})))
	assert.ErrorIs(t, mapError(&googleapi.Error{Code: http.StatusNotFound}), provider.ErrItemNotFound)
	assert.True(t, provider.IsUnavailable(mapError(&googleapi.Error{Code: http.StatusBadGateway})))
	assert.True(t, provider.IsUnavailable(mapError(fmt.Errorf("connection refused"))))

	var rateErr *provider.RateLimitError
	err := mapError(&googleapi.Error{
		Code:   http.StatusTooManyRequests,
		Header: http.Header{"Retry-After": []string{"15"}},
	})
	assert.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 15*time.Second, rateErr.RetryAfter)
}
