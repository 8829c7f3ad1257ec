package ticktick

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := NewAdapter(NewClientWithBaseURL(srv.URL), "acc_1")
	a.now = func() time.Time { return time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestFetchItemsNormalizesTasks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "p1", "name": "Inbox"},
		})
	})
	mux.HandleFunc("/project/p1/data", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tasks": []map[string]interface{}{
				{
					"id":      "t1",
					"title":   "Pay rent",
					"dueDate": "2025-06-20T09:00:00.000+0000",
					"status":  0,
				},
				{
					"id":      "t2",
					"title":   "File report",
					"dueDate": "2025-06-10T09:00:00.000+0000",
					"status":  0,
				},
				{
					"id":      "t3",
					"title":   "Old chore",
					"dueDate": "2025-06-10T09:00:00.000+0000",
					"status":  2,
				},
				{
					"id":        "t4",
					"title":     "Starts later",
					"startDate": "2025-06-21T08:00:00.000+0000",
					"status":    0,
				},
				{"id": "note1", "title": "Shopping list", "kind": "NOTE", "dueDate": "2025-06-20T09:00:00.000+0000"},
				{"id": "untitled", "title": "", "dueDate": "2025-06-20T09:00:00.000+0000"},
				{"id": "someday", "title": "No date at all"},
			},
		})
	})

	a := newTestAdapter(t, mux)
	items, err := a.FetchItems(context.Background(), "test-token", time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 4, "notes, untitled tasks, and dateless tasks are excluded")

	byID := make(map[string]model.Item)
	for _, it := range items {
		byID[it.ID] = it
	}

	assert.Equal(t, model.KindTask, byID["t1"].Kind)
	assert.Equal(t, "p1", byID["t1"].ProjectID)
	assert.Equal(t, "Inbox", byID["t1"].ProjectName)
	assert.Equal(t, model.StatusPending, byID["t1"].Status)
	require.NotNil(t, byID["t1"].DueDate)
	assert.True(t, byID["t1"].Timestamp.Equal(time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)))

	assert.Equal(t, model.StatusOverdue, byID["t2"].Status, "past due and not completed")
	assert.Equal(t, model.StatusDone, byID["t3"].Status, "completed wins over overdue")
	assert.Equal(t, model.StatusPending, byID["t4"].Status, "start date stands in for a missing due date")
}

func TestFetchItemsProbesInboxWhenMissing(t *testing.T) {
	probed := make([]string, 0, 3)
	mux := http.NewServeMux()
	mux.HandleFunc("/project", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "p1", "name": "Work"},
		})
	})
	mux.HandleFunc("/project/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/p1/data":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"tasks": []interface{}{}})
		case "/project/inbox/data":
			probed = append(probed, "inbox")
			w.WriteHeader(http.StatusNotFound)
		case "/project/INBOX/data":
			probed = append(probed, "INBOX")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"tasks": []map[string]interface{}{
					{"id": "t1", "title": "Inbox task", "dueDate": "2025-06-20T09:00:00.000+0000"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	a := newTestAdapter(t, mux)
	items, err := a.FetchItems(context.Background(), "tok", time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Inbox", items[0].ProjectName)
	assert.Equal(t, []string{"inbox", "INBOX"}, probed, "probing stops at the first identifier that answers")
}

func TestFetchItemsSkipsUnreadableProject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": "inbox", "name": "Inbox"},
			{"id": "broken", "name": "Broken"},
		})
	})
	mux.HandleFunc("/project/inbox/data", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tasks": []map[string]interface{}{
				{"id": "t1", "title": "Fine", "dueDate": "2025-06-20T09:00:00.000+0000"},
			},
		})
	})
	mux.HandleFunc("/project/broken/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	a := newTestAdapter(t, mux)
	items, err := a.FetchItems(context.Background(), "tok", time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "t1", items[0].ID)
}

func TestSetTaskComplete(t *testing.T) {
	var completeCalled bool
	var reopenBody map[string]int
	mux := http.NewServeMux()
	mux.HandleFunc("/project/p1/task/t1/complete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		completeCalled = true
	})
	mux.HandleFunc("/project/p1/task/t1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reopenBody))
	})

	a := newTestAdapter(t, mux)
	ctx := context.Background()

	require.NoError(t, a.SetTaskComplete(ctx, "tok", "p1", "t1", true))
	assert.True(t, completeCalled)

	require.NoError(t, a.SetTaskComplete(ctx, "tok", "p1", "t1", false))
	assert.Equal(t, map[string]int{"status": 0}, reopenBody)
}

func TestEmailActionsUnsupported(t *testing.T) {
	a := NewAdapter(NewClient(), "acc_1")

	assert.ErrorIs(t, a.Archive(context.Background(), "tok", "t1"), provider.ErrUnsupported)
	assert.ErrorIs(t, a.SetStar(context.Background(), "tok", "t1", true), provider.ErrUnsupported)
	assert.False(t, a.Capabilities().Has(provider.CapArchive))
	assert.False(t, a.Capabilities().Has(provider.CapStar))
	assert.True(t, a.Capabilities().Has(provider.CapCompleteTask))
}

func TestAuthErrorOnProjectListing(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := a.FetchItems(context.Background(), "bad-token", time.Time{})
	assert.True(t, provider.IsAuthError(err))
}
