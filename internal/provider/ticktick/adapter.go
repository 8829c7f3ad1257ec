package ticktick

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/provider"
)

// inboxProbeIDs are the pseudo-project identifiers tried when the
// project listing does not include an inbox. The Open API does not
// list the inbox as a regular project on every account.
var inboxProbeIDs = []string{"inbox", "INBOX", "none"}

// dueDateLayout is the timestamp format TickTick uses for due and
// start dates.
const dueDateLayout = "2006-01-02T15:04:05.000-0700"

// Adapter implements provider.Provider for TickTick tasks.
type Adapter struct {
	client    *Client
	accountID string
	now       func() time.Time
}

// NewAdapter creates a TickTick adapter for one account.
func NewAdapter(client *Client, accountID string) *Adapter {
	return &Adapter{
		client:    client,
		accountID: accountID,
		now:       time.Now,
	}
}

// Type returns the provider type identifier for TickTick.
func (a *Adapter) Type() model.ProviderType {
	return model.ProviderTickTick
}

// Capabilities reports fetch and task completion. TickTick has no
// archive or star semantics.
func (a *Adapter) Capabilities() provider.CapabilitySet {
	return provider.CapabilitySet(provider.CapFetch | provider.CapCompleteTask)
}

// FetchItems lists every project's tasks and normalizes them. Tasks are
// not time-bounded by since: a task list is small and due dates may lie
// in the future, so the whole set is fetched each time.
func (a *Adapter) FetchItems(ctx context.Context, token string, since time.Time) ([]model.Item, error) {
	var projects []project
	if err := a.client.Get(ctx, token, "/project", &projects); err != nil {
		return nil, fmt.Errorf("listing TickTick projects: %w", err)
	}

	var tasks []task
	for _, p := range projects {
		data, err := a.projectTasks(ctx, token, p.ID, p.Name)
		if err != nil {
			// A single unreadable project must not sink the fetch.
			continue
		}
		tasks = append(tasks, data...)
	}

	if !hasInbox(projects) {
		for _, inboxID := range inboxProbeIDs {
			data, err := a.projectTasks(ctx, token, inboxID, "Inbox")
			if err != nil {
				continue
			}
			tasks = append(tasks, data...)
			break
		}
	}

	items := make([]model.Item, 0, len(tasks))
	for _, t := range tasks {
		item, ok := a.taskToItem(t)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *Adapter) projectTasks(ctx context.Context, token, projectID, projectName string) ([]task, error) {
	var data projectData
	path := "/project/" + url.PathEscape(projectID) + "/data"
	if err := a.client.Get(ctx, token, path, &data); err != nil {
		return nil, err
	}
	for i := range data.Tasks {
		if data.Tasks[i].ProjectID == "" {
			data.Tasks[i].ProjectID = projectID
		}
		data.Tasks[i].ProjectName = projectName
	}
	return data.Tasks, nil
}

func hasInbox(projects []project) bool {
	for _, p := range projects {
		for _, id := range inboxProbeIDs {
			if p.ID == id {
				return true
			}
		}
		if strings.EqualFold(p.Name, "inbox") {
			return true
		}
	}
	return false
}

// taskToItem normalizes a task, reporting ok=false for tasks that do
// not belong on the board: notes, untitled tasks, and tasks without a
// due or start date (no temporal slot, intentionally excluded).
func (a *Adapter) taskToItem(t task) (model.Item, bool) {
	if strings.EqualFold(t.Kind, "NOTE") || t.Title == "" {
		return model.Item{}, false
	}

	dueRaw := t.DueDate
	if dueRaw == "" {
		dueRaw = t.StartDate
	}
	if dueRaw == "" {
		return model.Item{}, false
	}

	due, err := time.Parse(dueDateLayout, dueRaw)
	if err != nil {
		if due, err = time.Parse(time.RFC3339, dueRaw); err != nil {
			return model.Item{}, false
		}
	}

	status := model.StatusPending
	switch {
	case t.Status == statusCompleted:
		status = model.StatusDone
	case due.Before(a.now()):
		status = model.StatusOverdue
	}

	raw, _ := json.Marshal(t)
	dueCopy := due

	return model.Item{
		ID:          t.ID,
		AccountID:   a.accountID,
		Kind:        model.KindTask,
		Title:       t.Title,
		ProjectID:   t.ProjectID,
		ProjectName: t.ProjectName,
		Timestamp:   due,
		DueDate:     &dueCopy,
		Status:      status,
		WebLink:     fmt.Sprintf("https://ticktick.com/webapp/#p/%s/tasks/%s", t.ProjectID, t.ID),
		RawData:     string(raw),
	}, true
}

// Archive is not supported by TickTick.
func (a *Adapter) Archive(ctx context.Context, token, itemID string) error {
	return provider.ErrUnsupported
}

// SetStar is not supported by TickTick.
func (a *Adapter) SetStar(ctx context.Context, token, itemID string, starred bool) error {
	return provider.ErrUnsupported
}

// SetTaskComplete marks a task complete via the dedicated endpoint, or
// reopens it by resetting its status.
func (a *Adapter) SetTaskComplete(ctx context.Context, token, projectID, itemID string, done bool) error {
	base := "/project/" + url.PathEscape(projectID) + "/task/" + url.PathEscape(itemID)
	if done {
		if err := a.client.Post(ctx, token, base+"/complete", nil, nil); err != nil {
			return fmt.Errorf("completing TickTick task %s: %w", itemID, err)
		}
		return nil
	}
	if err := a.client.Post(ctx, token, base, map[string]int{"status": 0}, nil); err != nil {
		return fmt.Errorf("reopening TickTick task %s: %w", itemID, err)
	}
	return nil
}
