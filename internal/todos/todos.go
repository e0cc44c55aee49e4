// Package todos derives a structured progress checklist from the agent's
// todo-write tool calls. Each call replaces the list wholesale — no merging —
// so every persisted snapshot is internally consistent with its own items.
package todos

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/posthog/taskagent/internal/agent"
	"github.com/posthog/taskagent/internal/artifacts"
)

// ToolName is the agent tool whose payload carries the checklist.
const ToolName = "TodoWrite"

// Item statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Item is one checklist entry.
type Item struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm"`
}

// Metadata summarizes a checklist.
type Metadata struct {
	Total       int       `json:"total"`
	Pending     int       `json:"pending"`
	InProgress  int       `json:"inProgress"`
	Completed   int       `json:"completed"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// List is a full checklist snapshot.
type List struct {
	Items    []Item   `json:"items"`
	Metadata Metadata `json:"metadata"`
}

// ParsePayload parses a todo-write tool input. Missing statuses default to
// pending and a missing activeForm defaults to the item content. Metadata is
// always recomputed from the parsed items.
func ParsePayload(input json.RawMessage) *List {
	list := &List{}
	for _, raw := range gjson.GetBytes(input, "todos").Array() {
		item := Item{
			Content:    raw.Get("content").String(),
			Status:     raw.Get("status").String(),
			ActiveForm: raw.Get("activeForm").String(),
		}
		switch item.Status {
		case StatusPending, StatusInProgress, StatusCompleted:
		default:
			item.Status = StatusPending
		}
		if item.ActiveForm == "" {
			item.ActiveForm = item.Content
		}
		list.Items = append(list.Items, item)
	}
	list.Metadata = Recompute(list.Items)
	return list
}

// Recompute derives metadata counts from the items.
func Recompute(items []Item) Metadata {
	m := Metadata{Total: len(items), LastUpdated: time.Now().UTC()}
	for _, item := range items {
		switch item.Status {
		case StatusCompleted:
			m.Completed++
		case StatusInProgress:
			m.InProgress++
		default:
			m.Pending++
		}
	}
	return m
}

// Tracker persists checklist snapshots through the artifact store.
type Tracker struct {
	store *artifacts.Store
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store *artifacts.Store) *Tracker {
	return &Tracker{store: store}
}

// HandleMessage inspects a raw agent message for a todo-write tool call.
// When found, the parsed list is persisted as todos.json and returned so the
// caller can also emit it as an event; otherwise it returns nil.
func (t *Tracker) HandleMessage(taskID string, msg *agent.Message) (*List, error) {
	var list *List
	for _, use := range msg.ToolUses() {
		if use.Name != ToolName {
			continue
		}
		list = ParsePayload(use.Input)
	}
	if list == nil {
		return nil, nil
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode todo list: %w", err)
	}
	if err := t.store.Write(taskID, artifacts.NameTodos, data); err != nil {
		return nil, err
	}
	return list, nil
}
