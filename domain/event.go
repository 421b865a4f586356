package domain

import "github.com/bytedance/sonic"

// Task event types published after every successful mutation.
const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// TaskEvent describes a change to a user's task collection.
type TaskEvent struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	EntityID  string                 `json:"entityId"`
	Type      string                 `json:"type"`
	Data      sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
