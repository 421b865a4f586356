package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// TaskID is an opaque task identifier. Older records carry numeric ids, so
// both JSON strings and numbers are accepted.
type TaskID string

func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("invalid task id")
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid task id: %w", err)
		}
		*id = TaskID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("invalid task id: %s", data)
	}
	*id = TaskID(data)
	return nil
}

// Flag is a boolean that also accepts the 0/1 integers older clients send.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch s := string(bytes.TrimSpace(data)); s {
	case "null", "false", "0", `""`:
		*f = false
	case "true", "1":
		*f = true
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", s)
		}
		*f = n != 0
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// Record is a task as it is stored and exchanged over the wire. Timestamps
// are naive UTC strings in TimeFormat; an empty string means unbounded.
// Tags, IsStarred and IsLongTerm default to empty/false when absent.
type Record struct {
	ID          *TaskID  `json:"id,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Completed   *Flag    `json:"completed,omitempty"`
	IsLongTerm  Flag     `json:"is_long_term"`
	IsStarred   Flag     `json:"is_starred"`
	StartTime   string   `json:"start_time,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	Tags        []string `json:"tags"`
}

// NewTaskID returns a pointer suitable for Record.ID.
func NewTaskID(id string) *TaskID {
	v := TaskID(id)
	return &v
}

// NewFlag returns a pointer suitable for Record.Completed.
func NewFlag(b bool) *Flag {
	v := Flag(b)
	return &v
}

// Key returns the record id, or false when the record has none.
func (r Record) Key() (string, bool) {
	if r.ID == nil || *r.ID == "" {
		return "", false
	}
	return string(*r.ID), true
}

// IsCompleted reports the completed flag; a missing flag reads as false.
func (r Record) IsCompleted() bool {
	return r.Completed != nil && bool(*r.Completed)
}

// HasTag reports whether the record carries tag, ignoring case.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.ID != nil {
		out.ID = NewTaskID(string(*r.ID))
	}
	if r.Completed != nil {
		out.Completed = NewFlag(bool(*r.Completed))
	}
	out.Tags = append([]string{}, r.Tags...)
	return out
}
