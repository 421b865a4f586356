package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTaskSpan is the end time offset applied when a dated task is created
// without an explicit end.
const DefaultTaskSpan = 24 * time.Hour

var ErrTitleRequired = errors.New("title is required")

// CreateTaskRequest is the body of POST /api/v1/todos.
type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsLongTerm  *Flag    `json:"is_long_term,omitempty"`
	IsStarred   *Flag    `json:"is_starred,omitempty"`
	StartTime   *string  `json:"start_time,omitempty"`
	EndTime     *string  `json:"end_time,omitempty"`
	Tags        []string `json:"tags"`
}

// ToRecord builds the stored record for a new task. Start defaults to now and
// end to start+DefaultTaskSpan; long-term tasks keep an open end.
func (r CreateTaskRequest) ToRecord(id, userID string, now time.Time) (Record, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return Record{}, ErrTitleRequired
	}
	rec := Record{
		ID:          NewTaskID(id),
		UserID:      userID,
		Title:       title,
		Description: r.Description,
		Completed:   NewFlag(false),
		CreatedAt:   FormatTimestamp(now),
		UpdatedAt:   FormatTimestamp(now),
		Tags:        cleanTags(r.Tags),
	}
	if r.IsLongTerm != nil {
		rec.IsLongTerm = *r.IsLongTerm
	}
	if r.IsStarred != nil {
		rec.IsStarred = *r.IsStarred
	}

	start, err := optionalTimestamp("start_time", r.StartTime)
	if err != nil {
		return Record{}, err
	}
	end, err := optionalTimestamp("end_time", r.EndTime)
	if err != nil {
		return Record{}, err
	}
	if r.StartTime == nil {
		start = FormatTimestamp(now)
	}
	if r.EndTime == nil && !bool(rec.IsLongTerm) && start != "" {
		t, _ := ParseTimestamp(start)
		end = FormatTimestamp(t.Add(DefaultTaskSpan))
	}
	rec.StartTime = start
	rec.EndTime = end
	return rec, nil
}

// UpdateTaskRequest is the body of PUT /api/v1/todos/:id. Nil pointers and
// empty title/description leave the stored value unchanged; an empty
// start_time or end_time clears the bound.
type UpdateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Completed   *Flag    `json:"completed,omitempty"`
	IsLongTerm  *Flag    `json:"is_long_term,omitempty"`
	IsStarred   *Flag    `json:"is_starred,omitempty"`
	StartTime   *string  `json:"start_time,omitempty"`
	EndTime     *string  `json:"end_time,omitempty"`
	Tags        []string `json:"tags"`
}

// Apply returns a copy of rec with the requested changes and a fresh
// updated_at. rec itself is not modified.
func (r UpdateTaskRequest) Apply(rec Record, now time.Time) (Record, error) {
	out := rec.Clone()
	if t := strings.TrimSpace(r.Title); t != "" {
		out.Title = t
	}
	if r.Description != "" {
		out.Description = r.Description
	}
	if r.Completed != nil {
		out.Completed = NewFlag(bool(*r.Completed))
	}
	if r.IsLongTerm != nil {
		out.IsLongTerm = *r.IsLongTerm
	}
	if r.IsStarred != nil {
		out.IsStarred = *r.IsStarred
	}
	if r.StartTime != nil {
		start, err := optionalTimestamp("start_time", r.StartTime)
		if err != nil {
			return Record{}, err
		}
		out.StartTime = start
	}
	if r.EndTime != nil {
		end, err := optionalTimestamp("end_time", r.EndTime)
		if err != nil {
			return Record{}, err
		}
		out.EndTime = end
	}
	if r.Tags != nil {
		out.Tags = cleanTags(r.Tags)
	}
	out.UpdatedAt = FormatTimestamp(now)
	return out, nil
}

func optionalTimestamp(field string, raw *string) (string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "", nil
	}
	t, err := ParseTimestamp(*raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %q", field, *raw)
	}
	return FormatTimestamp(t), nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// TaskQuery narrows GET /api/v1/todos server side. Zero values match all.
type TaskQuery struct {
	Tag        string
	IsLongTerm *bool
	IsStarred  *bool
	StartAfter time.Time
	EndBefore  time.Time
}

// Match reports whether rec satisfies every set criterion. Records with an
// unusable timestamp never match a bound on that timestamp.
func (q TaskQuery) Match(rec Record) bool {
	if q.Tag != "" && !rec.HasTag(q.Tag) {
		return false
	}
	if q.IsLongTerm != nil && bool(rec.IsLongTerm) != *q.IsLongTerm {
		return false
	}
	if q.IsStarred != nil && bool(rec.IsStarred) != *q.IsStarred {
		return false
	}
	if !q.StartAfter.IsZero() {
		start, err := ParseTimestamp(rec.StartTime)
		if err != nil || start.Before(q.StartAfter) {
			return false
		}
	}
	if !q.EndBefore.IsZero() {
		end, err := ParseTimestamp(rec.EndTime)
		if err != nil || end.After(q.EndBefore) {
			return false
		}
	}
	return true
}
