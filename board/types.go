package board

import (
	"fmt"
	"strings"
	"time"

	"schedule-planner/domain"
)

// Bucket is the display group a task is assigned to. The numeric order is
// the order buckets are rendered in.
type Bucket int

const (
	Overdue Bucket = iota
	InProgress
	Upcoming
	LongTerm
	NotStarted
	Completed
)

var bucketNames = [...]string{
	Overdue:    "overdue",
	InProgress: "in_progress",
	Upcoming:   "upcoming",
	LongTerm:   "long_term",
	NotStarted: "not_started",
	Completed:  "completed",
}

// Buckets lists every bucket in display order.
func Buckets() []Bucket {
	return []Bucket{Overdue, InProgress, Upcoming, LongTerm, NotStarted, Completed}
}

func (b Bucket) String() string {
	if b < 0 || int(b) >= len(bucketNames) {
		return fmt.Sprintf("bucket(%d)", int(b))
	}
	return bucketNames[b]
}

func (b Bucket) MarshalText() ([]byte, error) {
	if b < 0 || int(b) >= len(bucketNames) {
		return nil, fmt.Errorf("unknown bucket %d", int(b))
	}
	return []byte(bucketNames[b]), nil
}

func (b *Bucket) UnmarshalText(text []byte) error {
	for i, name := range bucketNames {
		if name == string(text) {
			*b = Bucket(i)
			return nil
		}
	}
	return fmt.Errorf("unknown bucket %q", text)
}

// StatusFilter selects tasks by completion state before classification.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusActive    StatusFilter = "active"
	StatusCompleted StatusFilter = "completed"
	StatusOverdue   StatusFilter = "overdue"
	StatusStarred   StatusFilter = "starred"
)

// ParseStatus accepts the status names case-insensitively. Empty means all.
func ParseStatus(s string) (StatusFilter, error) {
	switch st := StatusFilter(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StatusAll, nil
	case StatusAll, StatusActive, StatusCompleted, StatusOverdue, StatusStarred:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// Filter is the user's active view selection.
type Filter struct {
	Status StatusFilter
	// Tags selects tasks carrying any of the listed tags, ignoring case.
	// Empty admits every task.
	Tags []string
}

// Moment is an optional UTC instant. The zero value is absent.
type Moment struct {
	At    time.Time
	Valid bool
}

func momentOf(raw string) Moment {
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		return Moment{}
	}
	return Moment{At: t, Valid: true}
}

// Task is a normalized record ready for classification. Record holds a copy
// of the source with canonical timestamps; the source itself is untouched.
type Task struct {
	Record domain.Record

	ID        string
	Completed bool
	LongTerm  bool
	Starred   bool
	Start     Moment
	End       Moment
	Created   Moment
	Updated   Moment
	Tags      []string
}

// Classification is the bucket plus derived flags for one task at one instant.
type Classification struct {
	Bucket         Bucket
	IsOverdue      bool
	IsEndingSoon   bool
	IsStartingSoon bool
}

// Entry is an annotated task as handed to the display layer.
type Entry struct {
	domain.Record
	Bucket         Bucket `json:"bucket"`
	IsOverdue      bool   `json:"is_overdue"`
	IsEndingSoon   bool   `json:"is_ending_soon"`
	IsStartingSoon bool   `json:"is_starting_soon"`
}

// Stats summarizes completion across a snapshot.
type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Active     int `json:"active"`
	Percentage int `json:"percentage"`
}

// View is the complete output of one Arrange call.
type View struct {
	Tasks         []Entry  `json:"tasks"`
	AvailableTags []string `json:"available_tags"`
	Stats         Stats    `json:"completion_stats"`
	// Excluded counts records dropped for missing id or completed flag.
	Excluded int `json:"excluded"`
}
