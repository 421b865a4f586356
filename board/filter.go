package board

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Apply runs the status predicate and then the tag predicate over tasks and
// returns the survivors in their original order.
func (f Filter) Apply(tasks []Task, now time.Time) []Task {
	wanted := tagSet(f.Tags)
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchesStatus(t, f.Status, now) {
			continue
		}
		if len(wanted) > 0 && !matchesTags(t, wanted) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesStatus(t Task, status StatusFilter, now time.Time) bool {
	switch status {
	case StatusActive:
		return !t.Completed
	case StatusCompleted:
		return t.Completed
	case StatusOverdue:
		return !t.Completed && !t.LongTerm && t.End.Valid && t.End.At.Before(now)
	case StatusStarred:
		return t.Starred
	default:
		return true
	}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		set[strings.ToLower(tag)] = struct{}{}
	}
	return set
}

func matchesTags(t Task, wanted map[string]struct{}) bool {
	for _, tag := range t.Tags {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return true
		}
	}
	return false
}

// AvailableTags returns every distinct trimmed tag in tasks, sorted. The
// result is never nil.
func AvailableTags(tasks []Task) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, t := range tasks {
		for _, tag := range t.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// CompletionStats counts completed and active tasks. Percentage is rounded
// to the nearest integer and is zero for an empty snapshot.
func CompletionStats(tasks []Task) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	s.Active = s.Total - s.Completed
	if s.Total > 0 {
		s.Percentage = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}
