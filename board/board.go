// Package board turns a snapshot of task records into the ordered, annotated
// list a client renders. Everything here is a pure function of its inputs:
// the snapshot, the filter and the reference instant now. Nothing reads the
// wall clock and no input is modified.
package board

import (
	"time"

	"schedule-planner/domain"
)

// Arrange runs the full pipeline: normalize, filter, apply retention,
// classify, sort and concatenate. Available tags and completion stats are
// computed over every valid record, not just the filtered ones.
func Arrange(records []domain.Record, f Filter, now time.Time, opts Options) View {
	now = now.UTC()
	tasks, excluded := Normalize(records)

	visible := f.Apply(tasks, now)
	visible = retain(visible, now, opts.CompletedRetention)

	return View{
		Tasks:         Order(visible, now, opts),
		AvailableTags: AvailableTags(tasks),
		Stats:         CompletionStats(tasks),
		Excluded:      excluded,
	}
}

// retain drops completed tasks last updated before now-window. Tasks with no
// usable updated_at are kept.
func retain(tasks []Task, now time.Time, window time.Duration) []Task {
	if window <= 0 {
		return tasks
	}
	cutoff := now.Add(-window)
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.Completed && t.Updated.Valid && t.Updated.At.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}
