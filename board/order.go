package board

import (
	"slices"
	"time"

	"schedule-planner/domain"
)

// LongTermOrder selects the sort key for the LongTerm bucket.
type LongTermOrder string

const (
	LongTermByCreatedAsc  LongTermOrder = domain.LongTermCreatedAsc
	LongTermByCreatedDesc LongTermOrder = domain.LongTermCreatedDesc
	LongTermByEndAsc      LongTermOrder = domain.LongTermEndAsc
)

// Options tunes the policies that are a product choice rather than a rule.
type Options struct {
	LongTermOrder LongTermOrder
	// CompletedRetention drops completed tasks whose updated_at is older than
	// now minus this duration. Zero keeps every completed task.
	CompletedRetention time.Duration
}

// OptionsFromSettings maps stored user settings onto engine options.
func OptionsFromSettings(s domain.Settings) Options {
	return Options{
		LongTermOrder:      LongTermOrder(s.LongTermOrder),
		CompletedRetention: time.Duration(s.CompletedRetentionDays) * 24 * time.Hour,
	}
}

// Order classifies tasks, sorts each bucket by its key and concatenates the
// buckets in display order. Equal keys keep their input order.
func Order(tasks []Task, now time.Time, opts Options) []Entry {
	var groups [len(bucketNames)][]ranked
	for _, t := range tasks {
		c := Classify(t, now)
		groups[c.Bucket] = append(groups[c.Bucket], ranked{task: t, class: c})
	}

	out := make([]Entry, 0, len(tasks))
	for _, b := range Buckets() {
		group := groups[b]
		slices.SortStableFunc(group, comparator(b, opts))
		for _, r := range group {
			out = append(out, r.entry())
		}
	}
	return out
}

type ranked struct {
	task  Task
	class Classification
}

func (r ranked) entry() Entry {
	return Entry{
		Record:         r.task.Record,
		Bucket:         r.class.Bucket,
		IsOverdue:      r.class.IsOverdue,
		IsEndingSoon:   r.class.IsEndingSoon,
		IsStartingSoon: r.class.IsStartingSoon,
	}
}

func comparator(b Bucket, opts Options) func(a, c ranked) int {
	byStart := func(a, c ranked) int { return compareAbsentLast(a.task.Start, c.task.Start) }
	byEnd := func(a, c ranked) int { return compareAbsentLast(a.task.End, c.task.End) }
	switch b {
	case Overdue, InProgress:
		return byEnd
	case Upcoming, NotStarted:
		return byStart
	case LongTerm:
		switch opts.LongTermOrder {
		case LongTermByCreatedDesc:
			return func(a, c ranked) int { return compareDescAbsentLast(a.task.Created, c.task.Created) }
		case LongTermByEndAsc:
			return byEnd
		default:
			return func(a, c ranked) int { return compareAbsentLast(a.task.Created, c.task.Created) }
		}
	default:
		return func(a, c ranked) int { return compareDescAbsentLast(a.task.Updated, c.task.Updated) }
	}
}

// compareAbsentLast orders ascending with absent values treated as maximal.
func compareAbsentLast(a, b Moment) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return 1
	case !b.Valid:
		return -1
	}
	return a.At.Compare(b.At)
}

// compareDescAbsentLast orders descending; absent values still sort last.
func compareDescAbsentLast(a, b Moment) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return 1
	case !b.Valid:
		return -1
	}
	return b.At.Compare(a.At)
}
