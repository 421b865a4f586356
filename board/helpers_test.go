package board

import (
	"time"

	"schedule-planner/domain"
)

var now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func ts(t time.Time) string { return domain.FormatTimestamp(t) }

type recordOpt func(*domain.Record)

func record(id string, opts ...recordOpt) domain.Record {
	r := domain.Record{
		ID:        domain.NewTaskID(id),
		Title:     "task " + id,
		Completed: domain.NewFlag(false),
		CreatedAt: "2024-12-01 00:00:00",
		UpdatedAt: "2024-12-01 00:00:00",
		Tags:      []string{},
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func done() recordOpt     { return func(r *domain.Record) { r.Completed = domain.NewFlag(true) } }
func longTerm() recordOpt { return func(r *domain.Record) { r.IsLongTerm = true } }
func starred() recordOpt  { return func(r *domain.Record) { r.IsStarred = true } }

func start(raw string) recordOpt   { return func(r *domain.Record) { r.StartTime = raw } }
func end(raw string) recordOpt     { return func(r *domain.Record) { r.EndTime = raw } }
func created(raw string) recordOpt { return func(r *domain.Record) { r.CreatedAt = raw } }
func updated(raw string) recordOpt { return func(r *domain.Record) { r.UpdatedAt = raw } }

func tags(values ...string) recordOpt {
	return func(r *domain.Record) { r.Tags = values }
}

func startIn(d time.Duration) recordOpt { return start(ts(now.Add(d))) }
func endIn(d time.Duration) recordOpt   { return end(ts(now.Add(d))) }

func task(id string, opts ...recordOpt) Task {
	t, ok := NormalizeRecord(record(id, opts...))
	if !ok {
		panic("invalid test record " + id)
	}
	return t
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(*e.ID)
	}
	return out
}
