package board

import "schedule-planner/domain"

// Normalize converts records into tasks. Records without an id or a
// completed flag are skipped and counted in excluded; unparseable timestamps
// become absent. records is not modified.
func Normalize(records []domain.Record) (tasks []Task, excluded int) {
	tasks = make([]Task, 0, len(records))
	for _, rec := range records {
		t, ok := NormalizeRecord(rec)
		if !ok {
			excluded++
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, excluded
}

// NormalizeRecord converts one record, reporting false when it lacks a
// required field.
func NormalizeRecord(rec domain.Record) (Task, bool) {
	id, ok := rec.Key()
	if !ok || rec.Completed == nil {
		return Task{}, false
	}

	cp := rec.Clone()
	cp.StartTime = domain.CanonicalTimestamp(rec.StartTime)
	cp.EndTime = domain.CanonicalTimestamp(rec.EndTime)
	cp.CreatedAt = domain.CanonicalTimestamp(rec.CreatedAt)
	cp.UpdatedAt = domain.CanonicalTimestamp(rec.UpdatedAt)

	return Task{
		Record:    cp,
		ID:        id,
		Completed: rec.IsCompleted(),
		LongTerm:  bool(rec.IsLongTerm),
		Starred:   bool(rec.IsStarred),
		Start:     momentOf(rec.StartTime),
		End:       momentOf(rec.EndTime),
		Created:   momentOf(rec.CreatedAt),
		Updated:   momentOf(rec.UpdatedAt),
		Tags:      cp.Tags,
	}, true
}
