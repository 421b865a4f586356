package board

import (
	"sync/atomic"
	"time"

	"schedule-planner/domain"
)

// Snapshot is an immutable collection of task records. Every change returns
// a new Snapshot; existing ones are never modified, so a reader holding a
// Snapshot always sees a consistent collection.
type Snapshot struct {
	records []domain.Record
}

var emptySnapshot = &Snapshot{}

// NewSnapshot copies records into a new Snapshot.
func NewSnapshot(records []domain.Record) *Snapshot {
	cp := make([]domain.Record, len(records))
	for i, r := range records {
		cp[i] = r.Clone()
	}
	return &Snapshot{records: cp}
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Records returns a deep copy of the records in snapshot order.
func (s *Snapshot) Records() []domain.Record {
	if s == nil {
		return []domain.Record{}
	}
	out := make([]domain.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Get looks a record up by id.
func (s *Snapshot) Get(id string) (domain.Record, bool) {
	if i := s.index(id); i >= 0 {
		return s.records[i].Clone(), true
	}
	return domain.Record{}, false
}

func (s *Snapshot) index(id string) int {
	if s == nil {
		return -1
	}
	for i, r := range s.records {
		if k, ok := r.Key(); ok && k == id {
			return i
		}
	}
	return -1
}

// Upsert returns a snapshot with rec replacing the record of the same id, or
// appended when no such record exists. Records without an id are appended.
func (s *Snapshot) Upsert(rec domain.Record) *Snapshot {
	next := make([]domain.Record, 0, s.Len()+1)
	if s != nil {
		next = append(next, s.records...)
	}
	if id, ok := rec.Key(); ok {
		if i := s.index(id); i >= 0 {
			next[i] = rec.Clone()
			return &Snapshot{records: next}
		}
	}
	next = append(next, rec.Clone())
	return &Snapshot{records: next}
}

// Remove returns a snapshot without the record of the given id. The receiver
// is returned unchanged when no record matches.
func (s *Snapshot) Remove(id string) *Snapshot {
	i := s.index(id)
	if i < 0 {
		if s == nil {
			return emptySnapshot
		}
		return s
	}
	next := make([]domain.Record, 0, len(s.records)-1)
	next = append(next, s.records[:i]...)
	next = append(next, s.records[i+1:]...)
	return &Snapshot{records: next}
}

// Arrange runs the board pipeline over the snapshot.
func (s *Snapshot) Arrange(f Filter, now time.Time, opts Options) View {
	if s == nil {
		return Arrange(nil, f, now, opts)
	}
	return Arrange(s.records, f, now, opts)
}

// Holder publishes the current snapshot to concurrent readers. Writers
// replace the whole snapshot atomically.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// Load returns the current snapshot, never nil.
func (h *Holder) Load() *Snapshot {
	if s := h.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Store replaces the current snapshot.
func (h *Holder) Store(s *Snapshot) {
	if s == nil {
		s = emptySnapshot
	}
	h.current.Store(s)
}

// Update applies fn to the current snapshot and installs the result,
// retrying if another writer got in first. fn must be free of side effects.
func (h *Holder) Update(fn func(*Snapshot) *Snapshot) *Snapshot {
	for {
		old := h.current.Load()
		cur := old
		if cur == nil {
			cur = emptySnapshot
		}
		next := fn(cur)
		if next == nil {
			next = emptySnapshot
		}
		if h.current.CompareAndSwap(old, next) {
			return next
		}
	}
}
