package board

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"schedule-planner/domain"
)

func TestSnapshotChangesReturnNewValues(t *testing.T) {
	base := NewSnapshot([]domain.Record{record("a"), record("b")})

	updated := base.Upsert(record("a", done()))
	if rec, _ := base.Get("a"); rec.IsCompleted() {
		t.Fatalf("upsert modified the original snapshot")
	}
	if rec, _ := updated.Get("a"); !rec.IsCompleted() {
		t.Fatalf("upsert did not replace the record")
	}
	if updated.Len() != 2 {
		t.Fatalf("replacing must not grow the snapshot, len=%d", updated.Len())
	}

	grown := updated.Upsert(record("c"))
	if grown.Len() != 3 || updated.Len() != 2 {
		t.Fatalf("unexpected lengths: grown=%d updated=%d", grown.Len(), updated.Len())
	}

	removed := grown.Remove("b")
	if _, ok := removed.Get("b"); ok {
		t.Fatalf("remove left the record in place")
	}
	if _, ok := grown.Get("b"); !ok {
		t.Fatalf("remove modified the previous snapshot")
	}
	if same := removed.Remove("missing"); same != removed {
		t.Fatalf("removing an unknown id should return the receiver")
	}
}

func TestSnapshotRecordsAreCopies(t *testing.T) {
	s := NewSnapshot([]domain.Record{record("a", tags("Work"))})
	recs := s.Records()
	recs[0].Tags[0] = "changed"
	if rec, _ := s.Get("a"); rec.Tags[0] != "Work" {
		t.Fatalf("snapshot exposed its internal records")
	}
}

func TestSnapshotArrangeMatchesArrange(t *testing.T) {
	records := []domain.Record{record("a", done()), record("b", tags("x"))}
	s := NewSnapshot(records)
	if diff := cmp.Diff(Arrange(records, Filter{}, now, Options{}), s.Arrange(Filter{}, now, Options{})); diff != "" {
		t.Fatalf("snapshot arrange differs (-want +got):\n%s", diff)
	}
	var empty *Snapshot
	if view := empty.Arrange(Filter{}, now, Options{}); len(view.Tasks) != 0 {
		t.Fatalf("nil snapshot should arrange to an empty view")
	}
}

func TestHolderConcurrentUpdates(t *testing.T) {
	var h Holder
	if h.Load().Len() != 0 {
		t.Fatalf("zero holder should expose an empty snapshot")
	}

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Update(func(s *Snapshot) *Snapshot {
				return s.Upsert(record(fmt.Sprintf("t%d", i)))
			})
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = h.Load().Arrange(Filter{}, now, Options{})
		}
	}()
	wg.Wait()

	if got := h.Load().Len(); got != writers {
		t.Fatalf("expected %d records after concurrent updates, got %d", writers, got)
	}
}

func TestHolderStoreReplacesWholesale(t *testing.T) {
	var h Holder
	h.Store(NewSnapshot([]domain.Record{record("a")}))
	old := h.Load()
	h.Store(NewSnapshot([]domain.Record{record("b"), record("c")}))
	if old.Len() != 1 || h.Load().Len() != 2 {
		t.Fatalf("store must not touch the previous snapshot")
	}
	h.Store(nil)
	if h.Load() == nil || h.Load().Len() != 0 {
		t.Fatalf("storing nil should install an empty snapshot")
	}
}
