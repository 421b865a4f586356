package board

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestOrderOverdueEarliestDeadlineFirst(t *testing.T) {
	at := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	tasks := []Task{
		task("later", end("2025-01-02")),
		task("earlier", end("2025-01-01")),
	}
	got := ids(Order(tasks, at, Options{}))
	if diff := cmp.Diff([]string{"earlier", "later"}, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestOrderNotStartedUndatedLast(t *testing.T) {
	h := time.Hour
	tasks := []Task{
		task("undated"),
		task("far", startIn(96*h)),
		task("near", startIn(48*h)),
	}
	entries := Order(tasks, now, Options{})
	if diff := cmp.Diff([]string{"near", "far", "undated"}, ids(entries)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	for _, e := range entries {
		if e.Bucket != NotStarted {
			t.Fatalf("expected not started bucket for %s, got %v", *e.ID, e.Bucket)
		}
	}
}

func TestOrderInProgressOpenEndLast(t *testing.T) {
	h := time.Hour
	tasks := []Task{
		task("open", startIn(-h)),
		task("week", startIn(-h), endIn(7*24*h)),
		task("soon", startIn(-h), endIn(2*h)),
	}
	got := ids(Order(tasks, now, Options{}))
	if diff := cmp.Diff([]string{"soon", "week", "open"}, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestOrderCompletedMostRecentFirst(t *testing.T) {
	tasks := []Task{
		task("old", done(), updated("2024-01-01 00:00:00")),
		task("unknown", done(), updated("garbage")),
		task("new", done(), updated("2024-12-31 00:00:00")),
	}
	got := ids(Order(tasks, now, Options{}))
	if diff := cmp.Diff([]string{"new", "old", "unknown"}, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestOrderLongTermPolicies(t *testing.T) {
	tasks := []Task{
		task("mid", longTerm(), created("2024-06-01"), end("2026-01-01")),
		task("old", longTerm(), created("2024-01-01"), end("2027-01-01")),
		task("new", longTerm(), created("2024-12-01")),
	}
	tests := []struct {
		order LongTermOrder
		want  []string
	}{
		{order: "", want: []string{"old", "mid", "new"}},
		{order: LongTermByCreatedAsc, want: []string{"old", "mid", "new"}},
		{order: LongTermByCreatedDesc, want: []string{"new", "mid", "old"}},
		{order: LongTermByEndAsc, want: []string{"mid", "old", "new"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			got := ids(Order(tasks, now, Options{LongTermOrder: tt.order}))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrderBucketSequence(t *testing.T) {
	h := time.Hour
	tasks := []Task{
		task("done", done()),
		task("idle"),
		task("life", longTerm()),
		task("next", startIn(2*h)),
		task("doing", startIn(-h), endIn(h)),
		task("late", endIn(-h)),
	}
	entries := Order(tasks, now, Options{})
	if diff := cmp.Diff([]string{"late", "doing", "next", "life", "idle", "done"}, ids(entries)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	wantBuckets := Buckets()
	for i, e := range entries {
		if e.Bucket != wantBuckets[i] {
			t.Fatalf("entry %d: bucket %v, want %v", i, e.Bucket, wantBuckets[i])
		}
	}
}

func TestOrderTiesKeepInputOrder(t *testing.T) {
	h := time.Hour
	tasks := []Task{
		task("first", startIn(2*h)),
		task("second", startIn(2*h)),
		task("third", startIn(2*h)),
	}
	got := ids(Order(tasks, now, Options{}))
	if diff := cmp.Diff([]string{"first", "second", "third"}, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestBucketText(t *testing.T) {
	for _, b := range Buckets() {
		text, err := b.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", b, err)
		}
		var back Bucket
		if err := back.UnmarshalText(text); err != nil || back != b {
			t.Fatalf("round trip of %s gave %v, %v", text, back, err)
		}
	}
	if _, err := Bucket(99).MarshalText(); err == nil {
		t.Fatalf("expected error for unknown bucket")
	}
}
