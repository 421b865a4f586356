package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-planner/api"
	"schedule-planner/board"
	"schedule-planner/domain"
	"schedule-planner/storage"
)

func newServer(t *testing.T) string {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := log.New()
	logger.SetOutput(io.Discard)
	publisher := api.NewPublisher(store, api.PublisherConfig{}, logger)
	t.Cleanup(publisher.Close)

	e := echo.New()
	api.Register(e, store, api.NewAuth(nil, "", "", []byte("client-secret")), nil, publisher, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv.URL
}

func loggedIn(t *testing.T, ctx context.Context) *Client {
	t.Helper()
	c := New(newServer(t), "")
	if _, err := c.Register(ctx, "carol", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := c.Login(ctx, "carol", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	c.Bearer = token
	return c
}

func ptr(s string) *string { return &s }

func titles(entries []board.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

func TestClientKeepsSnapshotInStepWithServer(t *testing.T) {
	ctx := t.Context()
	c := loggedIn(t, ctx)

	if _, err := c.Add(ctx, domain.CreateTaskRequest{Title: "later", StartTime: ptr("2999-01-01 00:00:00"), EndTime: ptr("2999-01-02 00:00:00")}, ""); err != nil {
		t.Fatalf("add later: %v", err)
	}
	if _, err := c.Add(ctx, domain.CreateTaskRequest{Title: "late", StartTime: ptr("2020-01-01 00:00:00"), EndTime: ptr("2020-01-02 00:00:00")}, ""); err != nil {
		t.Fatalf("add late: %v", err)
	}
	if _, err := c.Add(ctx, domain.CreateTaskRequest{Title: "someday", IsLongTerm: domain.NewFlag(true)}, ""); err != nil {
		t.Fatalf("add someday: %v", err)
	}
	today, err := c.Add(ctx, domain.CreateTaskRequest{Title: "today", Tags: []string{"Work"}}, "today-key")
	if err != nil {
		t.Fatalf("add today: %v", err)
	}

	replayed, err := c.Add(ctx, domain.CreateTaskRequest{Title: "today"}, "today-key")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if *replayed.ID != *today.ID || c.Snapshot().Len() != 4 {
		t.Fatalf("replayed create must resolve to the stored task, snapshot has %d", c.Snapshot().Len())
	}

	now := time.Now().UTC().Truncate(time.Second)
	local := c.View(board.Filter{}, now, board.Options{})
	want := []string{"late", "today", "someday", "later"}
	if diff := cmp.Diff(want, titles(local.Tasks)); diff != "" {
		t.Fatalf("local order mismatch (-want +got):\n%s", diff)
	}
	remote, err := c.Board(ctx, board.Filter{}, now)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if diff := cmp.Diff(titles(local.Tasks), titles(remote.Tasks)); diff != "" {
		t.Fatalf("server and local boards disagree (-local +server):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Work"}, remote.AvailableTags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}

	before := c.Snapshot()
	toggled, err := c.Toggle(ctx, string(*today.ID))
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.IsCompleted() {
		t.Fatalf("expected task to be completed")
	}
	if rec, _ := before.Get(string(*today.ID)); rec.IsCompleted() {
		t.Fatalf("earlier snapshots must not change")
	}
	view := c.View(board.Filter{}, now, board.Options{})
	if got := titles(view.Tasks); got[len(got)-1] != "today" || view.Tasks[len(got)-1].Bucket != board.Completed {
		t.Fatalf("completed task should sort last, got %v", got)
	}

	if err := c.Delete(ctx, string(*today.ID)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	fresh := New(c.BaseURL, c.Bearer)
	snap, err := fresh.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.Len() != 3 || c.Snapshot().Len() != 3 {
		t.Fatalf("expected 3 tasks after delete, server=%d local=%d", snap.Len(), c.Snapshot().Len())
	}
}

func TestClientSettings(t *testing.T) {
	ctx := t.Context()
	c := loggedIn(t, ctx)

	s, err := c.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if diff := cmp.Diff(domain.DefaultSettings(), s); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	saved, err := c.SaveSettings(ctx, domain.Settings{CompletedRetentionDays: 7, LongTermOrder: domain.LongTermEndAsc})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.CompletedRetentionDays != 7 {
		t.Fatalf("unexpected saved settings %+v", saved)
	}

	_, err = c.SaveSettings(ctx, domain.Settings{LongTermOrder: "random"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := t.Context()
	c := New(newServer(t), "")

	_, err := c.Refresh(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message == "" {
		t.Fatalf("expected 401 APIError, got %v", err)
	}

	c = loggedIn(t, ctx)
	_, err = c.Update(ctx, "missing", domain.UpdateTaskRequest{Title: "x"})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "task not found" {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if _, err := c.Toggle(ctx, "missing"); err == nil {
		t.Fatalf("toggle of an unknown task should fail")
	}
}

type hookTransport struct {
	next  http.RoundTripper
	after func(*http.Request)
}

func (h *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := h.next.RoundTrip(req)
	if err == nil && h.after != nil {
		h.after(req)
	}
	return resp, err
}

func TestRefreshKeepsMutationMadeDuringFetch(t *testing.T) {
	ctx := t.Context()
	c := loggedIn(t, ctx)
	if _, err := c.Add(ctx, domain.CreateTaskRequest{Title: "first"}, ""); err != nil {
		t.Fatalf("add first: %v", err)
	}

	var added domain.Record
	fired := false
	c.HTTP = &http.Client{Transport: &hookTransport{
		next: http.DefaultTransport,
		after: func(req *http.Request) {
			if fired || req.Method != http.MethodGet || req.URL.Path != "/api/v1/todos" {
				return
			}
			fired = true
			rec, err := c.Add(req.Context(), domain.CreateTaskRequest{Title: "racing"}, "")
			if err != nil {
				t.Errorf("add racing: %v", err)
				return
			}
			added = rec
		},
	}}

	snap, err := c.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !fired || added.ID == nil {
		t.Fatalf("concurrent add did not run")
	}
	if snap != c.Snapshot() {
		t.Fatalf("refresh should return the installed snapshot")
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 tasks after refresh, got %d", snap.Len())
	}
	if _, ok := snap.Get(string(*added.ID)); !ok {
		t.Fatalf("task added during refresh was dropped")
	}
}
