package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-planner/domain"
	"schedule-planner/storage"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Storage used by handler tests.
type memStore struct {
	mu       sync.Mutex
	tasks    map[string][]domain.Record
	settings map[string]domain.Settings
	users    map[string]domain.User
	events   []domain.TaskEvent
	fetchErr error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    map[string][]domain.Record{},
		settings: map[string]domain.Settings{},
		users:    map[string]domain.User{},
	}
}

func (m *memStore) FetchTasks(_ context.Context, userID string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]domain.Record, 0, len(m.tasks[userID]))
	for _, r := range m.tasks[userID] {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *memStore) index(userID, id string) int {
	for i, r := range m.tasks[userID] {
		if k, _ := r.Key(); k == id {
			return i
		}
	}
	return -1
}

func (m *memStore) GetTask(_ context.Context, userID, id string) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(userID, id); i >= 0 {
		return m.tasks[userID][i].Clone(), nil
	}
	return domain.Record{}, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
}

func (m *memStore) InsertTask(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := rec.Key()
	if m.index(rec.UserID, id) >= 0 {
		return storage.ErrConflict
	}
	m.tasks[rec.UserID] = append(m.tasks[rec.UserID], rec.Clone())
	return nil
}

func (m *memStore) ReplaceTask(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := rec.Key()
	i := m.index(rec.UserID, id)
	if i < 0 {
		return storage.ErrNotFound
	}
	m.tasks[rec.UserID][i] = rec.Clone()
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(userID, id)
	if i < 0 {
		return storage.ErrNotFound
	}
	m.tasks[userID] = append(m.tasks[userID][:i:i], m.tasks[userID][i+1:]...)
	return nil
}

func (m *memStore) FetchSettings(_ context.Context, userID string) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		return s, nil
	}
	return domain.DefaultSettings(), nil
}

func (m *memStore) SaveSettings(_ context.Context, userID string, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[userID] = s
	return nil
}

func (m *memStore) InsertUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return storage.ErrConflict
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return domain.User{}, storage.ErrNotFound
}

func (m *memStore) GetUserByName(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return domain.User{}, storage.ErrNotFound
}

func (m *memStore) PublishEvents(_ context.Context, events []domain.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) Events() []domain.TaskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TaskEvent(nil), m.events...)
}

func (m *memStore) seed(userID string, recs ...domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		r.UserID = userID
		m.tasks[userID] = append(m.tasks[userID], r)
	}
}

// mockAuth accepts "Bearer a.b.<user>" and returns <user>.
type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	parts := strings.Split(token, ".")
	if parts[2] == "" {
		return "", errors.New("missing sub")
	}
	return parts[2], nil
}

func (mockAuth) IssueToken(userID string) (string, time.Time, error) {
	return "a.b." + userID, testNow.Add(time.Hour), nil
}

type testServer struct {
	e     *echo.Echo
	store *memStore
}

func newTestServer(t *testing.T, deduper Deduper) *testServer {
	t.Helper()
	prev := clock
	clock = func() time.Time { return testNow }
	t.Cleanup(func() { clock = prev })

	store := newMemStore()
	logger := log.New()
	logger.SetOutput(io.Discard)
	publisher := NewPublisher(store, PublisherConfig{}, logger)
	t.Cleanup(publisher.Close)

	e := echo.New()
	Register(e, store, mockAuth{}, deduper, publisher, logger)
	return &testServer{e: e, store: store}
}

func (s *testServer) do(method, target, user, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer a.b."+user)
	}
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func stored(id, title string, opts ...func(*domain.Record)) domain.Record {
	r := domain.Record{
		ID:        domain.NewTaskID(id),
		Title:     title,
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
