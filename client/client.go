// Package client talks to the planner REST API and keeps the caller's tasks
// in a local snapshot that can be arranged into a board without another
// round trip.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"schedule-planner/board"
	"schedule-planner/domain"
)

const (
	maxErrorBody    = 4 << 10
	refreshAttempts = 3
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client wraps http.Client with the planner endpoints. Successful task
// mutations are applied to the local snapshot.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client

	tasks board.Holder
}

// New creates a new Client.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Snapshot returns the current local snapshot. It is never nil and never
// changes after it is returned.
func (c *Client) Snapshot() *board.Snapshot {
	return c.tasks.Load()
}

// View arranges the local snapshot. now is supplied by the caller so every
// entry in the view is classified against the same instant.
func (c *Client) View(f board.Filter, now time.Time, opts board.Options) board.View {
	return c.tasks.Load().Arrange(f, now, opts)
}

// Refresh replaces the local snapshot with the server's task list. A list
// fetched while a local mutation landed is fetched again, so the mutation is
// not lost; after refreshAttempts tries the latest list is installed anyway.
func (c *Client) Refresh(ctx context.Context) (*board.Snapshot, error) {
	for attempt := 1; ; attempt++ {
		before := c.tasks.Load()
		var records []domain.Record
		if err := c.do(ctx, http.MethodGet, "/api/v1/todos", nil, nil, &records); err != nil {
			return nil, err
		}
		snap := board.NewSnapshot(records)
		installed := c.tasks.Update(func(cur *board.Snapshot) *board.Snapshot {
			if cur != before && attempt < refreshAttempts {
				return cur
			}
			return snap
		})
		if installed == snap {
			return snap, nil
		}
	}
}

// Add creates a task. An empty idempotencyKey is replaced with a random one,
// so retrying the returned error with the same key is safe.
func (c *Client) Add(ctx context.Context, req domain.CreateTaskRequest, idempotencyKey string) (domain.Record, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	hdr := http.Header{}
	hdr.Set("Idempotency-Key", idempotencyKey)
	var rec domain.Record
	if err := c.do(ctx, http.MethodPost, "/api/v1/todos", hdr, req, &rec); err != nil {
		return domain.Record{}, err
	}
	c.tasks.Update(func(s *board.Snapshot) *board.Snapshot { return s.Upsert(rec) })
	return rec, nil
}

// Update applies a partial update to the task with the given id.
func (c *Client) Update(ctx context.Context, id string, req domain.UpdateTaskRequest) (domain.Record, error) {
	var rec domain.Record
	if err := c.do(ctx, http.MethodPut, "/api/v1/todos/"+url.PathEscape(id), nil, req, &rec); err != nil {
		return domain.Record{}, err
	}
	c.tasks.Update(func(s *board.Snapshot) *board.Snapshot { return s.Upsert(rec) })
	return rec, nil
}

// Toggle flips the completed flag of a task in the local snapshot.
func (c *Client) Toggle(ctx context.Context, id string) (domain.Record, error) {
	rec, ok := c.tasks.Load().Get(id)
	if !ok {
		return domain.Record{}, &APIError{Status: http.StatusNotFound, Message: "task not in snapshot"}
	}
	return c.Update(ctx, id, domain.UpdateTaskRequest{Completed: domain.NewFlag(!rec.IsCompleted())})
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/todos/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	c.tasks.Update(func(s *board.Snapshot) *board.Snapshot { return s.Remove(id) })
	return nil
}

// Board asks the server to arrange the caller's tasks. A zero now lets the
// server use its own clock.
func (c *Client) Board(ctx context.Context, f board.Filter, now time.Time) (board.View, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if len(f.Tags) > 0 {
		q.Set("tags", strings.Join(f.Tags, ","))
	}
	if !now.IsZero() {
		q.Set("now", now.UTC().Format(time.RFC3339))
	}
	path := "/api/v1/board"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var view board.View
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &view); err != nil {
		return board.View{}, err
	}
	return view, nil
}

// Settings returns the caller's board settings.
func (c *Client) Settings(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	err := c.do(ctx, http.MethodGet, "/api/v1/settings", nil, nil, &s)
	return s, err
}

// SaveSettings stores the caller's board settings and returns them as saved.
func (c *Client) SaveSettings(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	var out domain.Settings
	err := c.do(ctx, http.MethodPut, "/api/v1/settings", nil, s, &out)
	return out, err
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) (domain.User, error) {
	var out struct {
		User domain.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", nil, credentials{username, password}, &out)
	return out.User, err
}

// Login exchanges credentials for a bearer token. The client keeps using its
// current Bearer until the caller installs the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, credentials{username, password}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := sonic.ConfigStd.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
