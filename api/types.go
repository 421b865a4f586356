package api

import (
	"context"
	"time"

	"schedule-planner/domain"
)

// TaskStore abstracts task and settings persistence for handlers.
type TaskStore interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Record, error)
	GetTask(ctx context.Context, userID, id string) (domain.Record, error)
	InsertTask(ctx context.Context, rec domain.Record) error
	ReplaceTask(ctx context.Context, rec domain.Record) error
	DeleteTask(ctx context.Context, userID, id string) error

	FetchSettings(ctx context.Context, userID string) (domain.Settings, error)
	SaveSettings(ctx context.Context, userID string, s domain.Settings) error
}

// UserStore abstracts account persistence.
type UserStore interface {
	InsertUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByName(ctx context.Context, username string) (domain.User, error)
}

// EventSink receives task events once a mutation has been stored.
type EventSink interface {
	PublishEvents(ctx context.Context, events []domain.TaskEvent) error
}

// Storage is everything the API needs from a backend.
type Storage interface {
	TaskStore
	UserStore
	EventSink
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// TokenIssuer signs access tokens for locally registered accounts.
type TokenIssuer interface {
	IssueToken(userID string) (string, time.Time, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}
