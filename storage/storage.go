// Package storage persists tasks, users and settings and publishes task
// events. Two backends are provided: Azure Tables with an Azure Queue for
// events, and a single-file SQLite database for local use. Cache layers a
// Redis read cache over either.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"schedule-planner/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Backend is implemented by every persistence backend.
type Backend interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Record, error)
	GetTask(ctx context.Context, userID, id string) (domain.Record, error)
	InsertTask(ctx context.Context, rec domain.Record) error
	ReplaceTask(ctx context.Context, rec domain.Record) error
	DeleteTask(ctx context.Context, userID, id string) error

	FetchSettings(ctx context.Context, userID string) (domain.Settings, error)
	SaveSettings(ctx context.Context, userID string, s domain.Settings) error

	InsertUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByName(ctx context.Context, username string) (domain.User, error)

	PublishEvents(ctx context.Context, events []domain.TaskEvent) error
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeTags tolerates empty and corrupt columns, returning no tags.
func decodeTags(raw string) []string {
	tags := []string{}
	if raw == "" {
		return tags
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}
