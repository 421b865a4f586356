package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"schedule-planner/domain"
)

const usersPartition = "users"

// TableNames names the Azure resources used by Tables.
type TableNames struct {
	Tasks    string
	Users    string
	Settings string
	Events   string
}

// Tables stores data in Azure Table Storage and publishes events to an
// Azure Storage queue.
type Tables struct {
	taskTable     *aztables.Client
	userTable     *aztables.Client
	settingsTable *aztables.Client
	eventQueue    *azqueue.QueueClient
}

// NewTables creates a Tables backend from the given connection string.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	if names.Tasks == "" || names.Users == "" || names.Settings == "" || names.Events == "" {
		return nil, errors.New("storage: table and queue names are required")
	}
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, names.Events, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Tables{
		taskTable:     svc.NewClient(names.Tasks),
		userTable:     svc.NewClient(names.Users),
		settingsTable: svc.NewClient(names.Settings),
		eventQueue:    eq,
	}, nil
}

// Provision creates the tables and the queue, ignoring ones that exist.
func (s *Tables) Provision(ctx context.Context) error {
	for _, t := range []*aztables.Client{s.taskTable, s.userTable, s.settingsTable} {
		if _, err := t.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	if _, err := s.eventQueue.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Completed    *bool  `json:"Completed,omitempty"`
	IsLongTerm   bool   `json:"IsLongTerm"`
	IsStarred    bool   `json:"IsStarred"`
	StartTime    string `json:"StartTime"`
	EndTime      string `json:"EndTime"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
	Tags         string `json:"Tags"`
}

func taskEntityFromRecord(rec domain.Record) (taskEntity, error) {
	id, ok := rec.Key()
	if !ok || rec.UserID == "" {
		return taskEntity{}, errors.New("storage: task id and user id are required")
	}
	ent := taskEntity{
		PartitionKey: rec.UserID,
		RowKey:       id,
		Title:        rec.Title,
		Description:  rec.Description,
		IsLongTerm:   bool(rec.IsLongTerm),
		IsStarred:    bool(rec.IsStarred),
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		Tags:         encodeTags(rec.Tags),
	}
	if rec.Completed != nil {
		done := bool(*rec.Completed)
		ent.Completed = &done
	}
	return ent, nil
}

// decodeTaskEntity maps a stored row to a record. A row written before the
// Completed column existed decodes with a nil Completed flag.
func decodeTaskEntity(data []byte) (domain.Record, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{
		ID:          domain.NewTaskID(ent.RowKey),
		UserID:      ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		IsLongTerm:  domain.Flag(ent.IsLongTerm),
		IsStarred:   domain.Flag(ent.IsStarred),
		StartTime:   ent.StartTime,
		EndTime:     ent.EndTime,
		CreatedAt:   ent.CreatedAt,
		UpdatedAt:   ent.UpdatedAt,
		Tags:        decodeTags(ent.Tags),
	}
	if ent.Completed != nil {
		rec.Completed = domain.NewFlag(*ent.Completed)
	}
	return rec, nil
}

// FetchTasks retrieves all tasks for the provided user.
func (s *Tables) FetchTasks(ctx context.Context, userID string) ([]domain.Record, error) {
	filter := "PartitionKey eq " + odataString(userID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Record{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translate(err)
		}
		for _, e := range resp.Entities {
			rec, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, rec)
		}
	}
	return tasks, nil
}

func (s *Tables) GetTask(ctx context.Context, userID, id string) (domain.Record, error) {
	resp, err := s.taskTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Record{}, translate(err)
	}
	return decodeTaskEntity(resp.Value)
}

func (s *Tables) InsertTask(ctx context.Context, rec domain.Record) error {
	ent, err := taskEntityFromRecord(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return translate(err)
}

// ReplaceTask overwrites an existing task; it fails with ErrNotFound when
// the task does not exist.
func (s *Tables) ReplaceTask(ctx context.Context, rec domain.Record) error {
	ent, err := taskEntityFromRecord(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return translate(err)
}

func (s *Tables) DeleteTask(ctx context.Context, userID, id string) error {
	et := azcore.ETagAny
	_, err := s.taskTable.DeleteEntity(ctx, userID, id, &aztables.DeleteEntityOptions{IfMatch: &et})
	return translate(err)
}

type settingsEntity struct {
	PartitionKey           string `json:"PartitionKey"`
	RowKey                 string `json:"RowKey"`
	CompletedRetentionDays int    `json:"CompletedRetentionDays"`
	LongTermOrder          string `json:"LongTermOrder"`
}

func decodeSettingsEntity(data []byte) (domain.Settings, error) {
	var ent settingsEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Settings{}, err
	}
	s := domain.Settings{CompletedRetentionDays: ent.CompletedRetentionDays, LongTermOrder: ent.LongTermOrder}
	if err := s.Validate(); err != nil {
		return domain.DefaultSettings(), nil
	}
	return s, nil
}

// FetchSettings returns the stored settings, or defaults when none exist.
func (s *Tables) FetchSettings(ctx context.Context, userID string) (domain.Settings, error) {
	ent, err := s.settingsTable.GetEntity(ctx, userID, userID, nil)
	if err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, err
	}
	return decodeSettingsEntity(ent.Value)
}

func (s *Tables) SaveSettings(ctx context.Context, userID string, settings domain.Settings) error {
	payload, err := json.Marshal(settingsEntity{
		PartitionKey:           userID,
		RowKey:                 userID,
		CompletedRetentionDays: settings.CompletedRetentionDays,
		LongTermOrder:          settings.LongTermOrder,
	})
	if err != nil {
		return err
	}
	_, err = s.settingsTable.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return translate(err)
}

type userEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	UserID       string `json:"UserID"`
	Username     string `json:"Username"`
	PasswordHash string `json:"PasswordHash"`
	Role         string `json:"Role"`
	Status       string `json:"Status"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           ent.UserID,
		Username:     ent.Username,
		PasswordHash: ent.PasswordHash,
		Role:         ent.Role,
		Status:       ent.Status,
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, ent.CreatedAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, ent.UpdatedAt)
	return u, nil
}

// InsertUser stores a new account. Usernames are unique ignoring case.
func (s *Tables) InsertUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(userEntity{
		PartitionKey: usersPartition,
		RowKey:       strings.ToLower(u.Username),
		UserID:       u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Status:       u.Status,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    u.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = s.userTable.AddEntity(ctx, payload, nil)
	return translate(err)
}

func (s *Tables) GetUserByName(ctx context.Context, username string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, usersPartition, strings.ToLower(username), nil)
	if err != nil {
		return domain.User{}, translate(err)
	}
	return decodeUserEntity(resp.Value)
}

func (s *Tables) GetUser(ctx context.Context, id string) (domain.User, error) {
	filter := "PartitionKey eq " + odataString(usersPartition) + " and UserID eq " + odataString(id)
	top := int32(1)
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.User{}, translate(err)
		}
		if len(resp.Entities) > 0 {
			return decodeUserEntity(resp.Entities[0])
		}
	}
	return domain.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

// PublishEvents sends the given events to the event queue in order.
func (s *Tables) PublishEvents(ctx context.Context, events []domain.TaskEvent) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

func odataString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// translate maps Azure status codes onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, respErr.ErrorCode)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, respErr.ErrorCode)
		}
	}
	return err
}
