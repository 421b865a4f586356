package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-planner/domain"
	"schedule-planner/storage"
)

const maxBodySize = 64 * 1024 // 64 KiB

// AuthService verifies bearer tokens and issues them for local accounts.
type AuthService interface {
	Authenticator
	TokenIssuer
}

// Register wires up all API routes on the provided Echo instance. deduper
// may be nil, in which case idempotency keys only map to stable task ids.
func Register(e *echo.Echo, store Storage, auth AuthService, deduper Deduper, publisher *Publisher, logger *log.Logger) {
	v1 := e.Group("/api/v1")
	v1.POST("/auth/register", register(store, logger))
	v1.POST("/auth/login", login(store, auth))

	v1.GET("/todos", listTodos(store, auth))
	v1.POST("/todos", createTodo(store, auth, deduper, publisher, logger))
	v1.GET("/todos/:id", getTodo(store, auth))
	v1.PUT("/todos/:id", updateTodo(store, auth, publisher, logger))
	v1.DELETE("/todos/:id", deleteTodo(store, auth, publisher, logger))

	v1.GET("/board", getBoard(store, auth, logger))
	v1.GET("/settings", getSettings(store, auth))
	v1.PUT("/settings", putSettings(store, auth))

	e.GET("/healthz", healthz(store))
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p, ok := store.(pinger); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			}
		}
		return c.NoContent(http.StatusOK)
	}
}

// authorize resolves the calling user. Local accounts that are not active
// are refused; subjects without a local account come from an external
// identity provider and are let through.
func authorize(c echo.Context, auth Authenticator, users UserStore) (string, int, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", http.StatusUnauthorized, err
	}
	u, err := users.GetUser(c.Request().Context(), userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return userID, 0, nil
	case err != nil:
		return "", http.StatusInternalServerError, err
	case !u.IsActive():
		return "", http.StatusForbidden, errors.New("account is " + u.Status)
	}
	return userID, 0, nil
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

func decodeBody(c echo.Context, dst any, strict bool) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(dst)
}

func parseTaskQuery(c echo.Context) (domain.TaskQuery, error) {
	q := domain.TaskQuery{Tag: strings.TrimSpace(c.QueryParam("tag"))}
	for name, dst := range map[string]**bool{"is_long_term": &q.IsLongTerm, "is_starred": &q.IsStarred} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.TaskQuery{}, errors.New("invalid " + name)
		}
		*dst = &v
	}
	if raw := c.QueryParam("start_time"); raw != "" {
		t, err := domain.ParseTimestamp(raw)
		if err != nil {
			return domain.TaskQuery{}, errors.New("invalid start_time")
		}
		q.StartAfter = t
	}
	if raw := c.QueryParam("end_time"); raw != "" {
		t, err := domain.ParseTimestamp(raw)
		if err != nil {
			return domain.TaskQuery{}, errors.New("invalid end_time")
		}
		q.EndBefore = t
	}
	return q, nil
}

func listTodos(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}
		q, err := parseTaskQuery(c)
		if err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		records, err := store.FetchTasks(c.Request().Context(), userID)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to fetch tasks")
		}
		out := make([]domain.Record, 0, len(records))
		for _, r := range records {
			if q.Match(r) {
				out = append(out, r)
			}
		}
		return c.JSON(http.StatusOK, out)
	}
}

func getTodo(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}
		rec, err := store.GetTask(c.Request().Context(), userID, c.Param("id"))
		if err != nil {
			return storageFailure(c, err)
		}
		return c.JSON(http.StatusOK, rec)
	}
}

func createTodo(store Storage, auth Authenticator, deduper Deduper, publisher *Publisher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}

		var req domain.CreateTaskRequest
		if err := decodeBody(c, &req, false); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}

		id := uuid.NewString()
		key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
		added := false
		if key != "" {
			id = taskIDForKey(userID, key)
			if deduper != nil {
				fresh, derr := deduper.Add(ctx, userID, key)
				switch {
				case derr != nil:
					logger.Warnf("idempotency check failed, err: %v, user: %s", derr, userID)
				case !fresh:
					return replayCreate(c, store, userID, id)
				default:
					added = true
				}
			}
		}

		rec, err := req.ToRecord(id, userID, clock())
		if err != nil {
			if added {
				_ = deduper.Remove(ctx, userID, key)
			}
			return fail(c, http.StatusBadRequest, err.Error())
		}
		if err := store.InsertTask(ctx, rec); err != nil {
			if added {
				if rerr := deduper.Remove(ctx, userID, key); rerr != nil {
					logger.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, userID)
				}
			}
			if key != "" && errors.Is(err, storage.ErrConflict) {
				return replayCreate(c, store, userID, id)
			}
			return storageFailure(c, err)
		}

		publishChange(ctx, publisher, logger, userID, domain.TaskCreated, id, rec)
		return c.JSON(http.StatusCreated, rec)
	}
}

// replayCreate answers a repeated create with the task the first request stored.
func replayCreate(c echo.Context, store Storage, userID, id string) error {
	rec, err := store.GetTask(c.Request().Context(), userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fail(c, http.StatusConflict, "request with this idempotency key is in progress")
		}
		return storageFailure(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func updateTodo(store Storage, auth Authenticator, publisher *Publisher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}
		id := c.Param("id")
		current, err := store.GetTask(ctx, userID, id)
		if err != nil {
			return storageFailure(c, err)
		}

		var req domain.UpdateTaskRequest
		if err := decodeBody(c, &req, false); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		rec, err := req.Apply(current, clock())
		if err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		if err := store.ReplaceTask(ctx, rec); err != nil {
			return storageFailure(c, err)
		}

		publishChange(ctx, publisher, logger, userID, domain.TaskUpdated, id, rec)
		return c.JSON(http.StatusOK, rec)
	}
}

func deleteTodo(store Storage, auth Authenticator, publisher *Publisher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}
		id := c.Param("id")
		if err := store.DeleteTask(ctx, userID, id); err != nil {
			return storageFailure(c, err)
		}

		publishChange(ctx, publisher, logger, userID, domain.TaskDeleted, id, nil)
		return c.JSON(http.StatusOK, messageResponse{Message: "deleted"})
	}
}

func storageFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fail(c, http.StatusNotFound, "task not found")
	case errors.Is(err, storage.ErrConflict):
		return fail(c, http.StatusConflict, "task already exists")
	}
	c.Logger().Error(err)
	return fail(c, http.StatusInternalServerError, "storage error")
}

// publishChange emits a task event. The mutation has already been stored, so
// publish failures are logged rather than reported to the caller.
func publishChange(ctx context.Context, publisher *Publisher, logger *log.Logger, userID, eventType, entityID string, payload any) {
	if publisher == nil {
		return
	}
	ev := domain.TaskEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		EntityID:  entityID,
		Type:      eventType,
		Timestamp: nextTimestamp(),
	}
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			logger.Errorf("encode event payload: %v", err)
			return
		}
		ev.Data = data
	}
	if err := publisher.Publish(ctx, userID, []domain.TaskEvent{ev}); err != nil {
		logger.Errorf("publish inline failed, err: %v, user: %s, type: %s", err, userID, eventType)
	}
}
