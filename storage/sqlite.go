package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"schedule-planner/domain"
)

// SQLite stores everything in a single database file. Published events are
// appended to a local events table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS todos (
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	completed INTEGER DEFAULT NULL,
	is_long_term INTEGER NOT NULL DEFAULT 0,
	start_time TEXT NOT NULL DEFAULT '',
	end_time TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	user_id TEXT PRIMARY KEY,
	completed_retention_days INTEGER NOT NULL DEFAULT 0,
	long_term_order TEXT NOT NULL DEFAULT 'created_asc'
);
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	type TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	return s.ensureTodoColumns()
}

// ensureTodoColumns adds columns introduced after the first schema version.
func (s *SQLite) ensureTodoColumns() error {
	required := map[string]string{
		"is_starred": "ALTER TABLE todos ADD COLUMN is_starred INTEGER NOT NULL DEFAULT 0;",
		"tags":       "ALTER TABLE todos ADD COLUMN tags TEXT NOT NULL DEFAULT '[]';",
	}
	existing := map[string]struct{}{}
	rows, err := s.db.Query(`PRAGMA table_info(todos);`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	for col, alter := range required {
		if _, ok := existing[col]; ok {
			continue
		}
		if _, err := s.db.Exec(alter); err != nil {
			return err
		}
	}
	return nil
}

const todoColumns = `id, user_id, title, description, completed, is_long_term, is_starred, start_time, end_time, created_at, updated_at, tags`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (domain.Record, error) {
	var (
		id, userID, title, desc      string
		completed                    sql.NullInt64
		longTerm, starred            int
		start, end, created, updated string
		tags                         string
	)
	if err := row.Scan(&id, &userID, &title, &desc, &completed, &longTerm, &starred, &start, &end, &created, &updated, &tags); err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{
		ID:          domain.NewTaskID(id),
		UserID:      userID,
		Title:       title,
		Description: desc,
		IsLongTerm:  longTerm == 1,
		IsStarred:   starred == 1,
		StartTime:   start,
		EndTime:     end,
		CreatedAt:   created,
		UpdatedAt:   updated,
		Tags:        decodeTags(tags),
	}
	if completed.Valid {
		rec.Completed = domain.NewFlag(completed.Int64 == 1)
	}
	return rec, nil
}

func todoArgs(rec domain.Record) ([]any, error) {
	id, ok := rec.Key()
	if !ok || rec.UserID == "" {
		return nil, errors.New("storage: task id and user id are required")
	}
	completed := sql.NullInt64{}
	if rec.Completed != nil {
		completed = sql.NullInt64{Int64: boolInt(bool(*rec.Completed)), Valid: true}
	}
	return []any{
		id, rec.UserID, rec.Title, rec.Description, completed,
		boolInt(bool(rec.IsLongTerm)), boolInt(bool(rec.IsStarred)),
		rec.StartTime, rec.EndTime, rec.CreatedAt, rec.UpdatedAt, encodeTags(rec.Tags),
	}, nil
}

func (s *SQLite) FetchTasks(ctx context.Context, userID string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE user_id = ? ORDER BY rowid;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Record{}
	for rows.Next() {
		rec, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *SQLite) GetTask(ctx context.Context, userID, id string) (domain.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE user_id = ? AND id = ?;`, userID, id)
	rec, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return rec, err
}

func (s *SQLite) InsertTask(ctx context.Context, rec domain.Record) error {
	args, err := todoArgs(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO todos (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`, args...)
	if err != nil {
		return err
	}
	return expectRow(res, ErrConflict)
}

func (s *SQLite) ReplaceTask(ctx context.Context, rec domain.Record) error {
	args, err := todoArgs(rec)
	if err != nil {
		return err
	}
	// id and user_id lead the argument list; the statement wants them last.
	args = append(append([]any{}, args[2:]...), args[0], args[1])
	res, err := s.db.ExecContext(ctx, `UPDATE todos SET title = ?, description = ?, completed = ?, is_long_term = ?, is_starred = ?,
	start_time = ?, end_time = ?, created_at = ?, updated_at = ?, tags = ? WHERE id = ? AND user_id = ?;`, args...)
	if err != nil {
		return err
	}
	return expectRow(res, ErrNotFound)
}

func (s *SQLite) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE user_id = ? AND id = ?;`, userID, id)
	if err != nil {
		return err
	}
	return expectRow(res, ErrNotFound)
}

func (s *SQLite) FetchSettings(ctx context.Context, userID string) (domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `SELECT completed_retention_days, long_term_order FROM settings WHERE user_id = ?;`, userID).
		Scan(&st.CompletedRetentionDays, &st.LongTermOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	if err := st.Validate(); err != nil {
		return domain.DefaultSettings(), nil
	}
	return st, nil
}

func (s *SQLite) SaveSettings(ctx context.Context, userID string, st domain.Settings) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (user_id, completed_retention_days, long_term_order) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET completed_retention_days = excluded.completed_retention_days, long_term_order = excluded.long_term_order;`,
		userID, st.CompletedRetentionDays, st.LongTermOrder)
	return err
}

func (s *SQLite) InsertUser(ctx context.Context, u domain.User) error {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, username, password_hash, role, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.Status,
		u.CreatedAt.UTC().Format(time.RFC3339), u.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	return expectRow(res, ErrConflict)
}

func (s *SQLite) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.queryUser(ctx, `WHERE id = ?`, id)
}

func (s *SQLite) GetUserByName(ctx context.Context, username string) (domain.User, error) {
	return s.queryUser(ctx, `WHERE username = ?`, username)
}

func (s *SQLite) queryUser(ctx context.Context, where string, arg string) (domain.User, error) {
	var u domain.User
	var created, updated string
	err := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, role, status, created_at, updated_at FROM users `+where+`;`, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return u, nil
}

// PublishEvents appends events to the local events table in one transaction.
func (s *SQLite) PublishEvents(ctx context.Context, events []domain.TaskEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `INSERT INTO events (id, user_id, entity_id, type, data, timestamp) VALUES (?, ?, ?, ?, ?, ?);`,
			ev.ID, ev.UserID, ev.EntityID, ev.Type, string(ev.Data), ev.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Events returns published events for userID, oldest first.
func (s *SQLite) Events(ctx context.Context, userID string) ([]domain.TaskEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, entity_id, type, data, timestamp FROM events WHERE user_id = ? ORDER BY seq;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []domain.TaskEvent{}
	for rows.Next() {
		var ev domain.TaskEvent
		var data string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EntityID, &ev.Type, &data, &ev.Timestamp); err != nil {
			return nil, err
		}
		if data != "" && json.Valid([]byte(data)) {
			ev.Data = []byte(data)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func expectRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
