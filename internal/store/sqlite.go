// Package store provides the durable session-store backends and the
// cross-process session locker. The in-memory store in internal/session is
// the default; these exist for deployments that must survive restarts or
// span processes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pulse/internal/plan"
	"pulse/internal/session"
)

// SQLiteStore persists sessions in a local SQLite database (pure-Go
// driver). Suitable for single-process durable deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating directories as needed) and migrates the
// database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		state_json TEXT,
		tasks_json TEXT,
		last_main_tick DATETIME,
		last_tick_history_len INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		record_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON session_history(session_id, id);
	CREATE TABLE IF NOT EXISTS session_counters (
		session_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, name)
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*session.Session, error) {
	if err := s.ensure(ctx, id); err != nil {
		return nil, err
	}

	sess := &session.Session{ID: id}
	var (
		stateJSON sql.NullString
		tasksJSON sql.NullString
		lastTick  sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT platform, location, state_json, tasks_json, last_main_tick,
		       last_tick_history_len, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	err := row.Scan(&sess.Platform, &sess.Location, &stateJSON, &tasksJSON,
		&lastTick, &sess.LastTickHistoryLen, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if lastTick.Valid {
		sess.LastMainTick = lastTick.Time
	}
	if stateJSON.Valid && stateJSON.String != "" {
		if err := json.Unmarshal([]byte(stateJSON.String), &sess.State); err != nil {
			return nil, fmt.Errorf("decode session %s state: %w", id, err)
		}
	}
	if tasksJSON.Valid && tasksJSON.String != "" {
		if err := json.Unmarshal([]byte(tasksJSON.String), &sess.Tasks); err != nil {
			return nil, fmt.Errorf("decode session %s tasks: %w", id, err)
		}
	}

	if sess.History, err = s.history(ctx, id); err != nil {
		return nil, err
	}
	if sess.Counters, err = s.counters(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) Append(ctx context.Context, id string, rec plan.StepRecord) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode step record: %w", err)
	}
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO session_history (session_id, record_json, created_at)
		VALUES (?, ?, ?)`, id, string(raw), now); err != nil {
		return fmt.Errorf("append history %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Counter(ctx context.Context, id, name string) (int, error) {
	var value int
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM session_counters WHERE session_id = ? AND name = ?`,
		id, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s.%s: %w", id, name, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetCounter(ctx context.Context, id, name string, value int) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO session_counters (session_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT(session_id, name) DO UPDATE SET value = excluded.value`,
		id, name, value); err != nil {
		return fmt.Errorf("set counter %s.%s: %w", id, name, err)
	}
	return nil
}

func (s *SQLiteStore) SaveState(ctx context.Context, sess *session.Session) error {
	if err := s.ensure(ctx, sess.ID); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tasksJSON, err := json.Marshal(sess.Tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	var lastTick any
	if !sess.LastMainTick.IsZero() {
		lastTick = sess.LastMainTick
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET platform = ?, location = ?, state_json = ?,
			tasks_json = ?, last_main_tick = ?, last_tick_history_len = ?,
			updated_at = ?
		WHERE id = ?`,
		sess.Platform, sess.Location, string(stateJSON), string(tasksJSON),
		lastTick, sess.LastTickHistoryLen, time.Now(), sess.ID); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	for name, value := range sess.Counters {
		if err := s.SetCounter(ctx, sess.ID, name, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_history WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("reset history %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_counters WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("reset counters %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET platform = '', location = '', state_json = NULL,
			tasks_json = NULL, last_main_tick = NULL,
			last_tick_history_len = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id); err != nil {
		return fmt.Errorf("reset session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ensure(ctx context.Context, id string) error {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`, id, now, now); err != nil {
		return fmt.Errorf("ensure session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) history(ctx context.Context, id string) ([]plan.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM session_history
		WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	defer rows.Close()

	var history []plan.StepRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history %s: %w", id, err)
		}
		var rec plan.StepRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", id, err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) counters(ctx context.Context, id string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM session_counters WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load counters %s: %w", id, err)
	}
	defer rows.Close()

	counters := make(map[string]int)
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan counters %s: %w", id, err)
		}
		counters[name] = value
	}
	if len(counters) == 0 {
		counters = nil
	}
	return counters, rows.Err()
}
