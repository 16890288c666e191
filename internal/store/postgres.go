package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pulse/internal/plan"
	"pulse/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore persists sessions in Postgres for multi-instance
// deployments. Schema is managed by embedded migrations.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx stdlib driver, runs migrations,
// and returns the store.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres store: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error { return p.db.Close() }

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, id string) (*session.Session, error) {
	if err := p.ensure(ctx, id); err != nil {
		return nil, err
	}

	sess := &session.Session{ID: id}
	var (
		stateJSON []byte
		tasksJSON []byte
		lastTick  sql.NullTime
	)
	row := p.db.QueryRowContext(ctx, `
		SELECT platform, location, state_json, tasks_json, last_main_tick,
		       last_tick_history_len, created_at, updated_at
		FROM sessions WHERE id = $1`, id)
	err := row.Scan(&sess.Platform, &sess.Location, &stateJSON, &tasksJSON,
		&lastTick, &sess.LastTickHistoryLen, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if lastTick.Valid {
		sess.LastMainTick = lastTick.Time
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &sess.State); err != nil {
			return nil, fmt.Errorf("decode session %s state: %w", id, err)
		}
	}
	if len(tasksJSON) > 0 {
		if err := json.Unmarshal(tasksJSON, &sess.Tasks); err != nil {
			return nil, fmt.Errorf("decode session %s tasks: %w", id, err)
		}
	}

	if sess.History, err = p.history(ctx, id); err != nil {
		return nil, err
	}
	if sess.Counters, err = p.counters(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

func (p *PostgresStore) Append(ctx context.Context, id string, rec plan.StepRecord) error {
	if err := p.ensure(ctx, id); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode step record: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO session_history (session_id, record_json) VALUES ($1, $2)`,
		id, raw); err != nil {
		return fmt.Errorf("append history %s: %w", id, err)
	}
	if _, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) Counter(ctx context.Context, id, name string) (int, error) {
	var value int
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM session_counters WHERE session_id = $1 AND name = $2`,
		id, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s.%s: %w", id, name, err)
	}
	return value, nil
}

func (p *PostgresStore) SetCounter(ctx context.Context, id, name string, value int) error {
	if err := p.ensure(ctx, id); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO session_counters (session_id, name, value) VALUES ($1, $2, $3)
		ON CONFLICT (session_id, name) DO UPDATE SET value = EXCLUDED.value`,
		id, name, value); err != nil {
		return fmt.Errorf("set counter %s.%s: %w", id, name, err)
	}
	return nil
}

func (p *PostgresStore) SaveState(ctx context.Context, sess *session.Session) error {
	if err := p.ensure(ctx, sess.ID); err != nil {
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
	if _, err := p.db.ExecContext(ctx, `
		UPDATE sessions SET platform = $1, location = $2, state_json = $3,
			tasks_json = $4, last_main_tick = $5, last_tick_history_len = $6,
			updated_at = now()
		WHERE id = $7`,
		sess.Platform, sess.Location, stateJSON, tasksJSON,
		lastTick, sess.LastTickHistoryLen, sess.ID); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	for name, value := range sess.Counters {
		if err := p.SetCounter(ctx, sess.ID, name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) Reset(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM session_history WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("reset history %s: %w", id, err)
	}
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM session_counters WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("reset counters %s: %w", id, err)
	}
	if _, err := p.db.ExecContext(ctx, `
		UPDATE sessions SET platform = '', location = '', state_json = NULL,
			tasks_json = NULL, last_main_tick = NULL,
			last_tick_history_len = 0, updated_at = now()
		WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reset session %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) ensure(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		id); err != nil {
		return fmt.Errorf("ensure session %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) history(ctx context.Context, id string) ([]plan.StepRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT record_json FROM session_history
		WHERE session_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	defer rows.Close()

	var history []plan.StepRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history %s: %w", id, err)
		}
		var rec plan.StepRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", id, err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

func (p *PostgresStore) counters(ctx context.Context, id string) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name, value FROM session_counters WHERE session_id = $1`, id)
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
