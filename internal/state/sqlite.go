package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepository keeps server states in the server_states table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectState = `
	SELECT server_id, status, pid, started_at, stopped_at, crash_count, updated_at
	FROM server_states
`

func (r *SQLiteRepository) Create(ctx context.Context, s ServerState) error {
	if !s.Status.Valid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO server_states (server_id, status, pid, started_at, stopped_at, crash_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stateArgs(s)...)
	if err != nil {
		return fmt.Errorf("failed to create state for %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (ServerState, error) {
	row := r.db.QueryRowContext(ctx, selectState+" WHERE server_id = ?", id)
	s, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ServerState{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ServerState{}, fmt.Errorf("failed to query state for %s: %w", id, err)
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]ServerState, error) {
	rows, err := r.db.QueryContext(ctx, selectState+" ORDER BY server_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	states := []ServerState{}
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, s ServerState) error {
	if !s.Status.Valid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO server_states (server_id, status, pid, started_at, stopped_at, crash_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			status = excluded.status,
			pid = excluded.pid,
			started_at = excluded.started_at,
			stopped_at = excluded.stopped_at,
			crash_count = excluded.crash_count,
			updated_at = excluded.updated_at
	`, stateArgs(s)...)
	if err != nil {
		return fmt.Errorf("failed to update state for %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM server_states WHERE server_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete state for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func stateArgs(s ServerState) []any {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []any{s.ID, string(s.Status), nullInt(s.PID), nullTime(s.StartedAt), nullTime(s.StoppedAt), s.CrashCountInWindow, updated.UTC()}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (ServerState, error) {
	var (
		s       ServerState
		status  string
		pid     sql.NullInt64
		started sql.NullTime
		stopped sql.NullTime
	)
	if err := row.Scan(&s.ID, &status, &pid, &started, &stopped, &s.CrashCountInWindow, &s.UpdatedAt); err != nil {
		return ServerState{}, err
	}
	s.Status = Status(status)
	if pid.Valid {
		p := int(pid.Int64)
		s.PID = &p
	}
	if started.Valid {
		s.StartedAt = &started.Time
	}
	if stopped.Valid {
		s.StoppedAt = &stopped.Time
	}
	return s, nil
}
