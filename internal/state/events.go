package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event types recorded in the server_events table.
const (
	EventStart       = "server.start"
	EventStop        = "server.stop"
	EventExit        = "server.exit"
	EventCrash       = "server.crash"
	EventReattach    = "server.reattach"
	EventStartFailed = "server.start_failed"
)

// Event is one entry of a server's lifecycle history.
type Event struct {
	ID        int64     `json:"id"`
	ServerID  string    `json:"server_id"`
	Type      string    `json:"type"`
	PID       *int      `json:"pid,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventLog appends lifecycle events for later inspection.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Record stores an event. A zero CreatedAt is set to now.
func (l *EventLog) Record(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var message sql.NullString
	if e.Message != "" {
		message = sql.NullString{String: e.Message, Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO server_events (server_id, event, pid, exit_code, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ServerID, e.Type, nullInt(e.PID), nullInt(e.ExitCode), message, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record %s event for %s: %w", e.Type, e.ServerID, err)
	}
	return nil
}

// Recent returns the newest events of a server first.
func (l *EventLog) Recent(ctx context.Context, serverID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, server_id, event, pid, exit_code, message, created_at
		FROM server_events
		WHERE server_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e        Event
			pid      sql.NullInt64
			exitCode sql.NullInt64
			message  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ServerID, &e.Type, &pid, &exitCode, &message, &e.CreatedAt); err != nil {
			return nil, err
		}
		if pid.Valid {
			v := int(pid.Int64)
			e.PID = &v
		}
		if exitCode.Valid {
			v := int(exitCode.Int64)
			e.ExitCode = &v
		}
		e.Message = message.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
