package console

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const defaultHistoryLimit = 50

// CommandRecord is one command sent to a server console.
type CommandRecord struct {
	ID         int64     `json:"id"`
	ServerID   string    `json:"server_id"`
	Command    string    `json:"command"`
	ExecutedAt time.Time `json:"executed_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// CommandHistory stores console commands in the console_commands table.
type CommandHistory struct {
	db *sql.DB
}

func NewCommandHistory(db *sql.DB) *CommandHistory {
	return &CommandHistory{db: db}
}

// Record stores a command and the outcome of writing it.
func (ch *CommandHistory) Record(ctx context.Context, serverID, command string, sendErr error) error {
	var errText sql.NullString
	if sendErr != nil {
		errText = sql.NullString{String: sendErr.Error(), Valid: true}
	}

	_, err := ch.db.ExecContext(ctx, `
		INSERT INTO console_commands (server_id, command, executed_at, success, error)
		VALUES (?, ?, ?, ?, ?)
	`, serverID, command, time.Now().UTC(), sendErr == nil, errText)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// Recent returns the newest commands of a server first.
func (ch *CommandHistory) Recent(ctx context.Context, serverID string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := ch.db.QueryContext(ctx, `
		SELECT id, server_id, command, executed_at, success, error
		FROM console_commands
		WHERE server_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, serverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commands := []CommandRecord{}
	for rows.Next() {
		var cmd CommandRecord
		var errText sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.ServerID, &cmd.Command, &cmd.ExecutedAt, &cmd.Success, &errText); err != nil {
			return nil, err
		}
		cmd.Error = errText.String
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

// Autocomplete returns distinct past commands starting with prefix.
func (ch *CommandHistory) Autocomplete(ctx context.Context, serverID, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := ch.db.QueryContext(ctx, `
		SELECT command
		FROM console_commands
		WHERE server_id = ? AND command LIKE ? ESCAPE '\' AND success = 1
		GROUP BY command
		ORDER BY MAX(executed_at) DESC
		LIMIT ?
	`, serverID, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suggestions := []string{}
	for rows.Next() {
		var cmd string
		if err := rows.Scan(&cmd); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, cmd)
	}
	return suggestions, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
