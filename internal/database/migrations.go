package database

// Migration is one schema step, identified by a sortable version.
type Migration struct {
	Version string
	Up      string
}

var migrations = []Migration{
	{
		Version: "001_server_states",
		Up: `
CREATE TABLE IF NOT EXISTS server_states (
    server_id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'unknown',
    pid INTEGER,
    started_at DATETIME,
    stopped_at DATETIME,
    crash_count INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version: "002_server_events",
		Up: `
CREATE TABLE IF NOT EXISTS server_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    event TEXT NOT NULL,
    pid INTEGER,
    exit_code INTEGER,
    message TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_server_events_server ON server_events(server_id, created_at);
`,
	},
	{
		Version: "003_console_commands",
		Up: `
CREATE TABLE IF NOT EXISTS console_commands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    command TEXT NOT NULL,
    executed_at DATETIME NOT NULL,
    success BOOLEAN NOT NULL DEFAULT 1,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_console_commands_server ON console_commands(server_id, executed_at);
`,
	},
}
