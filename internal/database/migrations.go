package database

import (
	"database/sql"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		language TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS project_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (project_id, path),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS run_history (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		language TEXT NOT NULL,
		entry_file TEXT,
		status TEXT NOT NULL,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		stdout TEXT,
		stderr TEXT,
		executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_project_files_project_id ON project_files(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_run_history_project_id ON run_history(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_run_history_executed_at ON run_history(executed_at)`,
}

func runMigrations(db *sql.DB) error {
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
