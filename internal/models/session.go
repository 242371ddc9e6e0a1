package models

import "time"

// SessionInfo describes a live interactive session (for API responses).
type SessionInfo struct {
	ID           string    `json:"id"`
	Language     Language  `json:"language"`
	EntryFile    string    `json:"entry_file"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}
