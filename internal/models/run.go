package models

import "time"

// RunStatus is the terminal outcome recorded in run history.
type RunStatus string

const (
	// RunSuccess means the program exited with code zero.
	RunSuccess RunStatus = "success"
	// RunFailed covers nonzero exits, compile errors and timeouts.
	RunFailed RunStatus = "failed"
)

// RunHistoryEntry is one recorded execution outcome for a project.
// Entries are append-only and capped per project; the oldest are evicted
// first. Never written for waiting_for_input results.
type RunHistoryEntry struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Language        Language  `json:"language"`
	EntryFile       string    `json:"entry_file"`
	Status          RunStatus `json:"status"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Stdout          string    `json:"stdout"`
	Stderr          string    `json:"stderr,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}
