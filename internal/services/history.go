package services

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/codedeck/runner/internal/database"
	"github.com/codedeck/runner/internal/models"
)

// HistoryService records terminal run outcomes per project, keeping only
// the most recent entries. Eviction is purely by recency.
type HistoryService struct {
	db    *database.DB
	limit int
}

// NewHistoryService creates the recorder with the per-project cap.
func NewHistoryService(db *database.DB, limit int) *HistoryService {
	return &HistoryService{db: db, limit: limit}
}

// Record appends one entry and evicts anything beyond the cap. Runs
// without a project are not recorded; history is a project-scoped feature.
func (s *HistoryService) Record(projectID string, lang models.Language, entryFile string, result *models.ExecutionResult) error {
	if projectID == "" {
		return nil
	}

	status := models.RunSuccess
	if result.State == models.StateFailed {
		status = models.RunFailed
	}

	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO run_history (id, project_id, language, entry_file, status, execution_time_ms, stdout, stderr, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, string(lang), entryFile, string(status),
		result.ExecutionTimeMs, result.Stdout, result.Stderr, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if err := s.evict(projectID); err != nil {
		// The entry itself is in; a failed eviction only delays the cap.
		log.Printf("[History] Eviction failed for project %s: %v", projectID, err)
	}
	return nil
}

func (s *HistoryService) evict(projectID string) error {
	_, err := s.db.Exec(`
		DELETE FROM run_history
		WHERE project_id = ?
		  AND id NOT IN (
			SELECT id FROM run_history
			WHERE project_id = ?
			ORDER BY executed_at DESC, id DESC
			LIMIT ?
		  )`,
		projectID, projectID, s.limit,
	)
	return err
}

// ListByProject returns the recorded runs newest first, up to the cap.
func (s *HistoryService) ListByProject(projectID string) ([]models.RunHistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, language, entry_file, status, execution_time_ms, stdout, stderr, executed_at
		FROM run_history
		WHERE project_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`,
		projectID, s.limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.RunHistoryEntry, 0)
	for rows.Next() {
		var e models.RunHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Language, &e.EntryFile, &e.Status, &e.ExecutionTimeMs, &e.Stdout, &e.Stderr, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
