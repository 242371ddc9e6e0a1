package services

import (
	"fmt"

	"github.com/codedeck/runner/internal/database"
	"github.com/codedeck/runner/internal/models"
)

// ProjectFileService reads stored project sources. Execution only ever
// reads; the editing surface writing these rows lives elsewhere.
type ProjectFileService struct {
	db *database.DB
}

// NewProjectFileService creates the read-only project file store.
func NewProjectFileService(db *database.DB) *ProjectFileService {
	return &ProjectFileService{db: db}
}

// GetFiles returns every file of a project, ordered by path for
// deterministic phase detection.
func (s *ProjectFileService) GetFiles(projectID string) ([]models.SourceFile, error) {
	rows, err := s.db.Query(`
		SELECT path, content FROM project_files
		WHERE project_id = ?
		ORDER BY path`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query project files: %w", err)
	}
	defer rows.Close()

	var files []models.SourceFile
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(&f.Path, &f.Content); err != nil {
			return nil, fmt.Errorf("failed to scan project file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
