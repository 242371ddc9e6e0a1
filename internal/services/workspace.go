package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/codedeck/runner/internal/models"
)

// WorkspaceService materializes submitted source files into isolated
// per-run directories on disk. Every execution gets a fresh directory,
// never shared across concurrent requests, removed best-effort when the
// run is over.
type WorkspaceService struct {
	baseDir string
}

// NewWorkspaceService creates the workspace manager. baseDir may be empty,
// in which case the OS temp directory is used.
func NewWorkspaceService(baseDir string) *WorkspaceService {
	return &WorkspaceService{baseDir: baseDir}
}

// Materialize writes the file set under a fresh directory and returns its
// path plus a cleanup function. Paths are validated before anything
// touches disk: relative, inside the workspace, no traversal.
func (s *WorkspaceService) Materialize(files []models.SourceFile) (string, func(), error) {
	for _, f := range files {
		if err := validateRelPath(f.Path); err != nil {
			return "", nil, err
		}
	}

	dir, err := os.MkdirTemp(s.baseDir, "run-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[Workspace] Cleanup failed for %s: %v", dir, err)
		}
	}

	for _, f := range files {
		dst := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to create source directory: %w", err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}

	return dir, cleanup, nil
}

// Scratch creates a writable sibling directory for build artifacts,
// bind-mounted into container runs.
func (s *WorkspaceService) Scratch() (string, func(), error) {
	dir, err := os.MkdirTemp(s.baseDir, "build-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[Workspace] Cleanup failed for %s: %v", dir, err)
		}
	}
	return dir, cleanup, nil
}

func validateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: file path must not be empty", ErrInvalidRequest)
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return fmt.Errorf("%w: file path must be relative: %s", ErrInvalidRequest, p)
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: file path escapes the workspace: %s", ErrInvalidRequest, p)
	}
	return nil
}
