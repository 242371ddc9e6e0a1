// Package validation provides request-shape validation for code
// submissions, applied before anything is materialized or spawned.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codedeck/runner/internal/models"
)

var (
	// ErrNoCode indicates the submission carries neither code nor files.
	ErrNoCode = errors.New("no code provided")
	// ErrTooLarge indicates the submission exceeds the size ceiling.
	ErrTooLarge = errors.New("submission exceeds maximum size")
	// ErrTooManyFiles indicates the file count ceiling was exceeded.
	ErrTooManyFiles = errors.New("too many files in submission")
	// ErrBadPath indicates a file path that is absolute or escapes the
	// workspace.
	ErrBadPath = errors.New("invalid file path")
)

// Limits bound a submission's size before any disk or process cost.
type Limits struct {
	MaxTotalBytes int
	MaxFiles      int
}

// DefaultLimits returns the standard submission limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalBytes: 1 << 20, // 1 MiB of source
		MaxFiles:      64,
	}
}

// ValidateRequest checks the submission shape against the limits.
func ValidateRequest(req *models.ExecutionRequest, limits Limits) error {
	if !req.Language.Supported() {
		return fmt.Errorf("unsupported language: %s", req.Language)
	}

	if len(req.Files) == 0 && strings.TrimSpace(req.Code) == "" && req.ProjectID == "" {
		return ErrNoCode
	}

	if limits.MaxFiles > 0 && len(req.Files) > limits.MaxFiles {
		return fmt.Errorf("%w: %d files, limit %d", ErrTooManyFiles, len(req.Files), limits.MaxFiles)
	}

	total := len(req.Code)
	for _, f := range req.Files {
		if err := ValidatePath(f.Path); err != nil {
			return err
		}
		total += len(f.Content)
	}
	if limits.MaxTotalBytes > 0 && total > limits.MaxTotalBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, total, limits.MaxTotalBytes)
	}

	return nil
}

// ValidatePath rejects absolute paths and workspace escapes.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrBadPath)
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return fmt.Errorf("%w: %s", ErrBadPath, p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %s", ErrBadPath, p)
		}
	}
	return nil
}
