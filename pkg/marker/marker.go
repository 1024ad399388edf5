// Package marker maintains the per-project mission-active marker file.
// External hook programs read it; the core writes it best-effort and never
// fails an operation on marker I/O errors.
package marker

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Writer writes and clears mission-active markers under a fixed directory.
type Writer struct {
	dir string
}

// NewWriter creates a marker writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) path(projectID string) string {
	return filepath.Join(w.dir, "mission-active-"+projectID)
}

// WriteActive records that the project's mission passed prechecks. The file
// content is the current RFC 3339 timestamp.
func (w *Writer) WriteActive(projectID string) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		slog.Warn("Failed to create marker directory", "dir", w.dir, "error", err)
		return
	}
	content := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(w.path(projectID), []byte(content), 0o644); err != nil {
		slog.Warn("Failed to write mission marker",
			"project", projectID, "error", err)
	}
}

// Clear removes the project's marker. Removing a missing marker is fine:
// mission_init clears stale files unconditionally.
func (w *Writer) Clear(projectID string) {
	if err := os.Remove(w.path(projectID)); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove mission marker",
			"project", projectID, "error", err)
	}
}

// Exists reports whether the marker file is present. Advisory only.
func (w *Writer) Exists(projectID string) bool {
	_, err := os.Stat(w.path(projectID))
	return err == nil
}
