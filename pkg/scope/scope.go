// Package scope validates and normalizes project identifiers and carries the
// active project through request contexts. Every store call takes the
// project id explicitly; this package is the single place identifiers are
// checked, which keeps cross-project leakage impossible by construction.
package scope

import (
	"context"
	"regexp"
	"strings"

	"github.com/ateamhq/warroom/pkg/apperr"
)

// Project identifiers are URL-safe, 1–100 characters, lowercased on entry.
const maxProjectIDLen = 100

var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NormalizeProjectID validates the raw identifier and returns its canonical
// lowercase form.
func NormalizeProjectID(raw string) (string, error) {
	if raw == "" {
		return "", apperr.Validation("projectId", "required")
	}
	if len(raw) > maxProjectIDLen {
		return "", apperr.Validation("projectId", "must be at most 100 characters")
	}
	if !projectIDPattern.MatchString(raw) {
		return "", apperr.Validation("projectId", "must match [a-zA-Z0-9_-]+")
	}
	return strings.ToLower(raw), nil
}

type contextKey struct{}

// WithProject returns a context carrying the normalized project id.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, contextKey{}, projectID)
}

// ProjectFrom extracts the normalized project id from the context. The
// boolean is false when no project scope was attached.
func ProjectFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
