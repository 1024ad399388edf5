package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/scope"
)

// requestLogging logs one structured line per request.
func requestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if project, ok := scope.ProjectFrom(c.Request.Context()); ok {
			attrs = append(attrs, "project", project)
		}
		if status >= 500 {
			slog.Error("Request", attrs...)
		} else {
			slog.Info("Request", attrs...)
		}
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// projectHeader is the scope guard for project-scoped routes: the X-Project-ID
// header is validated, normalized, upserted as a project row, and attached to
// the request context. Handlers read it back with projectID(c).
func (s *Server) projectHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := scope.NormalizeProjectID(c.GetHeader("X-Project-ID"))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		if err := s.projects.Ensure(c.Request.Context(), id); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(scope.WithProject(c.Request.Context(), id))
		c.Next()
	}
}

// projectID returns the normalized project id the scope guard attached.
func projectID(c *gin.Context) string {
	id, _ := scope.ProjectFrom(c.Request.Context())
	return id
}
