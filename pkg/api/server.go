// Package api exposes the board over HTTP: a JSON surface for the
// orchestrator and agent shells, and a server-sent-events stream for the
// viewer. All responses use the {success, data | error} envelope.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ateamhq/warroom/pkg/activity"
	"github.com/ateamhq/warroom/pkg/board"
	"github.com/ateamhq/warroom/pkg/claims"
	"github.com/ateamhq/warroom/pkg/config"
	"github.com/ateamhq/warroom/pkg/database"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/hooks"
	"github.com/ateamhq/warroom/pkg/missions"
	"github.com/ateamhq/warroom/pkg/projects"
	"github.com/ateamhq/warroom/pkg/version"
)

// Services bundles the service layer the server fronts.
type Services struct {
	Projects *projects.Service
	Board    *board.Service
	Claims   *claims.Service
	Missions *missions.Service
	Activity *activity.Service
	Hooks    *hooks.Service
}

// Server is the HTTP server.
type Server struct {
	db       *database.Client
	broker   *events.Broker
	projects *projects.Service
	board    *board.Service
	claims   *claims.Service
	missions *missions.Service
	activity *activity.Service
	hooks    *hooks.Service

	heartbeat time.Duration
	http      *http.Server
}

// NewServer wires the routes and middleware.
func NewServer(cfg *config.Config, db *database.Client, broker *events.Broker, svcs Services) *Server {
	s := &Server{
		db:        db,
		broker:    broker,
		projects:  svcs.Projects,
		board:     svcs.Board,
		claims:    svcs.Claims,
		missions:  svcs.Missions,
		activity:  svcs.Activity,
		hooks:     svcs.Hooks,
		heartbeat: cfg.Broker.HeartbeatInterval,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogging(), securityHeaders())

	router.GET("/health", s.Health)

	// Project management and the event stream identify the project
	// themselves; everything else requires the X-Project-ID header.
	router.GET("/api/projects", s.ListProjects)
	router.POST("/api/projects", s.CreateProject)
	router.GET("/api/board/events", s.StreamEvents)

	scoped := router.Group("/api", s.projectHeader())
	{
		scoped.GET("/board", s.GetBoard)
		scoped.GET("/board/readiness", s.GetReadiness)
		scoped.POST("/board/move", s.MoveItem)
		scoped.POST("/board/claim", s.ClaimItem)
		scoped.POST("/board/release", s.ReleaseItem)

		scoped.GET("/items", s.ListItems)
		scoped.POST("/items", s.CreateItem)
		scoped.PATCH("/items/:id", s.UpdateItem)
		scoped.POST("/items/:id/reject", s.RejectItem)
		scoped.GET("/items/:id/worklog", s.GetWorkLog)

		scoped.POST("/agents/start", s.AgentStart)
		scoped.POST("/agents/stop", s.AgentStop)

		scoped.GET("/missions", s.ListMissions)
		scoped.POST("/missions", s.CreateMission)
		scoped.GET("/missions/current", s.CurrentMission)
		scoped.POST("/missions/precheck", s.Precheck)
		scoped.POST("/missions/postcheck", s.Postcheck)
		scoped.POST("/missions/archive", s.ArchiveMission)
		scoped.POST("/missions/substate", s.UpdateMissionSubstate)

		scoped.GET("/activity", s.ListActivity)
		scoped.POST("/activity", s.LogActivity)

		scoped.POST("/hooks/events", s.IngestHookEvents)
		scoped.POST("/hooks/events/prune", s.PruneHookEvents)
		scoped.GET("/hooks/events", s.ListHookEvents)

		scoped.PATCH("/stages/:stageId", s.UpdateStage)
	}

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	return s
}

// Handler exposes the router, for tests driving the server with httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Health reports liveness plus database health.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"version":  version.Full(),
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": dbHealth,
	})
}
