// Package cleanup provides data retention for hook telemetry.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ateamhq/warroom/pkg/config"
	"github.com/ateamhq/warroom/pkg/hooks"
	"github.com/ateamhq/warroom/pkg/projects"
)

// Service periodically prunes hook events older than the configured TTL in
// every project. Events linked to a project's current mission are spared.
// Pruning is idempotent and safe to run from multiple instances.
type Service struct {
	config   *config.RetentionConfig
	projects *projects.Service
	hooks    *hooks.Service

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, projectSvc *projects.Service, hookSvc *hooks.Service) *Service {
	return &Service{
		config:   cfg,
		projects: projectSvc,
		hooks:    hookSvc,
	}
}

// Start launches the background retention loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"hook_event_ttl", s.config.HookEventTTL,
		"interval", s.config.Interval)
}

// Stop signals the retention loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.pruneAll(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneAll(ctx)
		}
	}
}

func (s *Service) pruneAll(ctx context.Context) {
	list, err := s.projects.List(ctx)
	if err != nil {
		slog.Error("Retention: listing projects failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.config.HookEventTTL)
	for _, project := range list {
		count, err := s.hooks.Prune(ctx, project.ID, cutoff)
		if err != nil {
			slog.Error("Retention: hook event prune failed", "project", project.ID, "error", err)
			continue
		}
		if count > 0 {
			slog.Info("Retention: pruned hook events", "project", project.ID, "count", count)
		}
	}
}
