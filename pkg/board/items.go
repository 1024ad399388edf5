package board

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ateamhq/warroom/pkg/apperr"
	"github.com/ateamhq/warroom/pkg/events"
	"github.com/ateamhq/warroom/pkg/models"
)

// CreateItemRequest carries the fields of POST /api/items.
type CreateItemRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Type         models.ItemType `json:"type"`
	Priority     models.Priority `json:"priority"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Outputs      models.Outputs  `json:"outputs,omitempty"`
}

// UpdateItemRequest carries the fields of PATCH /api/items/{id}. Nil fields
// are left untouched.
type UpdateItemRequest struct {
	Title        *string          `json:"title,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Type         *models.ItemType `json:"type,omitempty"`
	Priority     *models.Priority `json:"priority,omitempty"`
	Dependencies *[]string        `json:"dependencies,omitempty"`
	Outputs      *models.Outputs  `json:"outputs,omitempty"`
}

// CreateItem creates an item in briefings and links it to the current
// mission when one exists.
func (s *Service) CreateItem(ctx context.Context, projectID string, req CreateItemRequest) (*models.Item, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.Validation("title", "required")
	}
	if req.Type == "" {
		req.Type = models.ItemTypeTask
	}
	if !req.Type.Valid() {
		return nil, apperr.EnumValidation("type", string(req.Type), itemTypeNames())
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, apperr.EnumValidation("priority", string(req.Priority), priorityNames())
	}

	itemID := "itm-" + uuid.NewString()[:8]

	var created *models.Item
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		created = nil

		if err := validateDependenciesExist(ctx, tx, projectID, itemID, req.Dependencies); err != nil {
			return err
		}
		if err := checkOutputCollision(ctx, tx, projectID, itemID, req.Outputs, req.Dependencies); err != nil {
			return err
		}

		now := time.Now()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (project_id, id, title, description, item_type, priority,
				stage_id, output_test, output_impl, output_types, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			projectID, itemID, req.Title, req.Description, req.Type, req.Priority,
			models.StageBriefings, req.Outputs.Test, req.Outputs.Impl, req.Outputs.Types, now)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}

		for _, dep := range req.Dependencies {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_dependencies (project_id, item_id, depends_on_id)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				projectID, itemID, dep); err != nil {
				return fmt.Errorf("failed to insert dependency %s: %w", dep, err)
			}
		}

		// Items created while a mission is running belong to it.
		mission, err := currentMission(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if mission != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mission_items (mission_id, project_id, item_id)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				mission.ID, projectID, itemID); err != nil {
				return fmt.Errorf("failed to link item to mission: %w", err)
			}
		}

		created, err = GetItemTx(ctx, tx, projectID, itemID, false)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	s.publish(projectID, []events.Event{
		events.New(events.EventItemAdded, events.ItemAddedPayload{Item: *created}),
	})
	return created, nil
}

// UpdateItem applies a partial update. Stage and assignment are not
// patchable here; moves go through MoveItem and custody through claims.
func (s *Service) UpdateItem(ctx context.Context, projectID, itemID string, req UpdateItemRequest) (*models.Item, error) {
	if req.Type != nil && !req.Type.Valid() {
		return nil, apperr.EnumValidation("type", string(*req.Type), itemTypeNames())
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return nil, apperr.EnumValidation("priority", string(*req.Priority), priorityNames())
	}

	var updated *models.Item
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		updated = nil

		item, err := GetItemTx(ctx, tx, projectID, itemID, true)
		if err != nil {
			return err
		}

		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				return apperr.Validation("title", "must not be empty")
			}
			item.Title = *req.Title
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.Type != nil {
			item.Type = *req.Type
		}
		if req.Priority != nil {
			item.Priority = *req.Priority
		}
		if req.Outputs != nil {
			item.Outputs = *req.Outputs
		}

		deps := item.Dependencies
		if req.Dependencies != nil {
			deps = *req.Dependencies
			if err := validateDependenciesExist(ctx, tx, projectID, itemID, deps); err != nil {
				return err
			}
			if err := checkDependencyCycle(ctx, tx, projectID, itemID, deps); err != nil {
				return err
			}
		}

		if req.Outputs != nil || req.Dependencies != nil {
			if err := checkOutputCollision(ctx, tx, projectID, itemID, item.Outputs, deps); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE items SET title = $3, description = $4, item_type = $5, priority = $6,
				output_test = $7, output_impl = $8, output_types = $9, updated_at = $10
			 WHERE project_id = $1 AND id = $2`,
			projectID, itemID, item.Title, item.Description, item.Type, item.Priority,
			item.Outputs.Test, item.Outputs.Impl, item.Outputs.Types, time.Now())
		if err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}

		if req.Dependencies != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM item_dependencies WHERE project_id = $1 AND item_id = $2`,
				projectID, itemID); err != nil {
				return fmt.Errorf("failed to clear dependencies: %w", err)
			}
			for _, dep := range deps {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO item_dependencies (project_id, item_id, depends_on_id)
					 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
					projectID, itemID, dep); err != nil {
					return fmt.Errorf("failed to insert dependency %s: %w", dep, err)
				}
			}
		}

		updated, err = GetItemTx(ctx, tx, projectID, itemID, false)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	s.publish(projectID, []events.Event{
		events.New(events.EventItemUpdated, events.ItemUpdatedPayload{Item: *updated}),
	})
	return updated, nil
}

// ListItems returns the project's non-archived items.
func (s *Service) ListItems(ctx context.Context, projectID string) ([]models.Item, error) {
	items, err := listItemsWithDeps(ctx, s.db.DB(), projectID, false)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}

// ListWorkLog returns an item's work log entries, oldest first.
func (s *Service) ListWorkLog(ctx context.Context, projectID, itemID string) ([]models.WorkLogEntry, error) {
	if _, err := GetItemTx(ctx, s.db.DB(), projectID, itemID, false); err != nil {
		return nil, apperr.Wrap(err)
	}

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT id, project_id, item_id, agent_name, action, summary, created_at
		 FROM work_logs WHERE project_id = $1 AND item_id = $2 ORDER BY id`,
		projectID, itemID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	defer rows.Close()

	entries := []models.WorkLogEntry{}
	for rows.Next() {
		var e models.WorkLogEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ItemID, &e.Agent, &e.Action, &e.Summary, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(err)
		}
		entries = append(entries, e)
	}
	return entries, apperr.Wrap(rows.Err())
}

// validateDependenciesExist checks that every dependency names an existing,
// non-archived item in the same project. A dependency on itself is refused.
func validateDependenciesExist(ctx context.Context, q queryer, projectID, itemID string, deps []string) error {
	for _, dep := range deps {
		if dep == itemID {
			return apperr.Validation("dependencies", "item cannot depend on itself")
		}
		var exists bool
		err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM items
			   WHERE project_id = $1 AND id = $2 AND archived_at IS NULL)`,
			projectID, dep).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check dependency %s: %w", dep, err)
		}
		if !exists {
			return apperr.Newf(apperr.CodeValidation,
				"dependency '%s' does not exist in project '%s'", dep, projectID).
				WithDetails(map[string]any{"field": "dependencies", "dependency": dep})
		}
	}
	return nil
}

// checkDependencyCycle refuses dependency sets that would close a cycle,
// enumerating the cycle path for diagnostics.
func checkDependencyCycle(ctx context.Context, q queryer, projectID, itemID string, newDeps []string) error {
	edges, err := loadEdges(ctx, q, projectID)
	if err != nil {
		return err
	}
	edges[itemID] = newDeps

	if cycle := findCycle(edges, itemID); cycle != nil {
		return apperr.Newf(apperr.CodeDependencyCycle,
			"dependency would create a cycle: %s", strings.Join(cycle, " -> ")).
			WithDetails(map[string]any{"cycle": cycle})
	}
	return nil
}

// checkOutputCollision refuses a shared non-nil output path between two
// items in the project unless the items are directly dependent on each
// other.
func checkOutputCollision(ctx context.Context, q queryer, projectID, itemID string, outputs models.Outputs, deps []string) error {
	paths := outputs.Paths()
	if len(paths) == 0 {
		return nil
	}

	depSet := make(map[string]bool, len(deps))
	for _, dep := range deps {
		depSet[dep] = true
	}

	values := make([]string, 0, len(paths))
	for _, p := range paths {
		values = append(values, p)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, output_test, output_impl, output_types FROM items
		 WHERE project_id = $1 AND id <> $2 AND archived_at IS NULL
		   AND (output_test = ANY($3) OR output_impl = ANY($3) OR output_types = ANY($3))`,
		projectID, itemID, values)
	if err != nil {
		return fmt.Errorf("failed to check output collision: %w", err)
	}
	defer rows.Close()

	pathSet := make(map[string]bool, len(values))
	for _, p := range values {
		pathSet[p] = true
	}

	var collidingItems []string
	collidingFiles := make(map[string]bool)
	for rows.Next() {
		var other models.Item
		if err := rows.Scan(&other.ID, &other.Outputs.Test, &other.Outputs.Impl, &other.Outputs.Types); err != nil {
			return err
		}
		if depSet[other.ID] {
			continue // direct dependency: shared outputs are intentional
		}
		dependsOnUs, err := hasEdge(ctx, q, projectID, other.ID, itemID)
		if err != nil {
			return err
		}
		if dependsOnUs {
			continue
		}
		collidingItems = append(collidingItems, other.ID)
		for _, p := range other.Outputs.Paths() {
			if pathSet[p] {
				collidingFiles[p] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(collidingItems) > 0 {
		files := make([]string, 0, len(collidingFiles))
		for f := range collidingFiles {
			files = append(files, f)
		}
		sort.Strings(files)
		sort.Strings(collidingItems)
		return apperr.Newf(apperr.CodeOutputCollision,
			"output paths %s collide with items %s",
			strings.Join(files, ", "), strings.Join(collidingItems, ", ")).
			WithDetails(map[string]any{"files": files, "items": collidingItems})
	}
	return nil
}

func hasEdge(ctx context.Context, q queryer, projectID, from, to string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM item_dependencies
		   WHERE project_id = $1 AND item_id = $2 AND depends_on_id = $3)`,
		projectID, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check edge %s -> %s: %w", from, to, err)
	}
	return exists, nil
}

func itemTypeNames() []string {
	names := make([]string, len(models.ItemTypes))
	for i, t := range models.ItemTypes {
		names[i] = string(t)
	}
	return names
}

func priorityNames() []string {
	names := make([]string, len(models.Priorities))
	for i, p := range models.Priorities {
		names[i] = string(p)
	}
	return names
}
