package store

import (
	"context"
	"database/sql"
	"fmt"

	"material-service/internal/models"
)

// GetWorkOrderByID retrieves a work order scoped to the caller's org
func (s *Store) GetWorkOrderByID(ctx context.Context, orgID, woID string) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := s.db.GetContext(ctx, &wo,
		"SELECT * FROM work_orders WHERE id = $1 AND org_id = $2", woID, orgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeWONotFound, "work order not found: %s", woID)
	}
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

// GetRecipeByID retrieves a recipe with its items
func (s *Store) GetRecipeByID(ctx context.Context, orgID, recipeID string) (*models.Recipe, []models.RecipeItem, error) {
	var recipe models.Recipe
	err := s.db.GetContext(ctx, &recipe,
		"SELECT * FROM recipes WHERE id = $1 AND org_id = $2", recipeID, orgID)
	if err == sql.ErrNoRows {
		return nil, nil, models.NewEngineError(models.CodeValidation, "recipe not found: %s", recipeID)
	}
	if err != nil {
		return nil, nil, err
	}

	var items []models.RecipeItem
	err = s.db.SelectContext(ctx, &items,
		"SELECT * FROM recipe_items WHERE recipe_id = $1 ORDER BY sequence", recipeID)
	if err != nil {
		return nil, nil, err
	}

	return &recipe, items, nil
}

// GetRequirementByID retrieves one material requirement of a work order
func (s *Store) GetRequirementByID(ctx context.Context, orgID, woID, requirementID string) (*models.MaterialRequirement, error) {
	var req models.MaterialRequirement
	err := s.db.GetContext(ctx, &req,
		"SELECT * FROM wo_materials WHERE id = $1 AND wo_id = $2 AND org_id = $3",
		requirementID, woID, orgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeRequirementNotFound, "requirement not found: %s", requirementID)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequirementsByWOID retrieves all material requirements of a work order
func (s *Store) GetRequirementsByWOID(ctx context.Context, orgID, woID string) ([]models.MaterialRequirement, error) {
	var reqs []models.MaterialRequirement
	err := s.db.SelectContext(ctx, &reqs,
		"SELECT * FROM wo_materials WHERE wo_id = $1 AND org_id = $2 ORDER BY sequence",
		woID, orgID)
	return reqs, err
}

// ReplaceRequirementsTx swaps the full requirement set of a work order in one
// transaction. The snapshot builder calls this repeatedly while the work order
// is unlocked; the overwrite keeps the operation idempotent.
func (s *Store) ReplaceRequirementsTx(ctx context.Context, orgID, woID string, reqs []models.MaterialRequirement) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM wo_materials WHERE wo_id = $1 AND org_id = $2", woID, orgID); err != nil {
		return fmt.Errorf("failed to clear requirements: %w", err)
	}

	query := `
		INSERT INTO wo_materials
			(id, org_id, wo_id, product_id, material_name, required_qty,
			 reserved_qty, consumed_qty, uom, is_by_product, yield_percent, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, $10)`

	for _, req := range reqs {
		if _, err := tx.ExecContext(ctx, query,
			req.ID, orgID, woID, req.ProductID, req.MaterialName, req.RequiredQty,
			req.UoM, req.IsByProduct, req.YieldPercent, req.Sequence); err != nil {
			return fmt.Errorf("failed to insert requirement %s: %w", req.MaterialName, err)
		}
	}

	return tx.Commit()
}
