package service

import (
	"context"
	"fmt"
	"time"

	"material-service/internal/broker"
	"material-service/internal/models"
	"material-service/internal/redisclient"
	"material-service/internal/store"
	"material-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotService builds and rebuilds work order requirement snapshots
type SnapshotService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
) *SnapshotService {
	return &SnapshotService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// BuildSnapshotResponse summarizes a (re)built requirement set
type BuildSnapshotResponse struct {
	WOID      string                       `json:"wo_id"`
	RecipeID  string                       `json:"recipe_id"`
	Materials []models.MaterialRequirement `json:"materials"`
}

// BuildSnapshot scales the work order's recipe into a material requirement
// set. Rebuilding overwrites the previous set wholesale, so the operation is
// idempotent while the work order remains draft or planned. Once the work
// order is released the snapshot is locked for good.
func (s *SnapshotService) BuildSnapshot(ctx context.Context, orgID, actorID, woID string) (*BuildSnapshotResponse, error) {
	ctx, span := util.StartSpan(ctx, "SnapshotService.BuildSnapshot")
	defer span.End()

	acquired, err := s.redis.AcquireWOLock(ctx, woID, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire work order lock: %w", err)
	}
	if !acquired {
		return nil, models.NewEngineError(models.CodeValidation,
			"work order %s is being modified by another request", woID)
	}
	defer func() {
		if err := s.redis.ReleaseWOLock(context.Background(), woID); err != nil {
			s.logger.Warn("Failed to release work order lock", zap.String("wo_id", woID), zap.Error(err))
		}
	}()

	wo, err := s.store.GetWorkOrderByID(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}

	if !CanModifySnapshot(wo.Status) {
		return nil, models.NewEngineError(models.CodeSnapshotLocked,
			"work order %s is %s, snapshot can only be rebuilt while draft or planned", wo.WONumber, wo.Status)
	}

	recipe, items, err := s.store.GetRecipeByID(ctx, orgID, wo.RecipeID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, models.NewEngineError(models.CodeNoMaterials,
			"recipe %s has no component items", recipe.ID)
	}
	if !recipe.OutputQty.IsPositive() {
		return nil, models.NewEngineError(models.CodeValidation,
			"recipe %s has non-positive output quantity", recipe.ID)
	}

	reqs := make([]models.MaterialRequirement, 0, len(items))
	for _, item := range items {
		req := models.MaterialRequirement{
			ID:           uuid.New().String(),
			OrgID:        orgID,
			WOID:         woID,
			ProductID:    item.ProductID,
			MaterialName: item.MaterialName,
			RequiredQty:  ScaleQuantity(wo.PlannedQty, recipe.OutputQty, item.Qty, item.ScrapPercent),
			UoM:          item.UoM,
			IsByProduct:  item.IsByProduct,
			Sequence:     item.Sequence,
		}
		if item.IsByProduct {
			if item.YieldPercent != nil {
				yp := *item.YieldPercent
				req.YieldPercent = &yp
			} else {
				yp := DeriveYieldPercent(item.Qty, recipe.OutputQty)
				req.YieldPercent = &yp
			}
		}
		reqs = append(reqs, req)
	}

	if err := s.store.ReplaceRequirementsTx(ctx, orgID, woID, reqs); err != nil {
		return nil, fmt.Errorf("failed to replace requirements: %w", err)
	}

	util.SnapshotsBuiltTotal.Inc()
	s.logger.Info("Snapshot built",
		zap.String("wo_id", woID),
		zap.String("recipe_id", recipe.ID),
		zap.Int("materials", len(reqs)))

	event := &models.SnapshotBuiltEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSnapshotBuilt,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:          woID,
		RecipeID:      recipe.ID,
		MaterialCount: len(reqs),
	}
	if err := s.eventPublisher.PublishSnapshotBuilt(ctx, event); err != nil {
		s.logger.Error("Failed to publish SnapshotBuilt event", zap.Error(err))
	}

	return &BuildSnapshotResponse{
		WOID:      woID,
		RecipeID:  recipe.ID,
		Materials: reqs,
	}, nil
}

// GetMaterials returns the requirement set of a work order
func (s *SnapshotService) GetMaterials(ctx context.Context, orgID, woID string) ([]models.MaterialRequirement, error) {
	if _, err := s.store.GetWorkOrderByID(ctx, orgID, woID); err != nil {
		return nil, err
	}
	return s.store.GetRequirementsByWOID(ctx, orgID, woID)
}

// MaterialCoverage is one requirement annotated with its coverage status
type MaterialCoverage struct {
	models.MaterialRequirement
	Coverage CoverageStatus `json:"coverage"`
}

// GetMaterialsWithCoverage returns the requirement set annotated with how
// much of each requirement is covered by earmarks and consumptions
func (s *SnapshotService) GetMaterialsWithCoverage(ctx context.Context, orgID, woID string) ([]MaterialCoverage, error) {
	reqs, err := s.GetMaterials(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}

	coverage := make([]MaterialCoverage, 0, len(reqs))
	for _, req := range reqs {
		coverage = append(coverage, MaterialCoverage{
			MaterialRequirement: req,
			Coverage:            CalculateCoverage(req.RequiredQty, req.ReservedQty, req.ConsumedQty),
		})
	}
	return coverage, nil
}
