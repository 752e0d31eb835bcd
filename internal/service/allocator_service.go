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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllocatorService earmarks lot quantity against work order requirements
type AllocatorService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewAllocatorService creates a new allocator service
func NewAllocatorService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
) *AllocatorService {
	return &AllocatorService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// MaterialAllocation reports the auto-reserve outcome for one requirement
type MaterialAllocation struct {
	RequirementID string          `json:"requirement_id"`
	MaterialName  string          `json:"material_name"`
	RequestedQty  decimal.Decimal `json:"requested_qty"`
	AllocatedQty  decimal.Decimal `json:"allocated_qty"`
	Shortage      decimal.Decimal `json:"shortage"`
	Lots          []LotAllocation `json:"lots"`
}

// AutoReserveResponse summarizes one auto-reserve pass
type AutoReserveResponse struct {
	WOID               string                `json:"wo_id"`
	Policy             string                `json:"policy"`
	MaterialsProcessed int                   `json:"materials_processed"`
	FullyReserved      int                   `json:"fully_reserved"`
	PartiallyReserved  int                   `json:"partially_reserved"`
	Allocations        []MaterialAllocation  `json:"allocations"`
	Shortages          []models.ShortageData `json:"shortages"`
}

// AutoReserve walks every open requirement of a released work order and
// earmarks lot quantity in policy order. Shortage is not an error: the pass
// reserves what it can and reports what is missing, so planners can re-run
// it after a stock receipt.
func (s *AllocatorService) AutoReserve(ctx context.Context, orgID, actorID, woID string) (*AutoReserveResponse, error) {
	ctx, span := util.StartSpan(ctx, "AllocatorService.AutoReserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.AllocationLatency.Observe(time.Since(start).Seconds())
	}()

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
	if !CanReserve(wo.Status) {
		return nil, models.NewEngineError(models.CodeInvalidWOStatus,
			"work order %s is %s, materials can only be reserved while released or in progress", wo.WONumber, wo.Status)
	}

	reqs, err := s.store.GetRequirementsByWOID(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, models.NewEngineError(models.CodeNoMaterials,
			"work order %s has no material requirements", wo.WONumber)
	}

	ws, err := s.store.GetWarehouseSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	policy := PickingPolicy(ws)

	resp := &AutoReserveResponse{
		WOID:      woID,
		Policy:    policy,
		Shortages: []models.ShortageData{},
	}

	for _, req := range reqs {
		if req.IsByProduct {
			continue
		}

		remaining := req.RequiredQty.Sub(req.ReservedQty).Sub(req.ConsumedQty)
		if !remaining.IsPositive() {
			continue
		}
		resp.MaterialsProcessed++

		lots, err := s.store.GetCandidateLots(ctx, orgID, wo.WarehouseID, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate lots for %s: %w", req.MaterialName, err)
		}

		allocations, shortage := AllocateFromLots(lots, remaining, policy)

		allocated := decimal.Zero
		for _, alloc := range allocations {
			res := &models.Reservation{
				ID:            uuid.New().String(),
				OrgID:         orgID,
				WOID:          woID,
				RequirementID: req.ID,
				LotID:         alloc.LotID,
				Qty:           alloc.Qty,
				UoM:           req.UoM,
				ReservedBy:    actorID,
			}
			if err := s.store.CreateReservationTx(ctx, res); err != nil {
				// A concurrent consumer may have shrunk the lot between the
				// candidate read and the locked insert; count it as shortage
				// instead of failing the whole pass.
				if models.IsEngineError(err, models.CodeInsufficientQty) {
					shortage = shortage.Add(alloc.Qty)
					continue
				}
				return nil, fmt.Errorf("failed to reserve lot %s: %w", alloc.LotNumber, err)
			}
			allocated = allocated.Add(alloc.Qty)
			util.ReservationsCreatedTotal.WithLabelValues(policy).Inc()
		}

		resp.Allocations = append(resp.Allocations, MaterialAllocation{
			RequirementID: req.ID,
			MaterialName:  req.MaterialName,
			RequestedQty:  remaining,
			AllocatedQty:  allocated,
			Shortage:      shortage,
			Lots:          allocations,
		})

		if shortage.IsPositive() {
			resp.PartiallyReserved++
			util.ReservationShortagesTotal.Inc()
			resp.Shortages = append(resp.Shortages, models.ShortageData{
				RequirementID: req.ID,
				MaterialName:  req.MaterialName,
				RequiredQty:   req.RequiredQty,
				ReservedQty:   req.ReservedQty.Add(allocated),
				Shortage:      shortage,
			})
		} else {
			resp.FullyReserved++
		}
	}

	s.logger.Info("Auto-reserve pass finished",
		zap.String("wo_id", woID),
		zap.String("policy", policy),
		zap.Int("materials", resp.MaterialsProcessed),
		zap.Int("fully_reserved", resp.FullyReserved),
		zap.Int("shortages", len(resp.Shortages)))

	event := &models.MaterialsReservedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeMaterialsReserved,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:               woID,
		Policy:             policy,
		MaterialsProcessed: resp.MaterialsProcessed,
		FullyReserved:      resp.FullyReserved,
		PartiallyReserved:  resp.PartiallyReserved,
		Shortages:          resp.Shortages,
	}
	if err := s.eventPublisher.PublishMaterialsReserved(ctx, event); err != nil {
		s.logger.Error("Failed to publish MaterialsReserved event", zap.Error(err))
	}

	return resp, nil
}

// ReserveLotRequest is a manual reservation of a specific lot
type ReserveLotRequest struct {
	RequirementID string          `json:"requirement_id" binding:"required"`
	LotID         string          `json:"lot_id" binding:"required"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
}

// ReserveLot earmarks a specific lot against a requirement, bypassing the
// picking policy. Operators use it to pin a lot chosen on the floor.
func (s *AllocatorService) ReserveLot(ctx context.Context, orgID, actorID, woID string, req *ReserveLotRequest) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "AllocatorService.ReserveLot")
	defer span.End()

	if !req.Qty.IsPositive() {
		return nil, models.NewEngineError(models.CodeValidation, "reservation quantity must be positive")
	}

	wo, err := s.store.GetWorkOrderByID(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}
	if !CanReserve(wo.Status) {
		return nil, models.NewEngineError(models.CodeInvalidWOStatus,
			"work order %s is %s, materials can only be reserved while released or in progress", wo.WONumber, wo.Status)
	}

	requirement, err := s.store.GetRequirementByID(ctx, orgID, woID, req.RequirementID)
	if err != nil {
		return nil, err
	}

	lot, err := s.store.GetLotByID(ctx, orgID, req.LotID)
	if err != nil {
		return nil, err
	}
	if lot.WarehouseID != wo.WarehouseID {
		return nil, models.NewEngineError(models.CodeLotNotAvailable,
			"lot %s is in a different warehouse than work order %s", lot.LotNumber, wo.WONumber)
	}
	if lot.ProductID != requirement.ProductID {
		return nil, models.NewEngineError(models.CodeProductMismatch,
			"lot %s holds a different product than requirement %s", lot.LotNumber, requirement.MaterialName)
	}
	if lot.UoM != requirement.UoM {
		return nil, models.NewEngineError(models.CodeUoMMismatch,
			"lot %s is in %s, requirement expects %s", lot.LotNumber, lot.UoM, requirement.UoM)
	}
	if lot.Status != models.LotStatusAvailable && lot.Status != models.LotStatusReserved {
		return nil, models.NewEngineError(models.CodeLotNotAvailable, "lot %s is %s", lot.LotNumber, lot.Status)
	}

	reservation := &models.Reservation{
		ID:            uuid.New().String(),
		OrgID:         orgID,
		WOID:          woID,
		RequirementID: req.RequirementID,
		LotID:         req.LotID,
		Qty:           req.Qty,
		UoM:           requirement.UoM,
		ReservedBy:    actorID,
	}
	if err := s.store.CreateReservationTx(ctx, reservation); err != nil {
		return nil, err
	}

	util.ReservationsCreatedTotal.WithLabelValues("manual").Inc()
	s.logger.Info("Lot reserved manually",
		zap.String("wo_id", woID),
		zap.String("lot_id", req.LotID),
		zap.String("qty", req.Qty.String()))

	return reservation, nil
}

// ReleaseReservation cancels one earmark and returns its quantity to the
// lot's available pool
func (s *AllocatorService) ReleaseReservation(ctx context.Context, orgID, actorID, woID, reservationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "AllocatorService.ReleaseReservation")
	defer span.End()

	res, err := s.store.ReleaseReservationTx(ctx, orgID, woID, reservationID)
	if err != nil {
		return nil, err
	}

	util.ReservationsReleasedTotal.Inc()
	s.logger.Info("Reservation released",
		zap.String("wo_id", woID),
		zap.String("reservation_id", reservationID))

	event := &models.ReservationReleasedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReservationReleased,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:          woID,
		ReservationID: res.ID,
		LotID:         res.LotID,
		ReleasedQty:   res.Qty,
	}
	if err := s.eventPublisher.PublishReservationReleased(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReservationReleased event", zap.Error(err))
	}

	return res, nil
}

// GetReservations lists the active earmarks of one requirement in
// allocation order
func (s *AllocatorService) GetReservations(ctx context.Context, orgID, woID, requirementID string) ([]models.Reservation, error) {
	if _, err := s.store.GetRequirementByID(ctx, orgID, woID, requirementID); err != nil {
		return nil, err
	}
	return s.store.GetReservationsByRequirement(ctx, orgID, requirementID)
}

// ReleaseAllForWorkOrder cancels every active earmark of a work order.
// Called when the work order itself is cancelled.
func (s *AllocatorService) ReleaseAllForWorkOrder(ctx context.Context, orgID, actorID, woID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "AllocatorService.ReleaseAllForWorkOrder")
	defer span.End()

	if _, err := s.store.GetWorkOrderByID(ctx, orgID, woID); err != nil {
		return 0, err
	}

	count, err := s.store.ReleaseAllReservationsTx(ctx, orgID, woID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Released all reservations",
		zap.String("wo_id", woID),
		zap.Int("count", count))

	return count, nil
}
