package service

import (
	"context"
	"encoding/json"
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

// ConsumptionService records consumption against reserved lots and reverses
// mistaken entries
type ConsumptionService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewConsumptionService creates a new consumption service
func NewConsumptionService(store *store.Store, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *ConsumptionService {
	return &ConsumptionService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// ConsumeRequest records quantity withdrawn from a reserved lot
type ConsumeRequest struct {
	RequirementID  string          `json:"requirement_id" binding:"required"`
	LotID          string          `json:"lot_id" binding:"required"`
	Qty            decimal.Decimal `json:"qty" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// ConsumeResponse reports the committed consumption
type ConsumeResponse struct {
	Consumption *models.Consumption `json:"consumption"`
	LotQtyAfter decimal.Decimal     `json:"lot_qty_after"`
	LotStatus   string              `json:"lot_status"`
	ApprovalID  string              `json:"approval_id,omitempty"`
}

// Consume withdraws quantity from a reserved lot. Quantity beyond the scaled
// requirement passes only when the org allows over-consumption outright or an
// approved, unspent request covers the excess.
func (s *ConsumptionService) Consume(ctx context.Context, orgID, actorID, woID string, req *ConsumeRequest) (*ConsumeResponse, error) {
	ctx, span := util.StartSpan(ctx, "ConsumptionService.Consume")
	defer span.End()

	// Scanner guns retry on flaky wifi; a replayed key returns the original
	// response instead of double-consuming.
	if req.IdempotencyKey != "" {
		cached, err := s.redis.GetIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		} else if cached != nil {
			var resp ConsumeResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				s.logger.Info("Replayed consume request",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.String("consumption_id", resp.Consumption.ID))
				return &resp, nil
			}
		}
	}

	wo, err := s.store.GetWorkOrderByID(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}
	if !CanReserve(wo.Status) {
		return nil, models.NewEngineError(models.CodeInvalidWOStatus,
			"work order %s is %s, materials can only be consumed while released or in progress", wo.WONumber, wo.Status)
	}

	ps, err := s.store.GetProductionSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}

	result, err := s.store.ConsumeTx(ctx, store.ConsumeParams{
		OrgID:                orgID,
		ActorID:              actorID,
		WOID:                 woID,
		RequirementID:        req.RequirementID,
		LotID:                req.LotID,
		Qty:                  req.Qty,
		AllowOverConsumption: ps.AllowOverConsumption,
	})
	if err != nil {
		if code := models.ErrCode(err); code != "" {
			util.ConsumptionsFailedTotal.WithLabelValues(code).Inc()
		}
		return nil, err
	}

	util.ConsumptionsTotal.Inc()
	s.logger.Info("Material consumed",
		zap.String("wo_id", woID),
		zap.String("lot_id", req.LotID),
		zap.String("qty", req.Qty.String()),
		zap.String("lot_status", result.LotStatus))

	event := &models.MaterialConsumedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeMaterialConsumed,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:          woID,
		ConsumptionID: result.Consumption.ID,
		RequirementID: req.RequirementID,
		LotID:         req.LotID,
		Qty:           req.Qty,
		LotQtyAfter:   result.LotQtyAfter,
		LotStatus:     result.LotStatus,
	}
	if err := s.eventPublisher.PublishMaterialConsumed(ctx, event); err != nil {
		s.logger.Error("Failed to publish MaterialConsumed event", zap.Error(err))
	}

	resp := &ConsumeResponse{
		Consumption: result.Consumption,
		LotQtyAfter: result.LotQtyAfter,
		LotStatus:   result.LotStatus,
		ApprovalID:  result.ApprovalID,
	}

	if req.IdempotencyKey != "" {
		if payload, err := json.Marshal(resp); err == nil {
			if err := s.redis.SetIdempotencyKey(ctx, req.IdempotencyKey, payload, 24*time.Hour); err != nil {
				s.logger.Warn("Failed to store idempotency key", zap.Error(err))
			}
		}
	}

	return resp, nil
}

// ReverseRequest reverses a previously recorded consumption
type ReverseRequest struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes,omitempty"`
}

// ReverseResponse reports the reversal and the restored lot state
type ReverseResponse struct {
	Consumption *models.Consumption `json:"consumption"`
	LotQtyAfter decimal.Decimal     `json:"lot_qty_after"`
	LotStatus   string              `json:"lot_status"`
}

// Reverse compensates a consumption exactly once: the lot gets its quantity
// back, the earmark reactivates and the genealogy entry flips to reversed.
// A second reversal of the same consumption is rejected.
func (s *ConsumptionService) Reverse(ctx context.Context, orgID, actorID, woID, consumptionID string, req *ReverseRequest) (*ReverseResponse, error) {
	ctx, span := util.StartSpan(ctx, "ConsumptionService.Reverse")
	defer span.End()

	if !models.ValidReversalReason(req.Reason) {
		return nil, models.NewEngineError(models.CodeValidation,
			"unknown reversal reason: %s", req.Reason)
	}
	if req.Reason == models.ReversalReasonOther && req.Notes == "" {
		return nil, models.NewEngineError(models.CodeNotesRequiredForOther,
			"reversal reason 'other' requires explanatory notes")
	}

	if _, err := s.store.GetWorkOrderByID(ctx, orgID, woID); err != nil {
		return nil, err
	}

	result, err := s.store.ReverseTx(ctx, store.ReverseParams{
		OrgID:         orgID,
		ActorID:       actorID,
		WOID:          woID,
		ConsumptionID: consumptionID,
		Reason:        req.Reason,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, err
	}

	util.ReversalsTotal.Inc()
	s.logger.Info("Consumption reversed",
		zap.String("wo_id", woID),
		zap.String("consumption_id", consumptionID),
		zap.String("reason", req.Reason),
		zap.String("lot", result.LotNumber))

	event := &models.ConsumptionReversedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeConsumptionReversed,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:          woID,
		ConsumptionID: consumptionID,
		LotID:         result.Consumption.LotID,
		RestoredQty:   result.Consumption.Qty,
		Reason:        req.Reason,
	}
	if err := s.eventPublisher.PublishConsumptionReversed(ctx, event); err != nil {
		s.logger.Error("Failed to publish ConsumptionReversed event", zap.Error(err))
	}

	return &ReverseResponse{
		Consumption: result.Consumption,
		LotQtyAfter: result.LotQtyAfter,
		LotStatus:   result.LotStatus,
	}, nil
}

// GetGenealogy returns the full consumption trail of a work order,
// reversed entries included
func (s *ConsumptionService) GetGenealogy(ctx context.Context, orgID, woID string) ([]models.GenealogyEntry, error) {
	if _, err := s.store.GetWorkOrderByID(ctx, orgID, woID); err != nil {
		return nil, err
	}
	return s.store.GetGenealogyByWOID(ctx, orgID, woID)
}
