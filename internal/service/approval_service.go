package service

import (
	"context"
	"time"

	"material-service/internal/broker"
	"material-service/internal/models"
	"material-service/internal/store"
	"material-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApprovalService manages the over-consumption approval workflow
type ApprovalService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewApprovalService creates a new approval service
func NewApprovalService(store *store.Store, eventPublisher *broker.EventPublisher) *ApprovalService {
	return &ApprovalService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// OverConsumptionRequestInput opens an approval request for consumption
// beyond the scaled requirement
type OverConsumptionRequestInput struct {
	RequirementID string          `json:"requirement_id" binding:"required"`
	LotID         string          `json:"lot_id" binding:"required"`
	RequestedQty  decimal.Decimal `json:"requested_qty" binding:"required"`
}

// Request opens a pending over-consumption request. Only one pending request
// may exist per requirement, and a request only makes sense when the org
// gates over-consumption and the quantity actually exceeds the requirement.
func (s *ApprovalService) Request(ctx context.Context, orgID, actorID, woID string, input *OverConsumptionRequestInput) (*models.OverConsumptionRequest, error) {
	ctx, span := util.StartSpan(ctx, "ApprovalService.Request")
	defer span.End()

	if !input.RequestedQty.IsPositive() {
		return nil, models.NewEngineError(models.CodeValidation, "requested quantity must be positive")
	}

	wo, err := s.store.GetWorkOrderByID(ctx, orgID, woID)
	if err != nil {
		return nil, err
	}
	if !CanReserve(wo.Status) {
		return nil, models.NewEngineError(models.CodeInvalidWOStatus,
			"work order %s is %s, over-consumption requests apply to released or in-progress work orders", wo.WONumber, wo.Status)
	}

	req, err := s.store.GetRequirementByID(ctx, orgID, woID, input.RequirementID)
	if err != nil {
		return nil, err
	}

	totalAfter := req.ConsumedQty.Add(input.RequestedQty)
	overQty := totalAfter.Sub(req.RequiredQty)
	if !overQty.IsPositive() {
		return nil, models.NewEngineError(models.CodeNotOverConsumption,
			"consuming %s would not exceed the requirement of %s", input.RequestedQty, req.RequiredQty)
	}

	ps, err := s.store.GetProductionSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if ps.AllowOverConsumption {
		return nil, models.NewEngineError(models.CodeOverConsumptionAllowed,
			"over-consumption is allowed for this org, no approval needed")
	}

	pending, err := s.store.GetPendingApproval(ctx, orgID, input.RequirementID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, models.NewEngineError(models.CodePendingRequestExists,
			"requirement %s already has a pending request", req.MaterialName)
	}

	request := &models.OverConsumptionRequest{
		ID:                 uuid.New().String(),
		OrgID:              orgID,
		WOID:               woID,
		RequirementID:      input.RequirementID,
		LotID:              input.LotID,
		RequestedQty:       input.RequestedQty,
		TotalAfterQty:      totalAfter,
		OverConsumptionQty: overQty,
		VariancePercent:    VariancePercent(overQty, req.RequiredQty),
		RequestedBy:        actorID,
	}
	if err := s.store.CreateApproval(ctx, request); err != nil {
		return nil, err
	}

	util.OverConsumptionRequestsTotal.Inc()
	s.logger.Info("Over-consumption request opened",
		zap.String("wo_id", woID),
		zap.String("requirement_id", input.RequirementID),
		zap.String("over_qty", overQty.String()),
		zap.String("variance_percent", request.VariancePercent.String()))

	event := &models.OverConsumptionRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOverConsumptionRequested,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:            woID,
		RequestID:       request.ID,
		RequirementID:   input.RequirementID,
		RequestedQty:    input.RequestedQty,
		OverQty:         overQty,
		VariancePercent: request.VariancePercent,
	}
	if err := s.eventPublisher.PublishOverConsumptionRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish OverConsumptionRequested event", zap.Error(err))
	}

	return request, nil
}

// DecideInput carries an approval or rejection
type DecideInput struct {
	Reason string `json:"reason,omitempty"`
}

// Approve transitions a pending request to approved. The approval stays
// usable for exactly one consumption; the ledger links it on spend.
func (s *ApprovalService) Approve(ctx context.Context, orgID, actorID, requestID string, input *DecideInput) (*models.OverConsumptionRequest, error) {
	return s.decide(ctx, orgID, actorID, requestID, models.ApprovalStatusApproved, input.Reason)
}

// Reject transitions a pending request to rejected
func (s *ApprovalService) Reject(ctx context.Context, orgID, actorID, requestID string, input *DecideInput) (*models.OverConsumptionRequest, error) {
	return s.decide(ctx, orgID, actorID, requestID, models.ApprovalStatusRejected, input.Reason)
}

func (s *ApprovalService) decide(ctx context.Context, orgID, actorID, requestID, decision, reason string) (*models.OverConsumptionRequest, error) {
	ctx, span := util.StartSpan(ctx, "ApprovalService.decide")
	defer span.End()

	request, err := s.store.GetApprovalByID(ctx, orgID, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DecideApproval(ctx, orgID, requestID, decision, actorID, reason); err != nil {
		return nil, err
	}

	util.OverConsumptionDecisionsTotal.WithLabelValues(decision).Inc()
	s.logger.Info("Over-consumption request decided",
		zap.String("request_id", requestID),
		zap.String("decision", decision))

	event := &models.OverConsumptionDecidedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOverConsumptionDecided,
			OrgID:     orgID,
			ActorID:   actorID,
			Timestamp: time.Now(),
		},
		WOID:      request.WOID,
		RequestID: requestID,
		Decision:  decision,
		Reason:    reason,
	}
	if err := s.eventPublisher.PublishOverConsumptionDecided(ctx, event); err != nil {
		s.logger.Error("Failed to publish OverConsumptionDecided event", zap.Error(err))
	}

	return s.store.GetApprovalByID(ctx, orgID, requestID)
}

// GetPendingForWorkOrder lists pending requests of a work order
func (s *ApprovalService) GetPendingForWorkOrder(ctx context.Context, orgID, woID string) ([]models.OverConsumptionRequest, error) {
	if _, err := s.store.GetWorkOrderByID(ctx, orgID, woID); err != nil {
		return nil, err
	}
	return s.store.GetPendingApprovalsByWOID(ctx, orgID, woID)
}
