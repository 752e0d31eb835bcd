package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"material-service/internal/broker"
	"material-service/internal/models"
	"material-service/internal/store"
	"material-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AuditWorker consumes material lifecycle events and writes the audit trail.
// Consumers commit after the handler, so the processed-events table keeps
// redelivered messages from producing duplicate rows.
type AuditWorker struct {
	consumer *broker.Consumer
	store    *store.Store
	logger   *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, store *store.Store) *AuditWorker {
	return &AuditWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}

func (w *AuditWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		w.logger.Error("Failed to unmarshal event", zap.Error(err))
		// Poison message, commit past it
		return nil
	}

	processed, err := w.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Skipping already-processed event", zap.String("event_id", base.EventID))
		return nil
	}

	entry, err := w.auditEntry(msg.Value, &base)
	if err != nil {
		w.logger.Error("Failed to build audit entry",
			zap.String("event_type", base.EventType), zap.Error(err))
		return nil
	}
	if entry != nil {
		if err := w.store.CreateAuditLog(ctx, entry); err != nil {
			return err
		}
	}

	return w.store.MarkEventProcessed(ctx, base.EventID, base.EventType)
}

func (w *AuditWorker) auditEntry(raw []byte, base *models.BaseEvent) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:     uuid.New().String(),
		OrgID:  base.OrgID,
		UserID: base.ActorID,
		Action: base.EventType,
	}

	switch base.EventType {
	case models.EventTypeSnapshotBuilt:
		var e models.SnapshotBuiltEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "work_order"
		entry.EntityID = e.WOID
		entry.Description = fmt.Sprintf("snapshot built from recipe %s with %d materials", e.RecipeID, e.MaterialCount)

	case models.EventTypeMaterialsReserved:
		var e models.MaterialsReservedEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "work_order"
		entry.EntityID = e.WOID
		entry.Description = fmt.Sprintf("auto-reserve (%s): %d materials, %d full, %d partial",
			e.Policy, e.MaterialsProcessed, e.FullyReserved, e.PartiallyReserved)

	case models.EventTypeReservationReleased:
		var e models.ReservationReleasedEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "reservation"
		entry.EntityID = e.ReservationID
		entry.Description = fmt.Sprintf("released %s from lot %s", e.ReleasedQty, e.LotID)

	case models.EventTypeMaterialConsumed:
		var e models.MaterialConsumedEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "consumption"
		entry.EntityID = e.ConsumptionID
		entry.Description = fmt.Sprintf("consumed %s from lot %s, %s remaining", e.Qty, e.LotID, e.LotQtyAfter)

	case models.EventTypeConsumptionReversed:
		var e models.ConsumptionReversedEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "consumption"
		entry.EntityID = e.ConsumptionID
		entry.Description = fmt.Sprintf("reversed (%s), restored %s to lot %s", e.Reason, e.RestoredQty, e.LotID)

	case models.EventTypeOverConsumptionRequested:
		var e models.OverConsumptionRequestedEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "over_consumption_request"
		entry.EntityID = e.RequestID
		entry.Description = fmt.Sprintf("requested %s over requirement (%s%% variance)", e.OverQty, e.VariancePercent)

	case models.EventTypeOverConsumptionDecided:
		var e models.OverConsumptionDecidedEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		entry.EntityType = "over_consumption_request"
		entry.EntityID = e.RequestID
		entry.Description = fmt.Sprintf("request %s", e.Decision)

	default:
		w.logger.Debug("Ignoring event type", zap.String("event_type", base.EventType))
		return nil, nil
	}

	return entry, nil
}
