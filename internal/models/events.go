package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSnapshotBuilt            = "SNAPSHOT_BUILT"
	EventTypeMaterialsReserved        = "MATERIALS_RESERVED"
	EventTypeReservationReleased      = "RESERVATION_RELEASED"
	EventTypeMaterialConsumed         = "MATERIAL_CONSUMED"
	EventTypeConsumptionReversed      = "CONSUMPTION_REVERSED"
	EventTypeOverConsumptionRequested = "OVER_CONSUMPTION_REQUESTED"
	EventTypeOverConsumptionDecided   = "OVER_CONSUMPTION_DECIDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	OrgID     string    `json:"org_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotBuiltEvent published when a work order's requirement set is (re)built
type SnapshotBuiltEvent struct {
	BaseEvent
	WOID          string `json:"wo_id"`
	RecipeID      string `json:"recipe_id"`
	MaterialCount int    `json:"material_count"`
}

// ShortageData describes one under-allocated requirement
type ShortageData struct {
	RequirementID string          `json:"requirement_id"`
	MaterialName  string          `json:"material_name"`
	RequiredQty   decimal.Decimal `json:"required_qty"`
	ReservedQty   decimal.Decimal `json:"reserved_qty"`
	Shortage      decimal.Decimal `json:"shortage"`
}

// MaterialsReservedEvent published after an auto-reserve pass
type MaterialsReservedEvent struct {
	BaseEvent
	WOID               string         `json:"wo_id"`
	Policy             string         `json:"policy"`
	MaterialsProcessed int            `json:"materials_processed"`
	FullyReserved      int            `json:"fully_reserved"`
	PartiallyReserved  int            `json:"partially_reserved"`
	Shortages          []ShortageData `json:"shortages"`
}

// ReservationReleasedEvent published when an earmark is released
type ReservationReleasedEvent struct {
	BaseEvent
	WOID          string          `json:"wo_id"`
	ReservationID string          `json:"reservation_id"`
	LotID         string          `json:"lot_id"`
	ReleasedQty   decimal.Decimal `json:"released_qty"`
}

// MaterialConsumedEvent published when lot quantity is withdrawn
type MaterialConsumedEvent struct {
	BaseEvent
	WOID          string          `json:"wo_id"`
	ConsumptionID string          `json:"consumption_id"`
	RequirementID string          `json:"requirement_id"`
	LotID         string          `json:"lot_id"`
	Qty           decimal.Decimal `json:"qty"`
	LotQtyAfter   decimal.Decimal `json:"lot_qty_after"`
	LotStatus     string          `json:"lot_status"`
}

// ConsumptionReversedEvent published when a consumption is compensated
type ConsumptionReversedEvent struct {
	BaseEvent
	WOID          string          `json:"wo_id"`
	ConsumptionID string          `json:"consumption_id"`
	LotID         string          `json:"lot_id"`
	RestoredQty   decimal.Decimal `json:"restored_qty"`
	Reason        string          `json:"reason"`
}

// OverConsumptionRequestedEvent published when an approval request is opened
type OverConsumptionRequestedEvent struct {
	BaseEvent
	WOID            string          `json:"wo_id"`
	RequestID       string          `json:"request_id"`
	RequirementID   string          `json:"requirement_id"`
	RequestedQty    decimal.Decimal `json:"requested_qty"`
	OverQty         decimal.Decimal `json:"over_qty"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
}

// OverConsumptionDecidedEvent published on approval or rejection
type OverConsumptionDecidedEvent struct {
	BaseEvent
	WOID      string `json:"wo_id"`
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
}
