package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a material or finished good in the catalog
type Product struct {
	ID        string    `db:"id" json:"id"`
	OrgID     string    `db:"org_id" json:"org_id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	UoM       string    `db:"uom" json:"uom"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Recipe is the versioned component list for one output product.
// Immutable once referenced by an active work order.
type Recipe struct {
	ID        string          `db:"id" json:"id"`
	OrgID     string          `db:"org_id" json:"org_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	OutputQty decimal.Decimal `db:"output_qty" json:"output_qty"`
	OutputUoM string          `db:"output_uom" json:"output_uom"`
	Version   int             `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// RecipeItem is one component line of a recipe
type RecipeItem struct {
	ID           string           `db:"id" json:"id"`
	RecipeID     string           `db:"recipe_id" json:"recipe_id"`
	ProductID    string           `db:"product_id" json:"product_id"`
	MaterialName string           `db:"material_name" json:"material_name"`
	Qty          decimal.Decimal  `db:"qty" json:"qty"`
	UoM          string           `db:"uom" json:"uom"`
	ScrapPercent decimal.Decimal  `db:"scrap_percent" json:"scrap_percent"`
	IsByProduct  bool             `db:"is_by_product" json:"is_by_product"`
	YieldPercent *decimal.Decimal `db:"yield_percent" json:"yield_percent,omitempty"`
	Sequence     int              `db:"sequence" json:"sequence"`
}

// WorkOrder represents one production run
type WorkOrder struct {
	ID          string          `db:"id" json:"id"`
	OrgID       string          `db:"org_id" json:"org_id"`
	WONumber    string          `db:"wo_number" json:"wo_number"`
	RecipeID    string          `db:"recipe_id" json:"recipe_id"`
	WarehouseID string          `db:"warehouse_id" json:"warehouse_id"`
	PlannedQty  decimal.Decimal `db:"planned_qty" json:"planned_qty"`
	UoM         string          `db:"uom" json:"uom"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// MaterialRequirement is one recipe item scaled to a work order.
// Mutable only while the owning work order is draft or planned.
type MaterialRequirement struct {
	ID           string           `db:"id" json:"id"`
	OrgID        string           `db:"org_id" json:"org_id"`
	WOID         string           `db:"wo_id" json:"wo_id"`
	ProductID    string           `db:"product_id" json:"product_id"`
	MaterialName string           `db:"material_name" json:"material_name"`
	RequiredQty  decimal.Decimal  `db:"required_qty" json:"required_qty"`
	ReservedQty  decimal.Decimal  `db:"reserved_qty" json:"reserved_qty"`
	ConsumedQty  decimal.Decimal  `db:"consumed_qty" json:"consumed_qty"`
	UoM          string           `db:"uom" json:"uom"`
	IsByProduct  bool             `db:"is_by_product" json:"is_by_product"`
	YieldPercent *decimal.Decimal `db:"yield_percent" json:"yield_percent,omitempty"`
	Sequence     int              `db:"sequence" json:"sequence"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// Lot is a quantity-bearing unit of physical inventory at one location
type Lot struct {
	ID          string          `db:"id" json:"id"`
	OrgID       string          `db:"org_id" json:"org_id"`
	LotNumber   string          `db:"lot_number" json:"lot_number"`
	ProductID   string          `db:"product_id" json:"product_id"`
	WarehouseID string          `db:"warehouse_id" json:"warehouse_id"`
	LocationID  string          `db:"location_id" json:"location_id"`
	OriginalQty decimal.Decimal `db:"original_qty" json:"original_qty"`
	CurrentQty  decimal.Decimal `db:"current_qty" json:"current_qty"`
	UoM         string          `db:"uom" json:"uom"`
	Status      string          `db:"status" json:"status"`
	ExpiryDate  *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	// AvailableQty is current quantity minus active earmarks.
	// Derived, not a column; populated by the store for allocation.
	AvailableQty decimal.Decimal `db:"available_qty" json:"available_qty"`
}

// Reservation earmarks lot quantity against a requirement prior to consumption
type Reservation struct {
	ID             string          `db:"id" json:"id"`
	OrgID          string          `db:"org_id" json:"org_id"`
	WOID           string          `db:"wo_id" json:"wo_id"`
	RequirementID  string          `db:"requirement_id" json:"requirement_id"`
	LotID          string          `db:"lot_id" json:"lot_id"`
	Qty            decimal.Decimal `db:"qty" json:"qty"`
	UoM            string          `db:"uom" json:"uom"`
	SequenceNumber int             `db:"sequence_number" json:"sequence_number"`
	Status         string          `db:"status" json:"status"`
	ReservedBy     string          `db:"reserved_by" json:"reserved_by"`
	ReservedAt     time.Time       `db:"reserved_at" json:"reserved_at"`
	ReleasedAt     *time.Time      `db:"released_at" json:"released_at,omitempty"`
}

// Consumption records quantity actually withdrawn from a lot.
// Qty and lot reference are immutable once created; only reversal
// metadata may change, exactly once.
type Consumption struct {
	ID             string          `db:"id" json:"id"`
	OrgID          string          `db:"org_id" json:"org_id"`
	WOID           string          `db:"wo_id" json:"wo_id"`
	RequirementID  string          `db:"requirement_id" json:"requirement_id"`
	ReservationID  string          `db:"reservation_id" json:"reservation_id"`
	LotID          string          `db:"lot_id" json:"lot_id"`
	Qty            decimal.Decimal `db:"qty" json:"qty"`
	UoM            string          `db:"uom" json:"uom"`
	Status         string          `db:"status" json:"status"`
	ConsumedBy     string          `db:"consumed_by" json:"consumed_by"`
	ConsumedAt     time.Time       `db:"consumed_at" json:"consumed_at"`
	ReversedBy     *string         `db:"reversed_by" json:"reversed_by,omitempty"`
	ReversedAt     *time.Time      `db:"reversed_at" json:"reversed_at,omitempty"`
	ReversalReason *string         `db:"reversal_reason" json:"reversal_reason,omitempty"`
	ReversalNotes  *string         `db:"reversal_notes" json:"reversal_notes,omitempty"`
}

// GenealogyEntry links a consumed lot to the work order that consumed it.
// Compliance record: entries are only ever marked reversed, never removed.
type GenealogyEntry struct {
	ID            string          `db:"id" json:"id"`
	OrgID         string          `db:"org_id" json:"org_id"`
	ParentLotID   string          `db:"parent_lot_id" json:"parent_lot_id"`
	WOID          string          `db:"wo_id" json:"wo_id"`
	ReservationID string          `db:"reservation_id" json:"reservation_id"`
	Qty           decimal.Decimal `db:"qty" json:"qty"`
	UoM           string          `db:"uom" json:"uom"`
	Status        string          `db:"status" json:"status"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// LotMovement is the ledger entry emitted for every lot quantity change
type LotMovement struct {
	ID           string          `db:"id" json:"id"`
	OrgID        string          `db:"org_id" json:"org_id"`
	LotID        string          `db:"lot_id" json:"lot_id"`
	WOID         string          `db:"wo_id" json:"wo_id"`
	MovementType string          `db:"movement_type" json:"movement_type"`
	QtyChange    decimal.Decimal `db:"qty_change" json:"qty_change"`
	QtyBefore    decimal.Decimal `db:"qty_before" json:"qty_before"`
	QtyAfter     decimal.Decimal `db:"qty_after" json:"qty_after"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// OverConsumptionRequest gates consumption exceeding the scaled requirement
type OverConsumptionRequest struct {
	ID                 string          `db:"id" json:"id"`
	OrgID              string          `db:"org_id" json:"org_id"`
	WOID               string          `db:"wo_id" json:"wo_id"`
	RequirementID      string          `db:"requirement_id" json:"requirement_id"`
	LotID              string          `db:"lot_id" json:"lot_id"`
	RequestedQty       decimal.Decimal `db:"requested_qty" json:"requested_qty"`
	TotalAfterQty      decimal.Decimal `db:"total_after_qty" json:"total_after_qty"`
	OverConsumptionQty decimal.Decimal `db:"over_consumption_qty" json:"over_consumption_qty"`
	VariancePercent    decimal.Decimal `db:"variance_percent" json:"variance_percent"`
	Status             string          `db:"status" json:"status"`
	RequestedBy        string          `db:"requested_by" json:"requested_by"`
	RequestedAt        time.Time       `db:"requested_at" json:"requested_at"`
	DecidedBy          *string         `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt          *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	DecisionReason     *string         `db:"decision_reason" json:"decision_reason,omitempty"`
	ConsumptionID      *string         `db:"consumption_id" json:"consumption_id,omitempty"`
}

// WarehouseSettings holds per-org picking policy configuration
type WarehouseSettings struct {
	OrgID      string `db:"org_id" json:"org_id"`
	EnableFIFO bool   `db:"enable_fifo" json:"enable_fifo"`
	EnableFEFO bool   `db:"enable_fefo" json:"enable_fefo"`
}

// ProductionSettings holds per-org consumption policy configuration
type ProductionSettings struct {
	OrgID                string `db:"org_id" json:"org_id"`
	AllowOverConsumption bool   `db:"allow_over_consumption" json:"allow_over_consumption"`
}

// AuditLog is the append-only trail written by the audit worker
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	OrgID       string    `db:"org_id" json:"org_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// Work order statuses
const (
	WOStatusDraft      = "draft"
	WOStatusPlanned    = "planned"
	WOStatusReleased   = "released"
	WOStatusInProgress = "in_progress"
	WOStatusCompleted  = "completed"
	WOStatusCancelled  = "cancelled"
)

// Lot statuses
const (
	LotStatusAvailable = "available"
	LotStatusReserved  = "reserved"
	LotStatusConsumed  = "consumed"
	LotStatusExpired   = "expired"
)

// Reservation statuses
const (
	ReservationStatusReserved  = "reserved"
	ReservationStatusConsumed  = "consumed"
	ReservationStatusCancelled = "cancelled"
)

// Consumption statuses
const (
	ConsumptionStatusActive   = "active"
	ConsumptionStatusReversed = "reversed"
)

// Genealogy statuses
const (
	GenealogyStatusActive   = "active"
	GenealogyStatusReversed = "reversed"
)

// Approval request statuses
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// Movement types
const (
	MovementTypeConsumption = "consumption"
	MovementTypeReversal    = "consumption_reversal"
)

// Picking policies
const (
	PolicyFIFO = "fifo"
	PolicyFEFO = "fefo"
)

// Reversal reasons accepted by the consumption ledger
const (
	ReversalReasonWrongLot     = "scanned_wrong_lot"
	ReversalReasonWrongQty     = "wrong_quantity"
	ReversalReasonQualityIssue = "quality_issue"
	ReversalReasonOther        = "other"
)

// NormalizeStatus lowercases external status input at the parse boundary
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidReversalReason reports whether r is an accepted reversal reason
func ValidReversalReason(r string) bool {
	switch r {
	case ReversalReasonWrongLot, ReversalReasonWrongQty, ReversalReasonQualityIssue, ReversalReasonOther:
		return true
	}
	return false
}
