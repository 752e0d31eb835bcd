package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"material-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateReservationTx earmarks lot quantity against a requirement inside a
// single transaction. The lot row is locked so two concurrent allocations
// cannot earmark the same remainder; the sum of active earmarks never
// exceeds the lot quantity.
func (s *Store) CreateReservationTx(ctx context.Context, res *models.Reservation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lot models.Lot
	err = tx.GetContext(ctx, &lot,
		"SELECT * FROM lots WHERE id = $1 AND org_id = $2 FOR UPDATE",
		res.LotID, res.OrgID)
	if err == sql.ErrNoRows {
		return models.NewEngineError(models.CodeLotNotFound, "lot not found: %s", res.LotID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock lot: %w", err)
	}

	var earmarked decimal.Decimal
	err = tx.GetContext(ctx, &earmarked,
		"SELECT COALESCE(SUM(qty), 0) FROM lot_reservations WHERE lot_id = $1 AND status = 'reserved'",
		res.LotID)
	if err != nil {
		return fmt.Errorf("failed to sum earmarks: %w", err)
	}

	available := lot.CurrentQty.Sub(earmarked)
	if res.Qty.GreaterThan(available) {
		return models.NewEngineError(models.CodeInsufficientQty,
			"lot %s has %s available, requested %s", lot.LotNumber, available, res.Qty)
	}

	var maxSeq sql.NullInt64
	err = tx.GetContext(ctx, &maxSeq,
		"SELECT MAX(sequence_number) FROM lot_reservations WHERE requirement_id = $1",
		res.RequirementID)
	if err != nil {
		return fmt.Errorf("failed to get sequence: %w", err)
	}
	res.SequenceNumber = int(maxSeq.Int64) + 1
	res.Status = models.ReservationStatusReserved
	res.ReservedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lot_reservations
			(id, org_id, wo_id, requirement_id, lot_id, qty, uom,
			 sequence_number, status, reserved_by, reserved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, res.OrgID, res.WOID, res.RequirementID, res.LotID, res.Qty, res.UoM,
		res.SequenceNumber, res.Status, res.ReservedBy, res.ReservedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE wo_materials SET reserved_qty = reserved_qty + $1, updated_at = NOW() WHERE id = $2",
		res.Qty, res.RequirementID)
	if err != nil {
		return fmt.Errorf("failed to update requirement: %w", err)
	}

	return tx.Commit()
}

// ReleaseReservationTx cancels an earmark and returns the released quantity
// to the lot's available remainder. Requirement reserved totals floor at zero.
func (s *Store) ReleaseReservationTx(ctx context.Context, orgID, woID, reservationID string) (*models.Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var res models.Reservation
	err = tx.GetContext(ctx, &res,
		"SELECT * FROM lot_reservations WHERE id = $1 AND wo_id = $2 AND org_id = $3 FOR UPDATE",
		reservationID, woID, orgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeReservationNotFound, "reservation not found: %s", reservationID)
	}
	if err != nil {
		return nil, err
	}

	if res.Status != models.ReservationStatusReserved {
		return nil, models.NewEngineError(models.CodeAlreadyReleased,
			"reservation is %s, only reserved reservations can be released", res.Status)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE lot_reservations SET status = $1, released_at = $2 WHERE id = $3",
		models.ReservationStatusCancelled, now, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to release reservation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wo_materials
		SET reserved_qty = GREATEST(reserved_qty - $1, 0), updated_at = NOW()
		WHERE id = $2`,
		res.Qty, res.RequirementID)
	if err != nil {
		return nil, fmt.Errorf("failed to update requirement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	res.Status = models.ReservationStatusCancelled
	res.ReleasedAt = &now
	return &res, nil
}

// ReleaseAllReservationsTx cancels every active earmark of a work order.
// Called when the work order is cancelled.
func (s *Store) ReleaseAllReservationsTx(ctx context.Context, orgID, woID string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE lot_reservations
		SET status = $1, released_at = NOW()
		WHERE wo_id = $2 AND org_id = $3 AND status = 'reserved'`,
		models.ReservationStatusCancelled, woID, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to release reservations: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE wo_materials SET reserved_qty = 0, updated_at = NOW() WHERE wo_id = $1 AND org_id = $2",
		woID, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset requirement totals: %w", err)
	}

	count, _ := result.RowsAffected()
	return int(count), tx.Commit()
}

// GetReservationsByRequirement lists active earmarks for one requirement
func (s *Store) GetReservationsByRequirement(ctx context.Context, orgID, requirementID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.SelectContext(ctx, &reservations, `
		SELECT * FROM lot_reservations
		WHERE requirement_id = $1 AND org_id = $2 AND status = 'reserved'
		ORDER BY sequence_number`,
		requirementID, orgID)
	return reservations, err
}

// ConsumeParams carries one consumption request into the ledger transaction
type ConsumeParams struct {
	OrgID                string
	ActorID              string
	WOID                 string
	RequirementID        string
	LotID                string
	Qty                  decimal.Decimal
	AllowOverConsumption bool
}

// ConsumeResult reports the committed consumption and the lot's new state
type ConsumeResult struct {
	Consumption *models.Consumption
	LotQtyAfter decimal.Decimal
	LotStatus   string
	ApprovalID  string
}

// ConsumeTx converts a reservation into a consumption as one atomic unit:
// lot decrement, requirement increment, reservation flip, genealogy append
// and movement record all commit or roll back together. The lot and
// requirement rows are locked for the duration.
func (s *Store) ConsumeTx(ctx context.Context, p ConsumeParams) (*ConsumeResult, error) {
	if !p.Qty.IsPositive() {
		return nil, models.NewEngineError(models.CodeValidation, "consumption quantity must be positive")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var req models.MaterialRequirement
	err = tx.GetContext(ctx, &req,
		"SELECT * FROM wo_materials WHERE id = $1 AND wo_id = $2 AND org_id = $3 FOR UPDATE",
		p.RequirementID, p.WOID, p.OrgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeRequirementNotFound, "requirement not found: %s", p.RequirementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock requirement: %w", err)
	}

	var res models.Reservation
	err = tx.GetContext(ctx, &res, `
		SELECT * FROM lot_reservations
		WHERE requirement_id = $1 AND lot_id = $2 AND status = 'reserved'
		ORDER BY sequence_number LIMIT 1 FOR UPDATE`,
		p.RequirementID, p.LotID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeReservationNotFound,
			"no active reservation for lot %s against requirement %s", p.LotID, p.RequirementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservation: %w", err)
	}

	var lot models.Lot
	err = tx.GetContext(ctx, &lot,
		"SELECT * FROM lots WHERE id = $1 AND org_id = $2 FOR UPDATE", p.LotID, p.OrgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeLotNotFound, "lot not found: %s", p.LotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock lot: %w", err)
	}

	if lot.Status == models.LotStatusConsumed || lot.Status == models.LotStatusExpired {
		return nil, models.NewEngineError(models.CodeLotNotAvailable,
			"lot %s is %s", lot.LotNumber, lot.Status)
	}
	if p.Qty.GreaterThan(lot.CurrentQty) {
		return nil, models.NewEngineError(models.CodeInsufficientQty,
			"lot %s has %s, requested %s", lot.LotNumber, lot.CurrentQty, p.Qty)
	}

	// Over-consumption gate: quantity beyond the scaled requirement needs an
	// approved, unspent request unless the org policy allows it outright.
	overQty := req.ConsumedQty.Add(p.Qty).Sub(req.RequiredQty)
	var approvalID string
	if overQty.IsPositive() && !p.AllowOverConsumption {
		var approval models.OverConsumptionRequest
		err = tx.GetContext(ctx, &approval, `
			SELECT * FROM over_consumption_approvals
			WHERE requirement_id = $1 AND org_id = $2 AND status = 'approved'
			  AND consumption_id IS NULL AND over_consumption_qty >= $3
			ORDER BY requested_at LIMIT 1 FOR UPDATE`,
			p.RequirementID, p.OrgID, overQty)
		if err == sql.ErrNoRows {
			return nil, models.NewEngineError(models.CodeApprovalRequired,
				"consumption exceeds requirement by %s and needs approval", overQty)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check approval: %w", err)
		}
		approvalID = approval.ID
	} else if p.Qty.GreaterThan(res.Qty) && !overQty.IsPositive() && !p.AllowOverConsumption {
		return nil, models.NewEngineError(models.CodeValidation,
			"quantity %s exceeds reserved quantity %s", p.Qty, res.Qty)
	}

	qtyBefore := lot.CurrentQty
	qtyAfter := qtyBefore.Sub(p.Qty)
	lotStatus := lot.Status
	if qtyAfter.IsZero() {
		lotStatus = models.LotStatusConsumed
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE lots SET current_qty = $1, status = $2, updated_at = NOW() WHERE id = $3",
		qtyAfter, lotStatus, p.LotID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement lot: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE wo_materials SET consumed_qty = consumed_qty + $1, updated_at = NOW() WHERE id = $2",
		p.Qty, p.RequirementID)
	if err != nil {
		return nil, fmt.Errorf("failed to update requirement: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE lot_reservations SET status = $1 WHERE id = $2",
		models.ReservationStatusConsumed, res.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to flip reservation: %w", err)
	}

	now := time.Now().UTC()
	consumption := &models.Consumption{
		ID:            uuid.New().String(),
		OrgID:         p.OrgID,
		WOID:          p.WOID,
		RequirementID: p.RequirementID,
		ReservationID: res.ID,
		LotID:         p.LotID,
		Qty:           p.Qty,
		UoM:           req.UoM,
		Status:        models.ConsumptionStatusActive,
		ConsumedBy:    p.ActorID,
		ConsumedAt:    now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO consumptions
			(id, org_id, wo_id, requirement_id, reservation_id, lot_id,
			 qty, uom, status, consumed_by, consumed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		consumption.ID, consumption.OrgID, consumption.WOID, consumption.RequirementID,
		consumption.ReservationID, consumption.LotID, consumption.Qty, consumption.UoM,
		consumption.Status, consumption.ConsumedBy, consumption.ConsumedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert consumption: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lot_genealogy
			(id, org_id, parent_lot_id, wo_id, reservation_id, qty, uom, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), p.OrgID, p.LotID, p.WOID, res.ID, p.Qty, req.UoM,
		models.GenealogyStatusActive, p.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to append genealogy: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lot_movements
			(id, org_id, lot_id, wo_id, movement_type, qty_change, qty_before, qty_after, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), p.OrgID, p.LotID, p.WOID, models.MovementTypeConsumption,
		p.Qty.Neg(), qtyBefore, qtyAfter, p.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}

	if approvalID != "" {
		_, err = tx.ExecContext(ctx,
			"UPDATE over_consumption_approvals SET consumption_id = $1 WHERE id = $2",
			consumption.ID, approvalID)
		if err != nil {
			return nil, fmt.Errorf("failed to link approval: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &ConsumeResult{
		Consumption: consumption,
		LotQtyAfter: qtyAfter,
		LotStatus:   lotStatus,
		ApprovalID:  approvalID,
	}, nil
}

// ReverseParams carries one reversal request into the ledger transaction
type ReverseParams struct {
	OrgID         string
	ActorID       string
	WOID          string
	ConsumptionID string
	Reason        string
	Notes         string
}

// ReverseResult reports the reversed consumption and the restored lot state
type ReverseResult struct {
	Consumption *models.Consumption
	LotQtyAfter decimal.Decimal
	LotStatus   string
	LotNumber   string
}

// ReverseTx compensates a consumption exactly once: the lot quantity is
// restored, the reservation flips back to reserved, the requirement's
// consumed total floors at zero and the genealogy entry is marked reversed
// in place. Nothing is ever deleted.
func (s *Store) ReverseTx(ctx context.Context, p ReverseParams) (*ReverseResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var c models.Consumption
	err = tx.GetContext(ctx, &c,
		"SELECT * FROM consumptions WHERE id = $1 AND wo_id = $2 AND org_id = $3 FOR UPDATE",
		p.ConsumptionID, p.WOID, p.OrgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeConsumptionNotFound, "consumption not found: %s", p.ConsumptionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock consumption: %w", err)
	}

	if c.Status != models.ConsumptionStatusActive {
		return nil, models.NewEngineError(models.CodeAlreadyReversed,
			"consumption %s has already been reversed", c.ID)
	}

	var lot models.Lot
	err = tx.GetContext(ctx, &lot,
		"SELECT * FROM lots WHERE id = $1 AND org_id = $2 FOR UPDATE", c.LotID, p.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lot: %w", err)
	}

	qtyBefore := lot.CurrentQty
	qtyAfter := qtyBefore.Add(c.Qty)
	lotStatus := lot.Status
	if lotStatus == models.LotStatusConsumed {
		lotStatus = models.LotStatusAvailable
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE lots SET current_qty = $1, status = $2, updated_at = NOW() WHERE id = $3",
		qtyAfter, lotStatus, c.LotID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore lot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wo_materials
		SET consumed_qty = GREATEST(consumed_qty - $1, 0), updated_at = NOW()
		WHERE id = $2`,
		c.Qty, c.RequirementID)
	if err != nil {
		return nil, fmt.Errorf("failed to update requirement: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE lot_reservations SET status = $1 WHERE id = $2",
		models.ReservationStatusReserved, c.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore reservation: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE consumptions
		SET status = $1, reversed_by = $2, reversed_at = $3, reversal_reason = $4, reversal_notes = $5
		WHERE id = $6`,
		models.ConsumptionStatusReversed, p.ActorID, now, p.Reason, nullableString(p.Notes), c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark consumption reversed: %w", err)
	}

	// Compliance trail: status flip in place, never a delete.
	_, err = tx.ExecContext(ctx,
		"UPDATE lot_genealogy SET status = $1 WHERE reservation_id = $2 AND status = $3",
		models.GenealogyStatusReversed, c.ReservationID, models.GenealogyStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to mark genealogy reversed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lot_movements
			(id, org_id, lot_id, wo_id, movement_type, qty_change, qty_before, qty_after, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), p.OrgID, c.LotID, p.WOID, models.MovementTypeReversal,
		c.Qty, qtyBefore, qtyAfter, p.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	c.Status = models.ConsumptionStatusReversed
	c.ReversedBy = &p.ActorID
	c.ReversedAt = &now
	c.ReversalReason = &p.Reason

	return &ReverseResult{
		Consumption: &c,
		LotQtyAfter: qtyAfter,
		LotStatus:   lotStatus,
		LotNumber:   lot.LotNumber,
	}, nil
}

// GetPendingApproval returns the pending request for a requirement, if any
func (s *Store) GetPendingApproval(ctx context.Context, orgID, requirementID string) (*models.OverConsumptionRequest, error) {
	var req models.OverConsumptionRequest
	err := s.db.GetContext(ctx, &req, `
		SELECT * FROM over_consumption_approvals
		WHERE requirement_id = $1 AND org_id = $2 AND status = 'pending'
		LIMIT 1`,
		requirementID, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetApprovalByID retrieves an approval request scoped to the caller's org
func (s *Store) GetApprovalByID(ctx context.Context, orgID, requestID string) (*models.OverConsumptionRequest, error) {
	var req models.OverConsumptionRequest
	err := s.db.GetContext(ctx, &req,
		"SELECT * FROM over_consumption_approvals WHERE id = $1 AND org_id = $2",
		requestID, orgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeRequestNotFound, "approval request not found: %s", requestID)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetPendingApprovalsByWOID lists pending requests for a work order
func (s *Store) GetPendingApprovalsByWOID(ctx context.Context, orgID, woID string) ([]models.OverConsumptionRequest, error) {
	var reqs []models.OverConsumptionRequest
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT * FROM over_consumption_approvals
		WHERE wo_id = $1 AND org_id = $2 AND status = 'pending'
		ORDER BY requested_at`,
		woID, orgID)
	return reqs, err
}

// CreateApproval inserts a pending over-consumption request
func (s *Store) CreateApproval(ctx context.Context, req *models.OverConsumptionRequest) error {
	req.Status = models.ApprovalStatusPending
	req.RequestedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO over_consumption_approvals
			(id, org_id, wo_id, requirement_id, lot_id, requested_qty,
			 total_after_qty, over_consumption_qty, variance_percent,
			 status, requested_by, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.OrgID, req.WOID, req.RequirementID, req.LotID, req.RequestedQty,
		req.TotalAfterQty, req.OverConsumptionQty, req.VariancePercent,
		req.Status, req.RequestedBy, req.RequestedAt)
	return err
}

// DecideApproval transitions a pending request to approved or rejected.
// The pending guard in the WHERE clause makes the transition terminal.
func (s *Store) DecideApproval(ctx context.Context, orgID, requestID, decision, actorID, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE over_consumption_approvals
		SET status = $1, decided_by = $2, decided_at = NOW(), decision_reason = $3
		WHERE id = $4 AND org_id = $5 AND status = 'pending'`,
		decision, actorID, nullableString(reason), requestID, orgID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.NewEngineError(models.CodeRequestNotPending,
			"request %s is not pending", requestID)
	}
	return nil
}

// GetConsumptionByID retrieves a consumption scoped to the caller's org
func (s *Store) GetConsumptionByID(ctx context.Context, orgID, consumptionID string) (*models.Consumption, error) {
	var c models.Consumption
	err := s.db.GetContext(ctx, &c,
		"SELECT * FROM consumptions WHERE id = $1 AND org_id = $2", consumptionID, orgID)
	if err == sql.ErrNoRows {
		return nil, models.NewEngineError(models.CodeConsumptionNotFound, "consumption not found: %s", consumptionID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetGenealogyByWOID lists the compliance trail for a work order
func (s *Store) GetGenealogyByWOID(ctx context.Context, orgID, woID string) ([]models.GenealogyEntry, error) {
	var entries []models.GenealogyEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM lot_genealogy WHERE wo_id = $1 AND org_id = $2 ORDER BY created_at",
		woID, orgID)
	return entries, err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
