package service

import (
	"sort"

	"material-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round6 rounds to 6 decimal places, half away from zero
func Round6(d decimal.Decimal) decimal.Decimal {
	return d.Round(6)
}

// Round2 rounds to 2 decimal places, half away from zero
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ScaleQuantity scales one recipe item quantity to a work order's planned
// output, inflated by the item's scrap allowance. Rounding happens exactly
// once, on the final result.
//
//	scaled = round6((planned / output) * itemQty * (1 + scrap/100))
func ScaleQuantity(plannedQty, outputQty, itemQty, scrapPercent decimal.Decimal) decimal.Decimal {
	factor := plannedQty.Div(outputQty)
	scrap := decimal.NewFromInt(1).Add(scrapPercent.Div(hundred))
	return Round6(factor.Mul(itemQty).Mul(scrap))
}

// DeriveYieldPercent computes a by-product's expected yield as a share of the
// recipe output, when the recipe itself doesn't state one
func DeriveYieldPercent(itemQty, outputQty decimal.Decimal) decimal.Decimal {
	return Round2(itemQty.Div(outputQty).Mul(hundred))
}

// VariancePercent expresses an over-consumption excess as a share of the
// scaled requirement
func VariancePercent(overQty, requiredQty decimal.Decimal) decimal.Decimal {
	if requiredQty.IsZero() {
		return decimal.Zero
	}
	return Round2(overQty.Div(requiredQty).Mul(hundred))
}

// CanModifySnapshot reports whether the requirement set of a work order in
// the given status may still be rebuilt. Status comparison is
// case-insensitive; upstream systems disagree on casing.
func CanModifySnapshot(status string) bool {
	switch models.NormalizeStatus(status) {
	case models.WOStatusDraft, models.WOStatusPlanned:
		return true
	}
	return false
}

// CanReserve reports whether a work order in the given status accepts
// reservations
func CanReserve(status string) bool {
	switch models.NormalizeStatus(status) {
	case models.WOStatusReleased, models.WOStatusInProgress:
		return true
	}
	return false
}

// PickingPolicy resolves the effective lot ordering policy for an org.
// FEFO takes precedence when both are enabled.
func PickingPolicy(ws *models.WarehouseSettings) string {
	if ws.EnableFEFO {
		return models.PolicyFEFO
	}
	return models.PolicyFIFO
}

// SortLotsFIFO orders lots oldest receipt first
func SortLotsFIFO(lots []models.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].CreatedAt.Before(lots[j].CreatedAt)
	})
}

// SortLotsFEFO orders lots by soonest expiry. Lots without an expiry date
// sort last, falling back to receipt order among themselves, so a
// fully-undated pool degrades to FIFO.
func SortLotsFEFO(lots []models.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		ei, ej := lots[i].ExpiryDate, lots[j].ExpiryDate
		switch {
		case ei == nil && ej == nil:
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		case ei == nil:
			return false
		case ej == nil:
			return true
		case !ei.Equal(*ej):
			return ei.Before(*ej)
		}
		return lots[i].CreatedAt.Before(lots[j].CreatedAt)
	})
}

// LotAllocation is one planned earmark produced by the allocator
type LotAllocation struct {
	LotID     string
	LotNumber string
	Qty       decimal.Decimal
}

// AllocateFromLots walks candidate lots in policy order, earmarking
// min(remaining, available) from each until the requirement is met or the
// pool runs dry. Returns the planned allocations and the uncovered shortage.
// Allocated total plus shortage always equals the requested quantity.
func AllocateFromLots(lots []models.Lot, required decimal.Decimal, policy string) ([]LotAllocation, decimal.Decimal) {
	if policy == models.PolicyFEFO {
		SortLotsFEFO(lots)
	} else {
		SortLotsFIFO(lots)
	}

	remaining := required
	var allocations []LotAllocation
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.AvailableQty.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lot.AvailableQty)
		allocations = append(allocations, LotAllocation{
			LotID:     lot.ID,
			LotNumber: lot.LotNumber,
			Qty:       take,
		})
		remaining = remaining.Sub(take)
	}

	return allocations, remaining
}

// CoverageStatus summarizes how well a requirement is covered
type CoverageStatus string

const (
	CoverageOver    CoverageStatus = "over"
	CoverageFull    CoverageStatus = "full"
	CoveragePartial CoverageStatus = "partial"
	CoverageNone    CoverageStatus = "none"
)

// CalculateCoverage classifies a requirement against its reserved plus
// consumed total
func CalculateCoverage(requiredQty, reservedQty, consumedQty decimal.Decimal) CoverageStatus {
	covered := reservedQty.Add(consumedQty)
	switch {
	case covered.GreaterThan(requiredQty):
		return CoverageOver
	case covered.Equal(requiredQty):
		return CoverageFull
	case covered.IsPositive():
		return CoveragePartial
	}
	return CoverageNone
}
