package service

import (
	"testing"
	"time"

	"material-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestScaleQuantity(t *testing.T) {
	// 250 planned / 100 output * 50 qty * 1.05 scrap = 131.25
	got := ScaleQuantity(d("250"), d("100"), d("50"), d("5"))
	assert.True(t, d("131.25").Equal(got), "got %s", got)
}

func TestScaleQuantityRoundsOnce(t *testing.T) {
	// 1/3 scaling factor keeps full precision until the final round
	got := ScaleQuantity(d("1"), d("3"), d("1"), d("0"))
	assert.True(t, d("0.333333").Equal(got), "got %s", got)
}

func TestScaleQuantityZeroScrap(t *testing.T) {
	got := ScaleQuantity(d("200"), d("100"), d("25"), d("0"))
	assert.True(t, d("50").Equal(got), "got %s", got)
}

func TestDeriveYieldPercent(t *testing.T) {
	got := DeriveYieldPercent(d("12.5"), d("100"))
	assert.True(t, d("12.5").Equal(got), "got %s", got)
}

func TestVariancePercent(t *testing.T) {
	// 25 over a 100 requirement is 25%
	got := VariancePercent(d("25"), d("100"))
	assert.True(t, d("25").Equal(got), "got %s", got)

	assert.True(t, VariancePercent(d("10"), decimal.Zero).IsZero())
}

func TestCanModifySnapshot(t *testing.T) {
	assert.True(t, CanModifySnapshot("draft"))
	assert.True(t, CanModifySnapshot("planned"))
	assert.True(t, CanModifySnapshot("DRAFT"))
	assert.True(t, CanModifySnapshot(" Planned "))
	assert.False(t, CanModifySnapshot("released"))
	assert.False(t, CanModifySnapshot("in_progress"))
	assert.False(t, CanModifySnapshot("completed"))
	assert.False(t, CanModifySnapshot("cancelled"))
}

func TestCanReserve(t *testing.T) {
	assert.True(t, CanReserve("released"))
	assert.True(t, CanReserve("in_progress"))
	assert.True(t, CanReserve("RELEASED"))
	assert.False(t, CanReserve("draft"))
	assert.False(t, CanReserve("planned"))
	assert.False(t, CanReserve("completed"))
}

func TestPickingPolicy(t *testing.T) {
	assert.Equal(t, models.PolicyFIFO, PickingPolicy(&models.WarehouseSettings{EnableFIFO: true}))
	assert.Equal(t, models.PolicyFEFO, PickingPolicy(&models.WarehouseSettings{EnableFEFO: true}))
	// FEFO wins when both are on
	assert.Equal(t, models.PolicyFEFO, PickingPolicy(&models.WarehouseSettings{EnableFIFO: true, EnableFEFO: true}))
	assert.Equal(t, models.PolicyFIFO, PickingPolicy(&models.WarehouseSettings{}))
}

func lot(id string, created time.Time, expiry *time.Time, available string) models.Lot {
	return models.Lot{
		ID:           id,
		LotNumber:    id,
		CreatedAt:    created,
		ExpiryDate:   expiry,
		AvailableQty: d(available),
	}
}

func TestSortLotsFIFO(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		lot("newer", base.AddDate(0, 0, 2), nil, "10"),
		lot("oldest", base, nil, "10"),
		lot("middle", base.AddDate(0, 0, 1), nil, "10"),
	}

	SortLotsFIFO(lots)

	assert.Equal(t, "oldest", lots[0].ID)
	assert.Equal(t, "middle", lots[1].ID)
	assert.Equal(t, "newer", lots[2].ID)
}

func TestSortLotsFEFO(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	soon := base.AddDate(0, 1, 0)
	later := base.AddDate(0, 3, 0)

	lots := []models.Lot{
		lot("no-expiry", base, nil, "10"),
		lot("later", base.AddDate(0, 0, 1), &later, "10"),
		lot("soon", base.AddDate(0, 0, 2), &soon, "10"),
	}

	SortLotsFEFO(lots)

	assert.Equal(t, "soon", lots[0].ID)
	assert.Equal(t, "later", lots[1].ID)
	assert.Equal(t, "no-expiry", lots[2].ID)
}

func TestSortLotsFEFOSameExpiryFallsBackToReceipt(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := base.AddDate(0, 2, 0)

	lots := []models.Lot{
		lot("received-later", base.AddDate(0, 0, 5), &expiry, "10"),
		lot("received-first", base, &expiry, "10"),
	}

	SortLotsFEFO(lots)

	assert.Equal(t, "received-first", lots[0].ID)
}

func TestSortLotsFEFOAllUndatedDegradesToFIFO(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		lot("b", base.AddDate(0, 0, 1), nil, "10"),
		lot("a", base, nil, "10"),
		lot("c", base.AddDate(0, 0, 2), nil, "10"),
	}

	SortLotsFEFO(lots)

	assert.Equal(t, "a", lots[0].ID)
	assert.Equal(t, "b", lots[1].ID)
	assert.Equal(t, "c", lots[2].ID)
}

func TestAllocateFromLotsFullCoverage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		lot("first", base, nil, "150"),
		lot("second", base.AddDate(0, 0, 1), nil, "100"),
	}

	allocations, shortage := AllocateFromLots(lots, d("200"), models.PolicyFIFO)

	assert.True(t, shortage.IsZero())
	assert.Len(t, allocations, 2)
	assert.Equal(t, "first", allocations[0].LotID)
	assert.True(t, d("150").Equal(allocations[0].Qty))
	assert.Equal(t, "second", allocations[1].LotID)
	assert.True(t, d("50").Equal(allocations[1].Qty))
}

func TestAllocateFromLotsShortage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		lot("only", base, nil, "150"),
	}

	allocations, shortage := AllocateFromLots(lots, d("200"), models.PolicyFIFO)

	assert.Len(t, allocations, 1)
	assert.True(t, d("150").Equal(allocations[0].Qty))
	assert.True(t, d("50").Equal(shortage))
}

func TestAllocateFromLotsEmptyPool(t *testing.T) {
	allocations, shortage := AllocateFromLots(nil, d("75"), models.PolicyFIFO)

	assert.Empty(t, allocations)
	assert.True(t, d("75").Equal(shortage))
}

func TestAllocateFromLotsSkipsDrainedLots(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		lot("drained", base, nil, "0"),
		lot("live", base.AddDate(0, 0, 1), nil, "30"),
	}

	allocations, shortage := AllocateFromLots(lots, d("20"), models.PolicyFIFO)

	assert.Len(t, allocations, 1)
	assert.Equal(t, "live", allocations[0].LotID)
	assert.True(t, shortage.IsZero())
}

func TestAllocateFromLotsConservation(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := []models.Lot{
		lot("a", base, nil, "33.333"),
		lot("b", base.AddDate(0, 0, 1), nil, "66.667"),
		lot("c", base.AddDate(0, 0, 2), nil, "10"),
	}
	required := d("120")

	allocations, shortage := AllocateFromLots(lots, required, models.PolicyFIFO)

	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Qty)
	}
	// Allocated plus shortage always equals the requested quantity
	assert.True(t, required.Equal(total.Add(shortage)), "allocated %s shortage %s", total, shortage)
}

func TestAllocateFromLotsFEFOPrefersExpiringLot(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	soon := base.AddDate(0, 1, 0)

	lots := []models.Lot{
		lot("older-no-expiry", base, nil, "100"),
		lot("newer-expiring", base.AddDate(0, 0, 10), &soon, "100"),
	}

	allocations, _ := AllocateFromLots(lots, d("50"), models.PolicyFEFO)

	assert.Equal(t, "newer-expiring", allocations[0].LotID)
}

func TestCalculateCoverage(t *testing.T) {
	assert.Equal(t, CoverageFull, CalculateCoverage(d("100"), d("100"), d("0")))
	assert.Equal(t, CoverageFull, CalculateCoverage(d("100"), d("40"), d("60")))
	assert.Equal(t, CoveragePartial, CalculateCoverage(d("100"), d("30"), d("0")))
	assert.Equal(t, CoverageNone, CalculateCoverage(d("100"), d("0"), d("0")))
	assert.Equal(t, CoverageOver, CalculateCoverage(d("100"), d("0"), d("110")))
}
