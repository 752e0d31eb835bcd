package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, "draft", NormalizeStatus("DRAFT"))
	assert.Equal(t, "in_progress", NormalizeStatus("  In_Progress "))
	assert.Equal(t, "", NormalizeStatus("   "))
}

func TestValidReversalReason(t *testing.T) {
	assert.True(t, ValidReversalReason(ReversalReasonWrongLot))
	assert.True(t, ValidReversalReason(ReversalReasonWrongQty))
	assert.True(t, ValidReversalReason(ReversalReasonQualityIssue))
	assert.True(t, ValidReversalReason(ReversalReasonOther))
	assert.False(t, ValidReversalReason("changed_my_mind"))
	assert.False(t, ValidReversalReason(""))
}

func TestEngineErrorCode(t *testing.T) {
	err := NewEngineError(CodeWONotFound, "work order not found: %s", "wo-1")

	assert.Equal(t, CodeWONotFound, ErrCode(err))
	assert.True(t, IsEngineError(err, CodeWONotFound))
	assert.False(t, IsEngineError(err, CodeLotNotFound))
	assert.Contains(t, err.Error(), "WO_NOT_FOUND")
	assert.Contains(t, err.Error(), "wo-1")
}

func TestErrCodeUnwrapsWrappedErrors(t *testing.T) {
	inner := NewEngineError(CodeAlreadyReversed, "consumption %s has already been reversed", "c-1")
	wrapped := fmt.Errorf("reverse failed: %w", inner)

	assert.Equal(t, CodeAlreadyReversed, ErrCode(wrapped))
}

func TestErrCodePlainError(t *testing.T) {
	assert.Equal(t, "", ErrCode(errors.New("boom")))
	assert.Equal(t, "", ErrCode(nil))
}
