package models

import (
	"errors"
	"fmt"
)

// Engine error codes. The API layer maps these onto HTTP statuses;
// everything else treats them as opaque identifiers.
const (
	CodeWONotFound             = "WO_NOT_FOUND"
	CodeRequirementNotFound    = "REQUIREMENT_NOT_FOUND"
	CodeLotNotFound            = "LOT_NOT_FOUND"
	CodeReservationNotFound    = "RESERVATION_NOT_FOUND"
	CodeConsumptionNotFound    = "CONSUMPTION_NOT_FOUND"
	CodeRequestNotFound        = "REQUEST_NOT_FOUND"
	CodeInvalidWOStatus        = "INVALID_WO_STATUS"
	CodeSnapshotLocked         = "SNAPSHOT_LOCKED"
	CodeNoMaterials            = "NO_MATERIALS"
	CodeLotNotAvailable        = "LOT_NOT_AVAILABLE"
	CodeProductMismatch        = "PRODUCT_MISMATCH"
	CodeUoMMismatch            = "UOM_MISMATCH"
	CodeInsufficientQty        = "INSUFFICIENT_QTY"
	CodeAlreadyReleased        = "ALREADY_RELEASED"
	CodeAlreadyReversed        = "ALREADY_REVERSED"
	CodeNotOverConsumption     = "NOT_OVER_CONSUMPTION"
	CodeOverConsumptionAllowed = "OVER_CONSUMPTION_ALLOWED"
	CodePendingRequestExists   = "PENDING_REQUEST_EXISTS"
	CodeRequestNotPending      = "REQUEST_NOT_PENDING"
	CodeApprovalRequired       = "APPROVAL_REQUIRED"
	CodeNotesRequiredForOther  = "NOTES_REQUIRED_FOR_OTHER"
	CodeValidation             = "VALIDATION_ERROR"
)

// EngineError is a typed business-rule failure with a stable code
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewEngineError builds a typed error with a formatted message
func NewEngineError(code, format string, args ...interface{}) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrCode extracts the engine error code, or empty for plain errors
func ErrCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsEngineError reports whether err carries the given code
func IsEngineError(err error, code string) bool {
	return ErrCode(err) == code
}
