package types

import "fmt"

// LimitError carries a structured quota denial from the admission layer to
// the API layer, which renders Denial as the response body instead of the
// standard error envelope.
type LimitError struct {
	Code   ErrorCode
	Denial LimitDenial
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Denial.Error)
}

// HTTPStatus returns the HTTP status code for the denial.
func (e *LimitError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewLimitError builds a LimitError from an admission decision.
func NewLimitError(code ErrorCode, denialCode, message string, d Decision) *LimitError {
	return &LimitError{
		Code: code,
		Denial: LimitDenial{
			Error:        message,
			Code:         denialCode,
			CurrentCount: d.CurrentCount,
			MaxCount:     d.MaxCount,
			PlanType:     d.PlanType,
			NeedsUpgrade: d.PlanType != PlanPro,
			LimitType:    d.LimitScope,
		},
	}
}
