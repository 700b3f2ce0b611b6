// Package errors defines the coded error type used across the retrieval
// pipeline. Most failure modes in the pipeline are downgraded to
// disclosures or defaults; a CkrError is reserved for conditions that
// indicate a caller or configuration bug.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// SupplierUnavailable indicates the candidate or pack supplier failed
	SupplierUnavailable ErrorCode = "SUPPLIER_UNAVAILABLE"
	// TemplateNotFound indicates no context template exists for an intent
	TemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	// TemplateInvalid indicates a registered template failed validation
	TemplateInvalid ErrorCode = "TEMPLATE_INVALID"
	// InvalidQuery indicates a malformed query (empty intent, bad depth)
	InvalidQuery ErrorCode = "INVALID_QUERY"
	// InvalidPoolSize indicates a zero or negative configured worker count
	InvalidPoolSize ErrorCode = "INVALID_POOL_SIZE"
	// BudgetExceeded indicates a caller-supplied budget that cannot be satisfied
	BudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// LedgerUnavailable indicates the observation store could not be opened
	LedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Drilldown represents a suggested follow-up query
type Drilldown struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// CkrError represents a CKR error with code, message, and follow-ups
type CkrError struct {
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	Drilldowns []Drilldown `json:"drilldowns,omitempty"`
	cause      error       // Underlying error (not exported to JSON)
}

// New creates a new CkrError
func New(code ErrorCode, message string, cause error) *CkrError {
	return &CkrError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *CkrError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CkrError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CkrError) WithDetails(details interface{}) *CkrError {
	e.Details = details
	return e
}

// WithDrilldowns adds suggested follow-up queries to the error
func (e *CkrError) WithDrilldowns(drilldowns ...Drilldown) *CkrError {
	e.Drilldowns = append(e.Drilldowns, drilldowns...)
	return e
}
