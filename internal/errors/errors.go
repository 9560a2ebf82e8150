// Package errors defines the workflow error taxonomy for the carbon tracker.
// Every workflow-level failure is converted to a WorkflowError at the workflow
// boundary and surfaced to the user as a transient status; none are fatal.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategorySession represents wallet/session precondition errors
	CategorySession ErrorCategory = "session"
	// CategoryEncryption represents encryption gateway errors
	CategoryEncryption ErrorCategory = "encryption"
	// CategoryLedger represents ledger read/write errors
	CategoryLedger ErrorCategory = "ledger"
	// CategoryOracle represents decryption-proof gateway errors
	CategoryOracle ErrorCategory = "oracle"
	// CategoryRegistry represents record registry errors
	CategoryRegistry ErrorCategory = "registry"
	// CategoryValidation represents invalid workflow input
	CategoryValidation ErrorCategory = "validation"
)

// WorkflowError represents an error with category and stable code
type WorkflowError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NewNotConnectedError signals a workflow invoked without an active wallet session
func NewNotConnectedError() *WorkflowError {
	return &WorkflowError{
		Category:   CategorySession,
		StatusCode: http.StatusUnauthorized,
		Code:       "NOT_CONNECTED",
		Message:    "no active wallet session",
	}
}

// NewNotReadyError signals a workflow invoked before the encryption subsystem is ready
func NewNotReadyError() *WorkflowError {
	return &WorkflowError{
		Category:   CategorySession,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "NOT_READY",
		Message:    "encryption subsystem not initialized",
	}
}

// NewInvalidInputError signals invalid creation input
func NewInvalidInputError(field, reason string) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_INPUT",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// NewEncryptionFailedError wraps a failure of the encryption gateway
func NewEncryptionFailedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryEncryption,
		StatusCode: http.StatusBadGateway,
		Code:       "ENCRYPTION_FAILED",
		Message:    "failed to encrypt carbon value",
		Cause:      cause,
	}
}

// NewSubmissionRejectedError signals a user-initiated rejection of a ledger write
func NewSubmissionRejectedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryLedger,
		StatusCode: http.StatusBadRequest,
		Code:       "SUBMISSION_REJECTED_BY_USER",
		Message:    "transaction rejected by user",
		Cause:      cause,
	}
}

// NewSubmissionFailedError wraps a failure to submit a ledger write
func NewSubmissionFailedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryLedger,
		StatusCode: http.StatusBadGateway,
		Code:       "SUBMISSION_FAILED",
		Message:    "failed to submit transaction",
		Cause:      cause,
	}
}

// NewConfirmationFailedError wraps a failed or reverted confirmation wait
func NewConfirmationFailedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryLedger,
		StatusCode: http.StatusBadGateway,
		Code:       "CONFIRMATION_FAILED",
		Message:    "transaction confirmation failed",
		Cause:      cause,
	}
}

// NewAlreadyVerifiedError signals that a record was verified by another actor.
// Workflows treat this as a recoverable success signal, not a true error.
func NewAlreadyVerifiedError(businessKey string) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryOracle,
		StatusCode: http.StatusConflict,
		Code:       "ALREADY_VERIFIED",
		Message:    fmt.Sprintf("record %s already verified", businessKey),
		Details: map[string]interface{}{
			"businessKey": businessKey,
		},
	}
}

// NewDecryptionFailedError wraps a failure of the decryption workflow
func NewDecryptionFailedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryOracle,
		StatusCode: http.StatusBadGateway,
		Code:       "DECRYPTION_FAILED",
		Message:    "failed to decrypt carbon value",
		Cause:      cause,
	}
}

// NewDecryptionBusyError signals the single-flight decryption guard is held
func NewDecryptionBusyError() *WorkflowError {
	return &WorkflowError{
		Category:   CategoryOracle,
		StatusCode: http.StatusConflict,
		Code:       "DECRYPTION_BUSY",
		Message:    "another decryption is already in progress",
	}
}

// NewLoadFailedError wraps a failed registry refresh
func NewLoadFailedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryRegistry,
		StatusCode: http.StatusBadGateway,
		Code:       "LOAD_FAILED",
		Message:    "failed to load records from ledger",
		Cause:      cause,
	}
}

// NewInitializationFailedError wraps a failed encryption subsystem bootstrap
func NewInitializationFailedError(cause error) *WorkflowError {
	return &WorkflowError{
		Category:   CategoryEncryption,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "INITIALIZATION_FAILED",
		Message:    "encryption subsystem initialization failed",
		Cause:      cause,
	}
}

// Categorize converts an arbitrary error to a WorkflowError
func Categorize(err error) *WorkflowError {
	if err == nil {
		return nil
	}
	if wfErr, ok := err.(*WorkflowError); ok {
		return wfErr
	}
	return &WorkflowError{
		Category:   CategoryRegistry,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "unexpected error",
		Cause:      err,
	}
}

// IsUserRejection reports whether an error stems from the user rejecting a
// transaction in their wallet. Signer implementations disagree on the exact
// wording, so this matches the common phrasings.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

// IsAlreadyVerified reports whether an error indicates the record was verified
// by another actor between the on-chain check and the proof submission. The
// reason may come back as a typed error or as a revert string from the ledger.
func IsAlreadyVerified(err error) bool {
	if err == nil {
		return false
	}
	if wfErr, ok := err.(*WorkflowError); ok && wfErr.Code == "ALREADY_VERIFIED" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already verified")
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if wfErr := Categorize(err); wfErr != nil {
		return wfErr.StatusCode
	}
	return http.StatusInternalServerError
}
