// Package errs defines the typed error taxonomy used across the relay and
// connector boundary. Internal subsystems return a *RelayError; the
// connector boundary maps its Code to an ILP-style fulfill/reject code.
package errs

import (
	"fmt"
)

// Code is a taxonomy code, not a Go type name: it identifies the class of
// failure so callers across package boundaries can branch on it without
// string matching.
type Code string

const (
	// CodeBadRequest covers a malformed envelope, a bad signature, or an
	// unknown kind with no registered handler.
	CodeBadRequest Code = "F00"
	// CodeInsufficientPayment means the packet amount was below the price
	// required for the message; Details["required"] carries the amount
	// the sender should retry with.
	CodeInsufficientPayment Code = "F06"
	// CodeInternal covers transient failures: channel-open failure, store
	// I/O error, connector unreachable.
	CodeInternal Code = "T00"
	// CodeTimeout means a packet or handshake expired before completion.
	CodeTimeout Code = "T00"
	// CodeNotPeered means a handshake or paid message arrived from a key
	// outside the current peer set while peer gating is enabled.
	CodeNotPeered Code = "NOT_PEERED"
	// CodeChainMismatch means the requester and responder's settlement
	// chains had no intersection.
	CodeChainMismatch Code = "CHAIN_MISMATCH"
	// CodeUnauthorized means a deletion referenced a message the requester
	// did not author.
	CodeUnauthorized Code = "UNAUTHORIZED"
)

// RelayError is a structured error carrying a taxonomy code plus
// machine-readable details (e.g. the required payment amount).
type RelayError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a machine-readable detail and returns the error for
// chaining.
func (e *RelayError) WithDetail(key string, value interface{}) *RelayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a RelayError with no cause.
func New(code Code, message string) *RelayError {
	return &RelayError{Code: code, Message: message}
}

// Wrap builds a RelayError wrapping a lower-level cause.
func Wrap(code Code, message string, cause error) *RelayError {
	return &RelayError{Code: code, Message: message, Cause: cause}
}

// BadRequest is a convenience constructor for CodeBadRequest.
func BadRequest(message string) *RelayError { return New(CodeBadRequest, message) }

// InsufficientPayment builds the F06 error with the required amount attached.
func InsufficientPayment(required uint64) *RelayError {
	return New(CodeInsufficientPayment, "payment below required amount").
		WithDetail("required", required)
}

// Internal is a convenience constructor for CodeInternal.
func Internal(message string, cause error) *RelayError {
	return Wrap(CodeInternal, message, cause)
}

// Timeout is a convenience constructor for CodeTimeout.
func Timeout(message string) *RelayError { return New(CodeTimeout, message) }

// NotPeered is a convenience constructor for CodeNotPeered.
func NotPeered(peerKey string) *RelayError {
	return New(CodeNotPeered, "peer is not in the current peer set").WithDetail("peerKey", peerKey)
}

// ChainMismatch is a convenience constructor for CodeChainMismatch.
func ChainMismatch() *RelayError {
	return New(CodeChainMismatch, "no intersection between supported settlement chains")
}

// Unauthorized is a convenience constructor for CodeUnauthorized.
func Unauthorized(message string) *RelayError { return New(CodeUnauthorized, message) }

// CodeOf extracts the taxonomy code from an error, if it is a *RelayError.
// Returns "" otherwise.
func CodeOf(err error) Code {
	if re, ok := err.(*RelayError); ok {
		return re.Code
	}
	return ""
}
