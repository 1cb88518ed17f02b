// Package errors implements the engine's error taxonomy: six categories
// (ResourceExhausted, Invalid, Missing, Conflict, Stale, IO), each a
// concrete type embedding a shared baseError so every error carries a
// programmatic code plus structured, domain-specific context.
//
// The fluent With* builders mirror the teacher's ValidationError/
// StorageError construction style: build the error with as much context as
// is known at the point of failure, then let callers up the stack inspect
// it with the Is*/As* helpers below instead of parsing messages.
package errors

import stdErrors "errors"

// IsResourceExhausted reports whether err is, or wraps, a ResourceExhaustedError.
func IsResourceExhausted(err error) bool {
	var e *ResourceExhaustedError
	return stdErrors.As(err, &e)
}

// IsInvalid reports whether err is, or wraps, an InvalidError.
func IsInvalid(err error) bool {
	var e *InvalidError
	return stdErrors.As(err, &e)
}

// IsMissing reports whether err is, or wraps, a MissingError.
func IsMissing(err error) bool {
	var e *MissingError
	return stdErrors.As(err, &e)
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return stdErrors.As(err, &e)
}

// IsStale reports whether err is, or wraps, a StaleError.
func IsStale(err error) bool {
	var e *StaleError
	return stdErrors.As(err, &e)
}

// IsIO reports whether err is, or wraps, an IOError.
func IsIO(err error) bool {
	var e *IOError
	return stdErrors.As(err, &e)
}

// AsConflict extracts a ConflictError from err's chain, if present.
func AsConflict(err error) (*ConflictError, bool) {
	var e *ConflictError
	if stdErrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsMissing extracts a MissingError from err's chain, if present.
func AsMissing(err error) (*MissingError, bool) {
	var e *MissingError
	if stdErrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsStale extracts a StaleError from err's chain, if present.
func AsStale(err error) (*StaleError, bool) {
	var e *StaleError
	if stdErrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the programmatic error code from err, defaulting to
// ErrorCodeIO for errors that don't carry one. Used by the control endpoint
// to translate an error into the negative-errno-style response code.
func GetErrorCode(err error) ErrorCode {
	var base interface{ Code() ErrorCode }
	if stdErrors.As(err, &base) {
		return base.Code()
	}
	return ErrorCodeIO
}
